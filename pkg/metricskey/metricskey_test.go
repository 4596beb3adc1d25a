package metricskey

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsDefinitions(t *testing.T) {
	for _, m := range Metrics {
		assert.NotEmpty(t, m.Name, "Metric name should not be empty")
		assert.NotEmpty(t, m.Help, "Metric help text should not be empty")
	}

	names := make([]string, 0, len(Metrics))
	for _, m := range Metrics {
		names = append(names, m.Name)
	}
	assert.True(t, sort.StringsAreSorted(names), "Metrics slice should be sorted by name")
}
