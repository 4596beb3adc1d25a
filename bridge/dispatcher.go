package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcpclient"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
)

// Dispatcher routes mangled tool calls to the owning provider session.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over the registry's sessions.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch resolves a mangled tool name, decodes the model's JSON argument
// payload, and invokes the tool on its provider. The flattened text of the
// result is returned. A name that does not resolve is ErrInvalidIdentifier;
// transport or tool failures are plain errors for the caller's policy.
func (d *Dispatcher) Dispatch(ctx context.Context, mangled, rawArgs string) (string, error) {
	ordinal, name, err := ResolveToolName(mangled, len(d.registry.sessions))
	if err != nil {
		return "", err
	}
	sess := d.registry.sessions[ordinal]

	var args map[string]any
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", errors.WithMessagef(err, "invalid arguments for tool %q", mangled)
		}
	}

	started := time.Now()
	result, err := sess.Session.CallTool(ctx, name, args)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, mangled)
		return "", errors.WithMessagef(err, "tool %q failed on provider %q", name, sess.Name)
	}
	metricskey.PerfToolCall.MeasureSince(started, mangled)

	text, isErr := mcpclient.FlattenResult(result)
	if isErr {
		metricskey.StatsToolCallsFailed.IncrCounter(1, mangled)
		return "", errors.Newf("tool %q reported an error: %s", name, text)
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, mangled)
	return text, nil
}
