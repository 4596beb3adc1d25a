package bridge

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcpclient"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
)

// DefaultRequestTimeout bounds one bridge request end to end: provider
// connects, every model turn, and every tool call.
const DefaultRequestTimeout = 300 * time.Second

// Option configures a Bridge.
type Option func(*Bridge)

// WithDialer overrides the provider dialer, for tests.
func WithDialer(dial mcpclient.DialFunc) Option {
	return func(b *Bridge) {
		b.dial = dial
	}
}

// WithTimeout overrides the per-request deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = timeout
	}
}

// WithMaxRounds overrides the model turn cap.
func WithMaxRounds(maxRounds int) Option {
	return func(b *Bridge) {
		b.maxRounds = maxRounds
	}
}

// Bridge executes queries against a model with tools drawn from MCP
// providers. A Bridge is safe for concurrent use; every Execute call gets
// its own registry of sessions, torn down before the call returns.
type Bridge struct {
	model     llms.Model
	dial      mcpclient.DialFunc
	timeout   time.Duration
	maxRounds int
}

// New creates a bridge over the model.
func New(model llms.Model, opts ...Option) *Bridge {
	b := &Bridge{
		model:   model,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs one query against the providers in cfg and returns the
// model's final text. Provider sessions are closed on every exit path.
func (b *Bridge) Execute(ctx context.Context, query string, cfg *mcpclient.Config) (res string, err error) {
	started := time.Now()
	defer metricskey.PerfBridgeRequest.MeasureSince(started)
	defer func() {
		if err != nil {
			metricskey.StatsBridgeRequestsFailed.IncrCounter(1, failureReason(err))
		} else {
			metricskey.StatsBridgeRequestsSucceeded.IncrCounter(1)
		}
	}()

	if err := cfg.Validate(); err != nil {
		return "", errors.Mark(err, ErrInvalidConfig)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	registry := NewRegistry(b.dial)
	registry.Connect(ctx, cfg)
	defer registry.Teardown(ctx)

	catalog := registry.BuildCatalog(ctx)
	if len(catalog) == 0 {
		return "", errors.WithStack(ErrEmptyCatalog)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "catalog_built",
		"providers", len(registry.Sessions()),
		"tools", len(catalog),
	)

	driver := NewDriver(b.model, NewDispatcher(registry), catalog, b.maxRounds)
	res, err = driver.Run(ctx, query)
	if err != nil {
		return "", err
	}
	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrEmptyCatalog):
		return "empty_catalog"
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier"
	default:
		return "internal"
	}
}
