package bridge

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/mcpclient"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/errgroup"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "bridge")

// Session pairs a provider name with its live connection.
type Session struct {
	Name    string
	Session mcpclient.ISession
}

// Registry holds the provider sessions of one bridge request. Ordinals in
// mangled tool names are positions in the sessions slice, which follows the
// lexicographic order of provider names so they are stable across runs.
type Registry struct {
	dial     mcpclient.DialFunc
	sessions []*Session
}

// NewRegistry creates an empty registry that dials providers with dial.
// A nil dial uses the default SSE dialer.
func NewRegistry(dial mcpclient.DialFunc) *Registry {
	if dial == nil {
		dial = mcpclient.Dial
	}
	return &Registry{dial: dial}
}

// Sessions returns the connected sessions in ordinal order.
func (r *Registry) Sessions() []*Session {
	return r.sessions
}

// Connect dials and handshakes every provider concurrently. Connection is
// best-effort: a provider that cannot be dialed or fails its handshake is
// logged and excluded, and the registry keeps the rest. Connect itself never
// fails; an empty registry is detected later as an empty catalog.
func (r *Registry) Connect(ctx context.Context, cfg *mcpclient.Config) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	connected := make([]*Session, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			started := time.Now()
			sess, err := r.connectOne(ctx, name, cfg.Providers[name])
			if err != nil {
				metricskey.StatsProviderConnectsFailed.IncrCounter(1, name)
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "connect_failed",
					"provider", name,
					"err", err.Error(),
				)
				return nil
			}
			metricskey.PerfProviderConnect.MeasureSince(started, name)
			connected[i] = sess
			return nil
		})
	}
	_ = g.Wait()

	for _, sess := range connected {
		if sess != nil {
			r.sessions = append(r.sessions, sess)
		}
	}
}

func (r *Registry) connectOne(ctx context.Context, name string, cfg *mcpclient.ServerConfig) (*Session, error) {
	sess, err := r.dial(name, cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := sess.Connect(ctx); err != nil {
		_ = sess.Close()
		return nil, errors.WithStack(err)
	}
	return &Session{Name: name, Session: sess}, nil
}

// Teardown closes every session, regardless of individual close errors.
// It is safe to call on an empty registry and must run exactly once per
// request, on every exit path.
func (r *Registry) Teardown(ctx context.Context) {
	for _, sess := range r.sessions {
		if err := sess.Session.Close(); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "close_failed",
				"provider", sess.Name,
				"err", err.Error(),
			)
		}
	}
	r.sessions = nil
}
