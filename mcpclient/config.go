package mcpclient

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// TransportSSE is the only transport kind supported by the bridge.
// Providers declaring any other kind are excluded from the catalog, not rejected.
const TransportSSE = "sse"

var validate = validator.New()

// Config is the caller-supplied set of MCP providers for one request.
type Config struct {
	// Providers maps a provider name to its connection config.
	Providers map[string]*ServerConfig `json:"providers" yaml:"providers"`
}

// ServerConfig describes how to reach one MCP server.
type ServerConfig struct {
	// Type is the transport kind, e.g. "sse".
	Type string `json:"type" yaml:"type" validate:"required"`
	// URL is the endpoint of the server, required for the sse transport.
	URL string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	// Headers are optional HTTP headers sent on connect.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Validate checks every provider entry eagerly, before any connect is
// attempted. An unsupported transport kind is not an error, but a supported
// kind with a malformed shape is.
func (c *Config) Validate() error {
	for name, sc := range c.Providers {
		if sc == nil {
			return errors.Newf("provider %q: missing config", name)
		}
		if err := validate.Struct(sc); err != nil {
			return errors.WithMessagef(err, "provider %q", name)
		}
		if sc.Type == TransportSSE && sc.URL == "" {
			return errors.Newf("provider %q: url is required for the sse transport", name)
		}
	}
	return nil
}
