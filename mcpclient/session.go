package mcpclient

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "mcpclient")

const protocolVersion = "2024-11-05"

// ISession is a live connection to one MCP server.
type ISession interface {
	// Connect establishes the transport and performs the protocol handshake.
	Connect(ctx context.Context) error
	// ListTools returns all tools advertised by the server.
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	// CallTool executes a tool by its local name.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	// Close shuts down the connection.
	Close() error
}

// DialFunc opens a session for one provider config. It does not connect;
// the returned session's Connect does.
type DialFunc func(name string, cfg *ServerConfig) (ISession, error)

// Dial returns a session for the provider config. Only the sse transport is
// supported; other kinds return an error so the caller can exclude them.
func Dial(name string, cfg *ServerConfig) (ISession, error) {
	if cfg.Type != TransportSSE {
		return nil, errors.Newf("unsupported transport %q for provider %q", cfg.Type, name)
	}
	return NewSSESession(name, cfg.URL, cfg.Headers), nil
}

// SSESession implements ISession over the SSE transport.
type SSESession struct {
	name    string
	url     string
	headers map[string]string

	mu        sync.RWMutex
	client    client.MCPClient
	connected bool
}

var _ ISession = (*SSESession)(nil)

// NewSSESession creates an SSE-based session; call Connect before use.
func NewSSESession(name, url string, headers map[string]string) *SSESession {
	return &SSESession{
		name:    name,
		url:     url,
		headers: headers,
	}
}

// Connect establishes the SSE stream and performs the MCP handshake.
func (s *SSESession) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	var opts []transport.ClientOption
	if len(s.headers) > 0 {
		opts = append(opts, transport.WithHeaders(s.headers))
	}

	mcpClient, err := client.NewSSEMCPClient(s.url, opts...)
	if err != nil {
		return errors.WithMessagef(err, "failed to create SSE client for %q", s.name)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return errors.WithMessagef(err, "failed to start SSE transport for %q", s.name)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "mcpbridge",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = mcpClient.Close()
		return errors.WithMessagef(err, "failed to initialize MCP protocol for %q", s.name)
	}

	s.client = mcpClient
	s.connected = true

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"provider", s.name,
		"server", initResult.ServerInfo.Name,
		"server_version", initResult.ServerInfo.Version,
	)
	return nil
}

// ListTools returns all available tools from the server.
func (s *SSESession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected || s.client == nil {
		return nil, errors.Newf("session %q not connected", s.name)
	}

	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to list tools for %q", s.name)
	}
	return result.Tools, nil
}

// CallTool executes a specific tool and returns the result.
func (s *SSESession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected || s.client == nil {
		return nil, errors.Newf("session %q not connected", s.name)
	}

	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to call tool %q on %q", name, s.name)
	}
	return result, nil
}

// Close cleanly shuts down the session.
func (s *SSESession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.client == nil {
		return nil
	}

	err := s.client.Close()
	s.connected = false
	s.client = nil
	return err
}
