package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/bridge"
	"github.com/effective-security/mcpbridge/mcpclient"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "httpserver")

// CallRequest is the body of POST /mcpcall.
type CallRequest struct {
	Query     string    `json:"query"`
	MCPConfig MCPConfig `json:"mcp_config"`
}

// MCPConfig carries the declarative provider catalog of one request.
type MCPConfig struct {
	Providers map[string]*mcpclient.ServerConfig `json:"providers"`
}

// CallResponse is the success body of POST /mcpcall.
type CallResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is the failure body of POST /mcpcall.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Executor runs one bridged query. *bridge.Bridge implements it.
type Executor interface {
	Execute(ctx context.Context, query string, cfg *mcpclient.Config) (string, error)
}

// NewRouter creates the chi router for the bridge endpoints.
func NewRouter(executor Executor) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/mcpcall", handleCall(executor))

	return r
}

func handleCall(executor Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.WithMessage(err, "invalid request body"))
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, errors.New("query is required"))
			return
		}

		cfg := &mcpclient.Config{Providers: req.MCPConfig.Providers}
		res, err := executor.Execute(r.Context(), req.Query, cfg)
		if err != nil {
			status := bridge.StatusCode(err)
			logger.ContextKV(r.Context(), xlog.WARNING,
				"status", "request_failed",
				"code", status,
				"err", err.Error(),
			)
			writeError(w, status, err)
			return
		}

		writeJSON(w, http.StatusOK, CallResponse{Response: res})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Config holds the HTTP listener configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the default listener configuration. The write
// timeout leaves headroom over the bridge's own request deadline.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: bridge.DefaultRequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server wraps the HTTP listener.
type Server struct {
	http *http.Server
}

// NewServer creates the HTTP server over the executor.
func NewServer(executor Executor, cfg Config) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(executor),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start starts the listener and blocks until it stops.
func (s *Server) Start() error {
	logger.KV(xlog.INFO, "status", "listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}
	return nil
}

// Shutdown gracefully stops the listener, letting in-flight requests drain.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.KV(xlog.INFO, "status", "shutting_down")
	return errors.WithStack(s.http.Shutdown(ctx))
}
