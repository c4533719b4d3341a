package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/gate"
	"github.com/ashita-ai/scratchnotebook/internal/identity"
	"github.com/ashita-ai/scratchnotebook/internal/ratelimit"
)

// Server is the HTTP/SSE transport for the scratch notebook. The MCP tool
// surface itself lives in internal/mcp; this package only wires it (and
// the SSE change feed) onto an http.Server, matching the teacher's
// server.go split between transport plumbing and business handlers.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	MCPServer *mcpserver.MCPServer // mounted at HTTPPath when non-nil
	Broker    *Broker              // required when EnableSSE
	Resolver  *identity.Resolver
	Limiter   ratelimit.Limiter // nil defaults to ratelimit.NoopLimiter{}
	Gate      *gate.Gate        // nil defaults to an always-Running gate
	Logger    *slog.Logger

	Host          string
	Port          int
	SocketPath    string
	HTTPPath      string
	SSEPath       string
	MetricsPath   string
	EnableSSE     bool
	EnableMetrics bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	rl := rateLimitMiddleware(limiter, "http")

	g := cfg.Gate
	if g == nil {
		g = gate.New()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)

	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle(cfg.HTTPPath, rl(mcpHTTP))
	}
	if cfg.EnableSSE && cfg.Broker != nil {
		mux.Handle(cfg.SSEPath, rl(http.HandlerFunc(newSSEHandler(cfg.Broker, cfg.Logger))))
	}
	if cfg.EnableMetrics {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → gate → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Resolver, handler)
	handler = gateMiddleware(g, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if cfg.SocketPath != "" {
		addr = "unix:" + cfg.SocketPath
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Start begins serving HTTP requests. It blocks until the listener fails
// or Shutdown closes it.
func (s *Server) Start() error {
	if socketPath, ok := unixSocketPath(s.httpServer.Addr); ok {
		ln, err := net.Listen("unix", socketPath)
		if err != nil {
			return fmt.Errorf("server: listen unix %s: %w", socketPath, err)
		}
		s.logger.Info("http server starting", "socket", socketPath)
		return s.httpServer.Serve(ln)
	}
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func unixSocketPath(addr string) (string, bool) {
	const prefix = "unix:"
	if len(addr) > len(prefix) && addr[:len(prefix)] == prefix {
		return addr[len(prefix):], true
	}
	return "", false
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// NewFromConfig translates config.Config's flat transport fields into a
// ServerConfig, so cmd/scratchd doesn't have to repeat the field mapping.
func NewFromConfig(cfg config.Config, mcpSrv *mcpserver.MCPServer, broker *Broker, resolver *identity.Resolver, limiter ratelimit.Limiter, g *gate.Gate, logger *slog.Logger) *Server {
	return New(ServerConfig{
		MCPServer:     mcpSrv,
		Broker:        broker,
		Resolver:      resolver,
		Limiter:       limiter,
		Gate:          g,
		Logger:        logger,
		Host:          cfg.HTTPHost,
		Port:          cfg.HTTPPort,
		SocketPath:    cfg.HTTPSocketPath,
		HTTPPath:      cfg.HTTPPath,
		SSEPath:       cfg.SSEPath,
		MetricsPath:   cfg.MetricsPath,
		EnableSSE:     cfg.EnableSSE,
		EnableMetrics: cfg.EnableMetrics,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
	})
}
