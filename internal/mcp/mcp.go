// Package mcp implements the Model Context Protocol server exposing the
// scratch_* tool surface over the stdio and StreamableHTTP transports. The
// SSE endpoint in internal/server streams catalog change events; it does
// not carry MCP messages.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/ctxutil"
	"github.com/ashita-ai/scratchnotebook/internal/gate"
	"github.com/ashita-ai/scratchnotebook/internal/identity"
)

// Server wraps the mcp-go server with the catalog/validate/search service
// layer needed by every scratch_* handler.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     catalog.Store
	validator catalog.Validator
	embedder  catalog.Embedder
	identity  *identity.Resolver
	cfg       config.Config
	logger    *slog.Logger
	gate      *gate.Gate
}

// New creates and configures the MCP server with every scratch_* tool
// registered. g gates every tool call against the RUNNING/DRAINING/STOPPED
// shutdown state machine (spec §4.F); a nil g accepts every request.
func New(store catalog.Store, validator catalog.Validator, embedder catalog.Embedder, resolver *identity.Resolver, cfg config.Config, g *gate.Gate, logger *slog.Logger) *Server {
	if g == nil {
		g = gate.New()
	}
	s := &Server{
		store:     store,
		validator: validator,
		embedder:  embedder,
		identity:  resolver,
		cfg:       cfg,
		logger:    logger,
		gate:      g,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"scratchnotebook",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerPadTools()
	s.registerSchemaTools()
	s.registerNamespaceTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// tenant resolves the calling principal's tenant from ctx, falling back to
// the resolver's default tenant when the request carries no principal
// (stdio transport, or auth disabled).
func (s *Server) tenant(ctx context.Context) string {
	if t := ctxutil.TenantIDFromContext(ctx); t != "" {
		return t
	}
	return s.identity.DefaultTenant()
}

// withValidationTimeout bounds a mutating/validating request (across every
// cell it touches) to cfg.ValidationRequestTimeout, per spec §4.C. A
// non-positive timeout disables the bound.
func (s *Server) withValidationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ValidationRequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.ValidationRequestTimeout)
}

// toolHandler matches mcp-go's server.ToolHandlerFunc signature.
type toolHandler func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error)

// gated wraps h to reject with a domainerr.Unavailable result, before any
// store or validator work runs, once the shutdown gate leaves Running
// (spec §4.F). Every scratch_* tool is registered through this wrapper, so
// the gate applies uniformly whether the call arrived over stdio or the
// HTTP-mounted StreamableHTTP transport.
func (s *Server) gated(h toolHandler) toolHandler {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		if err := s.gate.Allow(); err != nil {
			return domainErrorResult(err), nil
		}
		return h(ctx, req)
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := jsonMarshalIndent(v)
	if err != nil {
		return errorResult("failed to marshal response: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
