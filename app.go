// Package scratchnotebook is the public API for embedding the scratch
// notebook MCP server.
//
// Callers that only need the stock binary can use cmd/scratchd directly;
// embedders construct and extend the server without forking it:
//
//	app, err := scratchnotebook.New(
//	    scratchnotebook.WithVersion(version),
//	    scratchnotebook.WithLogger(logger),
//	    scratchnotebook.WithChangeHook(myAuditHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: scratchnotebook (root)
// imports internal/*, but internal/* never imports scratchnotebook (root).
package scratchnotebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/gate"
	"github.com/ashita-ai/scratchnotebook/internal/identity"
	"github.com/ashita-ai/scratchnotebook/internal/lifecycle"
	"github.com/ashita-ai/scratchnotebook/internal/mcp"
	"github.com/ashita-ai/scratchnotebook/internal/ratelimit"
	"github.com/ashita-ai/scratchnotebook/internal/search"
	"github.com/ashita-ai/scratchnotebook/internal/server"
	"github.com/ashita-ai/scratchnotebook/internal/telemetry"
	"github.com/ashita-ai/scratchnotebook/internal/validate"
)

// App is the scratch notebook server lifecycle. Construct with New(), run
// with Run(). App has no public fields — use New() options to configure it.
type App struct {
	cfg config.Config

	store     catalog.Store
	validator catalog.Validator
	embedder  catalog.Embedder
	resolver  *identity.Resolver

	mcpSrv   *mcp.Server
	httpSrv  *server.Server
	broker   *server.Broker
	lifetime *lifecycle.Controller
	limiter  ratelimit.Limiter
	gate     *gate.Gate

	changeHooks  []ChangeHook
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initializes the scratch notebook server. It opens the configured
// catalog backend, runs its migrations, wires the MCP tool surface and
// (when enabled) the HTTP/SSE transport, and returns a ready-to-run App.
// It does not start any goroutines or accept connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.storageDir != "" {
		cfg.StorageDir = o.storageDir
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("scratchnotebook starting", "version", version, "catalog_backend", cfg.CatalogBackend)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, err
	}

	resolver := identity.NewResolver(cfg)

	if err := lifecycle.RunFirstEnableMigration(context.Background(), store, cfg, logger); err != nil {
		_ = store.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("first-enable migration: %w", err)
	}

	validator := validate.New(cfg.ValidationWorkers)

	var embedder catalog.Embedder
	if o.embedder != nil {
		embedder = &embedderAdapter{e: o.embedder}
	} else {
		embedder, err = search.New(cfg)
		if err != nil {
			_ = store.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("search: %w", err)
		}
	}

	shutdownGate := gate.New()
	mcpSrv := mcp.New(store, validator, embedder, resolver, cfg, shutdownGate, logger)

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	var broker *server.Broker
	var httpSrv *server.Server
	if cfg.EnableHTTP {
		if cfg.EnableSSE {
			broker = server.NewBroker(logger)
		}

		httpSrv = server.NewFromConfig(cfg, mcpSrv.MCPServer(), broker, resolver, limiter, shutdownGate, logger)
	}

	// Fan the catalog's own commit-notification hook out to the SSE broker
	// (when running) and to every registered ChangeHook.
	notifiers := publicNotifiers(o.changeHooks, logger)
	if broker != nil {
		notifiers = append(notifiers, broker)
	}
	if len(notifiers) > 0 {
		store.SetNotifier(fanoutNotifier(notifiers))
	}

	lifetime := lifecycle.New(store, cfg, logger)

	return &App{
		cfg:          cfg,
		store:        store,
		validator:    validator,
		embedder:     embedder,
		resolver:     resolver,
		mcpSrv:       mcpSrv,
		httpSrv:      httpSrv,
		broker:       broker,
		lifetime:     lifetime,
		limiter:      limiter,
		gate:         shutdownGate,
		changeHooks:  o.changeHooks,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the preempt sweeper, the configured transports (stdio and/or
// HTTP), and blocks until ctx is cancelled or a fatal transport error
// occurs. On return, Shutdown is called automatically — callers should
// not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	a.lifetime.Start(ctx)

	// stdioCtx ties the stdio transport to Run's own ctx, so a caller
	// cancellation (or a fatal error on the HTTP side) stops Listen instead
	// of leaving it blocked on stdin forever.
	stdioCtx, stdioCancel := context.WithCancel(ctx)
	defer stdioCancel()

	errCh := make(chan error, 2)

	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http transport: %w", err)
			}
		}()
	}

	if a.cfg.EnableStdio {
		go func() {
			stdio := mcpserver.NewStdioServer(a.mcpSrv.MCPServer())
			if err := stdio.Listen(stdioCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("stdio transport: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stdioCancel()
		_ = a.Shutdown(context.Background())
		return err
	}

	stdioCancel()
	return a.Shutdown(context.Background())
}

// Shutdown transitions the shutdown gate to DRAINING (rejecting new MCP
// and HTTP requests with a 503-mapped domain error), drains the HTTP
// server and preempt sweeper under cfg.ShutdownTimeout, closes the
// catalog store and OTEL provider, and finally moves the gate to STOPPED.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("scratchnotebook shutting down")
	a.gate.Drain()

	if a.httpSrv != nil {
		httpCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
		if err := a.httpSrv.Shutdown(httpCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
		cancel()
	}

	drainCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	a.lifetime.Drain(drainCtx)
	cancel()

	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("rate limiter close error", "error", err)
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("catalog close error", "error", err)
	}
	_ = a.otelShutdown(context.Background())

	a.gate.Stop()
	a.logger.Info("scratchnotebook stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (catalog.Store, error) {
	switch cfg.CatalogBackend {
	case config.CatalogPostgres:
		return catalog.OpenPostgres(ctx, cfg.DatabaseURL, cfg, logger)
	case config.CatalogSQLite:
		if err := os.MkdirAll(cfg.StorageDir, 0o750); err != nil {
			return nil, fmt.Errorf("catalog: create storage dir %s: %w", cfg.StorageDir, err)
		}
		path := filepath.Join(cfg.StorageDir, "scratch.db")
		return catalog.OpenSQLite(ctx, path, cfg, logger)
	default:
		return nil, fmt.Errorf("catalog: unknown backend %q", cfg.CatalogBackend)
	}
}

// embedderAdapter wraps a public Embedder to satisfy catalog.Embedder.
// Lives here because this is the only file that sees both sides of the
// boundary.
type embedderAdapter struct {
	e Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.e.Embed(ctx, text)
}
func (a *embedderAdapter) Dimensions() int { return a.e.Dimensions() }
func (a *embedderAdapter) Version() string { return a.e.Version() }

var _ catalog.Embedder = (*embedderAdapter)(nil)
