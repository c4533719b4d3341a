// Package server implements the HTTP/SSE transport for the scratch
// notebook: bearer-token identity resolution, request logging and tracing,
// and the JSON error envelope shared with the MCP transport.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/scratchnotebook/internal/ctxutil"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
	"github.com/ashita-ai/scratchnotebook/internal/gate"
	"github.com/ashita-ai/scratchnotebook/internal/identity"
	"github.com/ashita-ai/scratchnotebook/internal/ratelimit"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// requestIDMiddleware assigns a unique request ID to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each request with structured fields.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		}
		if tid := traceIDFromContext(r.Context()); tid != "" {
			attrs = append(attrs, "trace_id", tid)
		}
		if tenant := ctxutil.TenantIDFromContext(r.Context()); tenant != "" {
			attrs = append(attrs, "tenant_id", tenant)
		}

		level := slog.LevelInfo
		if wrapped.statusCode >= 500 {
			level = slog.LevelError
		} else if wrapped.statusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request", attrs...)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

var (
	tracer    = otel.Tracer("scratchnotebook/http")
	httpMeter = otel.GetMeterProvider().Meter("scratchnotebook/http")
)

// tracingMiddleware creates an OTEL span for each HTTP request
// and records request count and duration metrics.
func tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
				attribute.String("http.request_id", RequestIDFromContext(r.Context())),
			),
		)
		defer span.End()

		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		statusStr := strconv.Itoa(wrapped.statusCode)

		span.SetAttributes(attribute.Int("http.status_code", wrapped.statusCode))

		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.String("http.status_code", statusStr),
		}
		if tenant := ctxutil.TenantIDFromContext(ctx); tenant != "" {
			span.SetAttributes(attribute.String("scratchnotebook.tenant_id", tenant))
			attrs = append(attrs, attribute.String("scratchnotebook.tenant_id", tenant))
		}

		// Record metrics (best-effort, instruments lazily created).
		if counter, err := httpMeter.Int64Counter("http.server.request_count"); err == nil {
			counter.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
		}
		if hist, err := httpMeter.Float64Histogram("http.server.duration",
			otelmetric.WithUnit("ms")); err == nil {
			hist.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(attrs...))
		}
	})
}

// traceIDFromContext extracts the OTEL trace ID from the context, if any.
func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// gateMiddleware rejects new requests once the shutdown gate has left
// Running, mapping the resulting domainerr.Unavailable to 503 (spec §4.F).
// /health stays reachable during DRAINING so an orchestrator can still
// distinguish "not accepting new work" from "process is dead".
func gateMiddleware(g *gate.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if err := g.Allow(); err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the bearer token against resolver and populates
// the context with the resulting principal. When resolver is disabled,
// every request runs as the configured default tenant. Skips the health
// endpoint, which must stay reachable for orchestrator liveness probes.
func authMiddleware(resolver *identity.Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if !resolver.Enabled() {
			ctx := ctxutil.WithPrincipal(r.Context(), &identity.Principal{TenantID: resolver.DefaultTenant()})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, r, domainerr.New(domainerr.Unauthorized, "missing authorization header"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, r, domainerr.New(domainerr.Unauthorized, "invalid authorization format"))
			return
		}

		principal, err := resolver.Resolve(parts[1])
		if err != nil {
			writeError(w, r, domainerr.New(domainerr.Unauthorized, "invalid or expired token"))
			return
		}

		ctx := ctxutil.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoveryMiddleware turns a panic in a downstream handler into a 500
// response instead of taking down the whole HTTP server.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered", "error", rec, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()))
				writeError(w, r, domainerr.New(domainerr.Internal, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware throttles per-tenant, keyed by prefix so the MCP
// and SSE mounts get independent budgets from the same Limiter. A Limiter
// error fails open per its documented contract.
func rateLimitMiddleware(limiter ratelimit.Limiter, prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := ctxutil.TenantIDFromContext(r.Context())
			key := prefix + ":" + tenant
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				writeError(w, r, domainerr.New(domainerr.CapacityLimitReached, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// httpStatusFor maps a domain error code onto the wire status the spec
// requires, keeping the HTTP transport and the MCP error envelope on the
// same taxonomy.
func httpStatusFor(code domainerr.Code) int {
	switch code {
	case domainerr.NotFound:
		return http.StatusNotFound
	case domainerr.InvalidID, domainerr.InvalidIndex, domainerr.ValidationError, domainerr.ConfigError:
		return http.StatusBadRequest
	case domainerr.ValidationTimeout:
		return http.StatusRequestTimeout
	case domainerr.CapacityLimitReached, domainerr.Conflict:
		return http.StatusConflict
	case domainerr.Unauthorized:
		return http.StatusUnauthorized
	case domainerr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": data,
		"meta": responseMeta(r),
	})
}

// writeError writes err as the standard {error:{code,message,details?},
// meta} envelope, mapping non-domain errors to INTERNAL_ERROR.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	derr, ok := domainerr.As(err)
	if !ok {
		derr = domainerr.New(domainerr.Internal, err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusFor(derr.Code))
	body := map[string]any{
		"code":    string(derr.Code),
		"message": derr.Message,
	}
	if len(derr.Details) > 0 {
		body["details"] = derr.Details
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": body,
		"meta":  responseMeta(r),
	})
}

func responseMeta(r *http.Request) map[string]any {
	return map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
}
