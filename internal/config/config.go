// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

// EvictionPolicy selects the lifecycle controller's capacity-enforcement mode.
type EvictionPolicy string

const (
	EvictionDiscard EvictionPolicy = "discard"
	EvictionFail    EvictionPolicy = "fail"
	EvictionPreempt EvictionPolicy = "preempt"
)

// CatalogBackend selects the storage engine behind internal/catalog.
type CatalogBackend string

const (
	CatalogPostgres CatalogBackend = "postgres"
	CatalogSQLite   CatalogBackend = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Storage.
	StorageDir     string // root for the embedded migration bundle and the sqlite backend's data file.
	CatalogBackend CatalogBackend
	DatabaseURL    string // Postgres DSN; only used when CatalogBackend == postgres.

	// Capacity and eviction (0 = unlimited for the three limits).
	MaxScratchpads   int
	MaxCellsPerPad   int
	MaxCellBytes     int
	EvictionPolicy   EvictionPolicy
	PreemptAge       time.Duration
	PreemptInterval  time.Duration

	// Validation.
	ValidationRequestTimeout time.Duration
	ValidationWorkers        int

	// Shutdown.
	ShutdownTimeout time.Duration

	// Transports.
	EnableStdio       bool
	EnableHTTP        bool
	EnableSSE         bool
	EnableMetrics     bool
	HTTPHost          string
	HTTPPort          int
	HTTPSocketPath    string
	HTTPPath          string
	SSEPath           string
	MetricsPath       string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	// Auth.
	EnableAuth    bool
	TokenTable    map[string]TokenEntry // token -> {principal, tenant_id}
	tenantOrder   []string              // distinct tenant ids in SCRATCH_AUTH_TOKENS order
	DefaultTenant string

	// Semantic search.
	EnableSemanticSearch bool
	EmbeddingModel       string
	EmbeddingDevice      string
	EmbeddingBatchSize   int
	EmbeddingWorkers     int
	SemanticSearchLimit  int
	EmbeddingDimensions  int
	OpenAIAPIKey         string

	// Rate limiting (per-tenant, per-mount token bucket).
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Ambient.
	LogLevel     string
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// TokenEntry is a single row of the static bearer-token registry.
type TokenEntry struct {
	Principal string
	TenantID  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	preemptAge, err := envTimeString("SCRATCH_PREEMPT_AGE", "24h", time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("config: SCRATCH_PREEMPT_AGE: %w", err)
	}
	preemptInterval, err := envTimeString("SCRATCH_PREEMPT_INTERVAL", "10m", time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("config: SCRATCH_PREEMPT_INTERVAL: %w", err)
	}
	validationTimeout, err := envTimeString("SCRATCH_VALIDATION_REQUEST_TIMEOUT", "5s", time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("config: SCRATCH_VALIDATION_REQUEST_TIMEOUT: %w", err)
	}
	shutdownTimeout, err := envTimeString("SCRATCH_SHUTDOWN_TIMEOUT", "5s", time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("config: SCRATCH_SHUTDOWN_TIMEOUT: %w", err)
	}

	tokenTable, tenantOrder, err := parseTokenTable(envStr("SCRATCH_AUTH_TOKENS", ""))
	if err != nil {
		return Config{}, fmt.Errorf("config: SCRATCH_AUTH_TOKENS: %w", err)
	}

	cfg := Config{
		StorageDir:     envStr("SCRATCH_STORAGE_DIR", "./data"),
		CatalogBackend: CatalogBackend(envStr("SCRATCH_CATALOG_BACKEND", string(CatalogSQLite))),
		DatabaseURL:    envStr("DATABASE_URL", ""),

		MaxScratchpads:  envInt("SCRATCH_MAX_SCRATCHPADS", 0),
		MaxCellsPerPad:  envInt("SCRATCH_MAX_CELLS_PER_PAD", 0),
		MaxCellBytes:    envInt("SCRATCH_MAX_CELL_BYTES", 1024*1024),
		EvictionPolicy:  EvictionPolicy(envStr("SCRATCH_EVICTION_POLICY", string(EvictionFail))),
		PreemptAge:      preemptAge,
		PreemptInterval: preemptInterval,

		ValidationRequestTimeout: validationTimeout,
		ValidationWorkers:        envInt("SCRATCH_VALIDATION_WORKERS", 0),

		ShutdownTimeout: shutdownTimeout,

		EnableStdio:    envBool("SCRATCH_ENABLE_STDIO", true),
		EnableHTTP:     envBool("SCRATCH_ENABLE_HTTP", false),
		EnableSSE:      envBool("SCRATCH_ENABLE_SSE", false),
		EnableMetrics:  envBool("SCRATCH_ENABLE_METRICS", false),
		HTTPHost:       envStr("SCRATCH_HTTP_HOST", "127.0.0.1"),
		HTTPPort:       envInt("SCRATCH_HTTP_PORT", 8080),
		HTTPSocketPath: envStr("SCRATCH_HTTP_SOCKET_PATH", ""),
		HTTPPath:       envStr("SCRATCH_HTTP_PATH", "/http"),
		SSEPath:        envStr("SCRATCH_SSE_PATH", "/sse"),
		MetricsPath:    envStr("SCRATCH_METRICS_PATH", "/metrics"),
		ReadTimeout:    envDuration("SCRATCH_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   envDuration("SCRATCH_WRITE_TIMEOUT", 30*time.Second),

		EnableAuth:    envBool("SCRATCH_ENABLE_AUTH", false),
		TokenTable:    tokenTable,
		tenantOrder:   tenantOrder,
		DefaultTenant: envStr("SCRATCH_DEFAULT_TENANT", "default"),

		EnableSemanticSearch: envBool("SCRATCH_ENABLE_SEMANTIC_SEARCH", true),
		EmbeddingModel:       envStr("SCRATCH_EMBEDDING_MODEL", "noop"),
		EmbeddingDevice:      envStr("SCRATCH_EMBEDDING_DEVICE", "cpu"),
		EmbeddingBatchSize:   envInt("SCRATCH_EMBEDDING_BATCH_SIZE", 16),
		EmbeddingWorkers:     envInt("SCRATCH_EMBEDDING_WORKERS", 0),
		SemanticSearchLimit:  envInt("SCRATCH_SEMANTIC_SEARCH_LIMIT", 10),
		EmbeddingDimensions:  envInt("SCRATCH_EMBEDDING_DIMENSIONS", 384),
		OpenAIAPIKey:         envStr("OPENAI_API_KEY", ""),

		RateLimitEnabled: envBool("SCRATCH_RATE_LIMIT_ENABLED", false),
		RateLimitRPS:     envFloat("SCRATCH_RATE_LIMIT_RPS", 10),
		RateLimitBurst:   envInt("SCRATCH_RATE_LIMIT_BURST", 20),

		LogLevel:     envStr("SCRATCH_LOG_LEVEL", "info"),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "scratchnotebook"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, domainerr.New(domainerr.ConfigError, err.Error())
	}
	return cfg, nil
}

// Validate checks that required configuration is present and internally
// consistent, failing loudly before any resource is opened; Load reports a
// Validate failure as a CONFIG_ERROR domain error.
func (c Config) Validate() error {
	switch c.EvictionPolicy {
	case EvictionDiscard, EvictionFail, EvictionPreempt:
	default:
		return fmt.Errorf("config: SCRATCH_EVICTION_POLICY must be one of discard, fail, preempt (got %q)", c.EvictionPolicy)
	}
	switch c.CatalogBackend {
	case CatalogPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when SCRATCH_CATALOG_BACKEND=postgres")
		}
	case CatalogSQLite:
	default:
		return fmt.Errorf("config: SCRATCH_CATALOG_BACKEND must be postgres or sqlite (got %q)", c.CatalogBackend)
	}
	if c.MaxScratchpads < 0 || c.MaxCellsPerPad < 0 || c.MaxCellBytes < 0 {
		return fmt.Errorf("config: capacity limits must be non-negative (0 means unlimited)")
	}
	if c.EnableMetrics && !c.EnableHTTP {
		return fmt.Errorf("config: SCRATCH_ENABLE_METRICS requires SCRATCH_ENABLE_HTTP")
	}
	if c.EnableSSE && !c.EnableHTTP {
		return fmt.Errorf("config: SCRATCH_ENABLE_SSE requires SCRATCH_ENABLE_HTTP")
	}
	if c.EnableHTTP && c.HTTPPath == c.SSEPath {
		return fmt.Errorf("config: SCRATCH_HTTP_PATH and SCRATCH_SSE_PATH must differ")
	}
	if c.EnableAuth && len(c.TokenTable) == 0 {
		return fmt.Errorf("config: SCRATCH_ENABLE_AUTH requires at least one entry in SCRATCH_AUTH_TOKENS")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: SCRATCH_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: SCRATCH_RATE_LIMIT_RPS and SCRATCH_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

var timeStringRe = regexp.MustCompile(`^(\d+)(s|m|h)?$`)

// envTimeString parses spec §6.5's `\d+(s|m|h)?` time-string format, applying
// defaultUnit when the value carries no suffix. Falls back to defaultVal
// (itself parsed with the same rule) when the env var is unset.
func envTimeString(key, defaultVal string, defaultUnit time.Duration) (time.Duration, error) {
	raw := envStr(key, defaultVal)
	return parseTimeString(raw, defaultUnit)
}

func parseTimeString(raw string, defaultUnit time.Duration) (time.Duration, error) {
	m := timeStringRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("invalid time string %q, want \\d+(s|m|h)?", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time string %q: %w", raw, err)
	}
	unit := defaultUnit
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	}
	return time.Duration(n) * unit, nil
}

// parseTokenTable parses a "principal1:token1,principal2:token2" registry
// string into a token->entry lookup table, matching
// original_source/scratch_notebook/auth.py's TokenRecord shape. The token
// itself is the map key so lookups at request time are O(1).
func parseTokenTable(raw string) (map[string]TokenEntry, []string, error) {
	table := make(map[string]TokenEntry)
	var order []string
	seen := make(map[string]bool)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return table, order, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, nil, fmt.Errorf("malformed entry %q, want principal:token", entry)
		}
		table[parts[1]] = TokenEntry{Principal: parts[0], TenantID: parts[0]}
		if !seen[parts[0]] {
			seen[parts[0]] = true
			order = append(order, parts[0])
		}
	}
	return table, order, nil
}

// ConfiguredTenants returns the distinct tenant IDs in the token table, in
// the order they first appeared in SCRATCH_AUTH_TOKENS — the "CLI order"
// spec §4.A's first-enable migration rewrites the implicit-default tenant to.
func (c Config) ConfiguredTenants() []string {
	return c.tenantOrder
}
