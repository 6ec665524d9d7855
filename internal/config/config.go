// Package config handles loading and validating Busara configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Busara.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.busara/data. Override: BUSARA_DATA_DIR env var.
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	Agents        AgentsConfig         `json:"agents" yaml:"agents"`
	Orchestrator  *OrchestratorConfig  `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`   // nil = defaults
	Gateway       *GatewayConfig       `json:"gateway,omitempty" yaml:"gateway,omitempty"`             // nil = HTTP API disabled
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = SQLite default (derived from data dir)
	Retrieval     *RetrievalConfig     `json:"retrieval,omitempty" yaml:"retrieval,omitempty"`         // nil = retrieval tool disabled
	Scraper       *ScraperConfig       `json:"scraper,omitempty" yaml:"scraper,omitempty"`             // nil = web tool disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ProvidersConfig selects the LLM backends.
type ProvidersConfig struct {
	Default   string          `json:"default" yaml:"default"`                       // "anthropic", "openai", "gemini", "ollama". Empty = "anthropic".
	Fallback  []string        `json:"fallback,omitempty" yaml:"fallback,omitempty"` // Fallback providers tried in order when default fails.
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic"`
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	Gemini    GeminiConfig    `json:"gemini" yaml:"gemini"`
	Ollama    OllamaConfig    `json:"ollama" yaml:"ollama"`
}

type AnthropicConfig struct {
	APIKey string `json:"api_key" yaml:"api_key"` // Override: ANTHROPIC_API_KEY env var.
	Model  string `json:"model" yaml:"model"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"` // Override: OPENAI_API_KEY env var.
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://api.openai.com.
}

type GeminiConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"` // Override: GEMINI_API_KEY env var.
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://generativelanguage.googleapis.com.
}

type OllamaConfig struct {
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to http://localhost:11434.
}

// DefaultModel returns the model of the selected default provider.
func (p ProvidersConfig) DefaultModel() string {
	switch p.Default {
	case "openai":
		return p.OpenAI.Model
	case "gemini":
		return p.Gemini.Model
	case "ollama":
		return p.Ollama.Model
	default:
		return p.Anthropic.Model
	}
}

// AgentsConfig tunes the built-in agent roster. Keys are agent type names
// ("researcher", "coder", ...). Absent agents keep their built-in settings.
type AgentsConfig struct {
	Overrides map[string]AgentOverride `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// AgentOverride replaces selected fields of a built-in agent definition.
// Zero values leave the built-in value untouched.
type AgentOverride struct {
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  float64  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Keywords     []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// OrchestratorConfig configures the workflow planner and executor.
// When nil, built-in defaults apply.
type OrchestratorConfig struct {
	MaxIterations        int    `json:"max_iterations" yaml:"max_iterations"`                 // Round budget when a plan omits one. Default: 3.
	MaxConcurrentSteps   int    `json:"max_concurrent_steps" yaml:"max_concurrent_steps"`     // Default: 4.
	StepTimeoutSeconds   int    `json:"step_timeout_seconds" yaml:"step_timeout_seconds"`     // Default: 120.
	PlannerModel         string `json:"planner_model,omitempty" yaml:"planner_model,omitempty"` // Default: default agent's model.
	PlannerMaxTokens     int    `json:"planner_max_tokens" yaml:"planner_max_tokens"`         // Default: 2048.
	PlanRetries          int    `json:"plan_retries" yaml:"plan_retries"`                     // Default: 2.
	ReplanRetries        int    `json:"replan_retries" yaml:"replan_retries"`                 // Default: 1.
	SlowThresholdMS      int    `json:"slow_threshold_ms" yaml:"slow_threshold_ms"`           // Default: 5000.
	ImportantThresholdMS int    `json:"important_threshold_ms" yaml:"important_threshold_ms"` // Default: 20000.
}

// StepTimeout returns the per-step timeout with a default of 2m.
func (o *OrchestratorConfig) StepTimeout() time.Duration {
	if o != nil && o.StepTimeoutSeconds > 0 {
		return time.Duration(o.StepTimeoutSeconds) * time.Second
	}
	return 2 * time.Minute
}

// SlowThreshold returns the slow-operation log threshold with a default of 5s.
func (o *OrchestratorConfig) SlowThreshold() time.Duration {
	if o != nil && o.SlowThresholdMS > 0 {
		return time.Duration(o.SlowThresholdMS) * time.Millisecond
	}
	return 5 * time.Second
}

// ImportantThreshold returns the critical-duration log threshold with a default of 20s.
func (o *OrchestratorConfig) ImportantThreshold() time.Duration {
	if o != nil && o.ImportantThresholdMS > 0 {
		return time.Duration(o.ImportantThresholdMS) * time.Millisecond
	}
	return 20 * time.Second
}

// Iterations returns the default round budget with a default of 3.
func (o *OrchestratorConfig) Iterations() int {
	if o != nil && o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return 3
}

// Concurrency returns the max concurrent steps with a default of 4.
func (o *OrchestratorConfig) Concurrency() int {
	if o != nil && o.MaxConcurrentSteps > 0 {
		return o.MaxConcurrentSteps
	}
	return 4
}

// GatewayConfig configures the HTTP API gateway.
type GatewayConfig struct {
	Enabled             bool            `json:"enabled" yaml:"enabled"`
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	EnableDocs          bool            `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64           `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Default: 1 MB.
	APIKeys             []string        `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`         // Additional key via BUSARA_API_KEY env var. Empty = unauthenticated.
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	SSE                 bool            `json:"sse" yaml:"sse"` // Enable SSE streaming endpoint.
	WebSocket           bool            `json:"websocket" yaml:"websocket"`
}

// Addr returns the listen address with a default of ":8080".
func (g *GatewayConfig) Addr() string {
	if g != nil && g.ListenAddr != "" {
		return g.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request size cap with a default of 1 MB.
func (g *GatewayConfig) MaxRequestSize() int64 {
	if g != nil && g.MaxRequestSizeBytes > 0 {
		return g.MaxRequestSizeBytes
	}
	return 1 << 20
}

// RateLimitConfig configures per-client rate limiting for the gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	BurstSize         int `json:"burst_size" yaml:"burst_size"`                   // Default: requests_per_minute.
}

// Burst returns the bucket size, defaulting to the per-minute rate.
func (r RateLimitConfig) Burst() int {
	if r.BurstSize > 0 {
		return r.BurstSize
	}
	return r.RequestsPerMinute
}

// StorageConfig configures conversation history persistence.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver        string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite        *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres      *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
	RetentionDays int                    `json:"retention_days" yaml:"retention_days"`         // Delete conversations older than this. 0 = keep forever.
	SweepSchedule string                 `json:"sweep_schedule" yaml:"sweep_schedule"`         // Cron spec for the retention sweeper. Default: "17 3 * * *".
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// Schedule returns the retention sweep cron spec with a nightly default.
func (s *StorageConfig) Schedule() string {
	if s != nil && s.SweepSchedule != "" {
		return s.SweepSchedule
	}
	return "17 3 * * *"
}

// Retention returns the retention window. 0 = keep forever.
func (s *StorageConfig) Retention() time.Duration {
	if s != nil && s.RetentionDays > 0 {
		return time.Duration(s.RetentionDays) * 24 * time.Hour
	}
	return 0
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"` // Override: BUSARA_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// RetrievalConfig configures the document retrieval tool.
// When nil, agents with the retrieval tool flag run without it.
type RetrievalConfig struct {
	Backend  string                   `json:"backend" yaml:"backend"` // "http" or "pgvector".
	HTTP     *HTTPRetrievalConfig     `json:"http,omitempty" yaml:"http,omitempty"`
	PGVector *PGVectorRetrievalConfig `json:"pgvector,omitempty" yaml:"pgvector,omitempty"`
	MaxResults int                    `json:"max_results" yaml:"max_results"` // Default: 5.
}

// Limit returns the result cap with a default of 5.
func (r *RetrievalConfig) Limit() int {
	if r != nil && r.MaxResults > 0 {
		return r.MaxResults
	}
	return 5
}

// HTTPRetrievalConfig points at an external search service.
type HTTPRetrievalConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Override: BUSARA_RETRIEVAL_API_KEY env var.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`     // Default: 10.
}

// Timeout returns the per-search timeout with a default of 10s.
func (h *HTTPRetrievalConfig) Timeout() time.Duration {
	if h != nil && h.TimeoutSeconds > 0 {
		return time.Duration(h.TimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// PGVectorRetrievalConfig points at a pgvector-enabled PostgreSQL database.
type PGVectorRetrievalConfig struct {
	DSN   string `json:"dsn" yaml:"dsn"`     // Override: BUSARA_RETRIEVAL_DSN env var.
	Table string `json:"table" yaml:"table"` // Default: "documents".
}

// TableName returns the document table with a default of "documents".
func (p *PGVectorRetrievalConfig) TableName() string {
	if p != nil && p.Table != "" {
		return p.Table
	}
	return "documents"
}

// ScraperConfig restricts and caches web page fetches.
// When nil, agents with the web tool flag run without it.
type ScraperConfig struct {
	AllowedDomains   []string `json:"allowed_domains" yaml:"allowed_domains"` // Empty = any public host.
	MaxResponseBytes int64    `json:"max_response_bytes" yaml:"max_response_bytes"` // Default: 2 MB.
	TimeoutSeconds   int      `json:"timeout_seconds" yaml:"timeout_seconds"`       // Default: 15.
	CacheSize        int      `json:"cache_size" yaml:"cache_size"`                 // Entries. Default: 256.
	CacheTTLSeconds  int      `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`   // Default: 300.
}

// MaxBytes returns the response size cap with a default of 2 MB.
func (s *ScraperConfig) MaxBytes() int64 {
	if s != nil && s.MaxResponseBytes > 0 {
		return s.MaxResponseBytes
	}
	return 2 << 20
}

// Timeout returns the fetch timeout with a default of 15s.
func (s *ScraperConfig) Timeout() time.Duration {
	if s != nil && s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return 15 * time.Second
}

// Capacity returns the cache entry cap with a default of 256.
func (s *ScraperConfig) Capacity() int {
	if s != nil && s.CacheSize > 0 {
		return s.CacheSize
	}
	return 256
}

// CacheTTL returns the cache entry lifetime with a default of 5m.
func (s *ScraperConfig) CacheTTL() time.Duration {
	if s != nil && s.CacheTTLSeconds > 0 {
		return time.Duration(s.CacheTTLSeconds) * time.Second
	}
	return 5 * time.Minute
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the exposition path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "busara"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB        bool `json:"include_db" yaml:"include_db"`
	IncludeRetrieval bool `json:"include_retrieval" yaml:"include_retrieval"`
}

// DefaultConfigPath returns the default config file path (~/.busara/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/busara.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".busara", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Provider API keys and gateway keys can be set in the config file or overridden
// by environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()

	// Resolve DataDir default.
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".busara", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variables on top of file values.
// Env vars take precedence over config values.
func (c *Config) applyEnvOverrides() {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		c.Providers.Anthropic.APIKey = envKey
	}
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		c.Providers.OpenAI.APIKey = envKey
	}
	if envKey := os.Getenv("GEMINI_API_KEY"); envKey != "" {
		c.Providers.Gemini.APIKey = envKey
	}
	if envDD := os.Getenv("BUSARA_DATA_DIR"); envDD != "" {
		c.DataDir = envDD
	}
	if envKey := os.Getenv("BUSARA_API_KEY"); envKey != "" {
		if c.Gateway == nil {
			c.Gateway = &GatewayConfig{Enabled: true}
		}
		c.Gateway.APIKeys = append(c.Gateway.APIKeys, envKey)
	}
	if envDSN := os.Getenv("BUSARA_DB_DSN"); envDSN != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = envDSN
	}
	if envKey := os.Getenv("BUSARA_RETRIEVAL_API_KEY"); envKey != "" {
		if c.Retrieval != nil && c.Retrieval.HTTP != nil {
			c.Retrieval.HTTP.APIKey = envKey
		}
	}
	if envDSN := os.Getenv("BUSARA_RETRIEVAL_DSN"); envDSN != "" {
		if c.Retrieval != nil && c.Retrieval.PGVector != nil {
			c.Retrieval.PGVector.DSN = envDSN
		}
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".busara", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "busara.db")
}

func (c *Config) validate() error {
	// Default provider to anthropic for backward compatibility.
	if c.Providers.Default == "" {
		c.Providers.Default = "anthropic"
	}
	if err := c.validateProvider(c.Providers.Default); err != nil {
		return err
	}
	for _, name := range c.Providers.Fallback {
		if err := c.validateProvider(name); err != nil {
			return fmt.Errorf("fallback provider: %w", err)
		}
	}

	// Storage driver validation.
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.Storage.StorageDriver() == "postgres" {
		if c.Storage == nil || c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (or set BUSARA_DB_DSN)")
		}
	}
	if c.Storage != nil && c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days must not be negative")
	}

	// Retrieval backend validation.
	if c.Retrieval != nil {
		switch c.Retrieval.Backend {
		case "http":
			if c.Retrieval.HTTP == nil || c.Retrieval.HTTP.BaseURL == "" {
				return fmt.Errorf("retrieval.http.base_url is required for the http backend")
			}
		case "pgvector":
			if c.Retrieval.PGVector == nil || c.Retrieval.PGVector.DSN == "" {
				return fmt.Errorf("retrieval.pgvector.dsn is required for the pgvector backend (or set BUSARA_RETRIEVAL_DSN)")
			}
		default:
			return fmt.Errorf("retrieval.backend %q is not supported (use http or pgvector)", c.Retrieval.Backend)
		}
	}

	// Gateway validation.
	if c.Gateway != nil && c.Gateway.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("gateway.rate_limit.requests_per_minute must not be negative")
	}

	// Agent overrides must reference sane values.
	for name, ov := range c.Agents.Overrides {
		if ov.Temperature < 0 || ov.Temperature > 2 {
			return fmt.Errorf("agents.overrides.%s.temperature must be between 0 and 2", name)
		}
		if ov.MaxTokens < 0 {
			return fmt.Errorf("agents.overrides.%s.max_tokens must not be negative", name)
		}
	}

	return nil
}

// validateProvider checks that the named LLM provider has the required fields.
func (c *Config) validateProvider(name string) error {
	switch name {
	case "anthropic":
		if c.Providers.Anthropic.Model == "" {
			return fmt.Errorf("providers.anthropic.model is required")
		}
		if c.Providers.Anthropic.APIKey == "" {
			return fmt.Errorf("providers.anthropic.api_key is required (set ANTHROPIC_API_KEY env var)")
		}
	case "openai":
		if c.Providers.OpenAI.Model == "" {
			return fmt.Errorf("providers.openai.model is required")
		}
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("providers.openai.api_key is required (set OPENAI_API_KEY env var)")
		}
	case "gemini":
		if c.Providers.Gemini.Model == "" {
			return fmt.Errorf("providers.gemini.model is required")
		}
		if c.Providers.Gemini.APIKey == "" {
			return fmt.Errorf("providers.gemini.api_key is required (set GEMINI_API_KEY env var)")
		}
	case "ollama":
		if c.Providers.Ollama.Model == "" {
			return fmt.Errorf("providers.ollama.model is required")
		}
	default:
		return fmt.Errorf("providers.default %q is not supported (use anthropic, openai, gemini, or ollama)", name)
	}
	return nil
}
