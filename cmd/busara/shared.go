package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jkaninda/busara/internal/agents"
	"github.com/jkaninda/busara/internal/chat"
	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/history"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/llm/anthropic"
	"github.com/jkaninda/busara/internal/llm/gemini"
	"github.com/jkaninda/busara/internal/llm/openai"
	"github.com/jkaninda/busara/internal/observability"
	"github.com/jkaninda/busara/internal/orchestrator"
	"github.com/jkaninda/busara/internal/retrieval"
	"github.com/jkaninda/busara/internal/scraper"
)

// SharedComponents holds all initialized subsystems serve mode requires.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger

	Obs          *observability.Observability
	LLMProvider  llm.Provider
	Registry     *agents.Registry
	Orchestrator *orchestrator.Orchestrator
	Store        *history.Store
	Sweeper      *history.Sweeper
	Searcher     retrieval.Searcher // nil = retrieval disabled.
	Scraper      *scraper.Scraper   // nil = web tool disabled.
	Chat         *chat.Service

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs all common initialization for serve mode.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// LLM provider.
	llmProvider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	logger.Debug("llm provider initialized", slog.String("provider", llmProvider.Name()))

	if obs != nil && obs.Metrics != nil {
		llmProvider = observability.NewInstrumentedProvider(llmProvider, obs.Metrics, obs.TracerOrNil())
	}
	sc.LLMProvider = llmProvider

	// Conversation storage (SQLite default, PostgreSQL optional).
	store, err := history.Open(historyConfig(cfg), logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})

	// Retention sweeper.
	if retention := cfg.Storage.Retention(); retention > 0 {
		sweeper, err := history.NewSweeper(store, retention, cfg.Storage.Schedule(), logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("initializing retention sweeper: %w", err)
		}
		sc.Sweeper = sweeper
	}

	// Agent registry with config overrides.
	registry, err := buildRegistry(cfg)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("building agent registry: %w", err)
	}
	sc.Registry = registry
	logger.Debug("agent registry initialized", slog.Int("agents", len(registry.Types())))

	// Retrieval backend (optional).
	searcher, err := newSearcher(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing retrieval: %w", err)
	}
	sc.Searcher = searcher
	if pg, ok := searcher.(*retrieval.PGSearcher); ok {
		sc.addCleanup(func() {
			if err := pg.Close(); err != nil {
				logger.Error("closing retrieval backend", slog.String("error", err.Error()))
			}
		})
	}

	// Web scraper (optional).
	if cfg.Scraper != nil {
		var opts []scraper.Option
		if obs != nil && obs.Metrics != nil {
			opts = append(opts, scraper.WithMetrics(obs.Metrics))
		}
		sc.Scraper = scraper.New(scraper.Config{
			AllowedDomains:   cfg.Scraper.AllowedDomains,
			MaxResponseBytes: cfg.Scraper.MaxBytes(),
			Timeout:          cfg.Scraper.Timeout(),
			CacheSize:        cfg.Scraper.Capacity(),
			CacheTTL:         cfg.Scraper.CacheTTL(),
		}, logger, opts...)
	}

	// Workflow orchestrator.
	orchCfg := orchestrator.Config{
		DefaultMaxIterations: cfg.Orchestrator.Iterations(),
		MaxConcurrentSteps:   cfg.Orchestrator.Concurrency(),
		StepTimeout:          cfg.Orchestrator.StepTimeout(),
		SlowThreshold:        cfg.Orchestrator.SlowThreshold(),
		ImportantThreshold:   cfg.Orchestrator.ImportantThreshold(),
	}
	if cfg.Orchestrator != nil {
		orchCfg.PlannerModel = cfg.Orchestrator.PlannerModel
		orchCfg.PlannerMaxTokens = cfg.Orchestrator.PlannerMaxTokens
		orchCfg.PlanRetries = cfg.Orchestrator.PlanRetries
		orchCfg.ReplanRetries = cfg.Orchestrator.ReplanRetries
	}

	var orchOpts []orchestrator.Option
	if obs != nil && obs.Metrics != nil {
		orchOpts = append(orchOpts, orchestrator.WithMetrics(orchestrator.NewMetrics(obs.Metrics.Registry)))
	}
	if obs != nil && obs.Tracer != nil {
		orchOpts = append(orchOpts, orchestrator.WithTracer(obs.Tracer.Tracer()))
	}
	sc.Orchestrator = orchestrator.New(
		llm.NewStructuredClient(sc.LLMProvider, logger),
		registry,
		orchCfg,
		logger,
		orchOpts...,
	)

	// Chat service.
	chatOpts := []chat.Option{chat.WithHistory(store)}
	if sc.Searcher != nil {
		chatOpts = append(chatOpts, chat.WithSearcher(sc.Searcher))
	}
	if sc.Scraper != nil {
		chatOpts = append(chatOpts, chat.WithScraper(sc.Scraper))
	}
	if obs != nil && obs.Metrics != nil {
		chatOpts = append(chatOpts, chat.WithMetrics(obs.Metrics))
	}
	sc.Chat = chat.New(sc.LLMProvider, sc.Orchestrator, registry, logger, chatOpts...)

	registerHealthChecks(cfg, sc)

	return sc, nil
}

// historyConfig maps storage config to the history store's settings.
func historyConfig(cfg *config.Config) history.Config {
	hc := history.Config{
		Driver:     cfg.Storage.StorageDriver(),
		SQLitePath: cfg.DatabasePath(),
	}
	if cfg.Storage != nil && cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path != "" {
			hc.SQLitePath = cfg.Storage.SQLite.Path
		}
		hc.JournalMode = cfg.Storage.SQLite.JournalMode
	}
	if cfg.Storage != nil && cfg.Storage.Postgres != nil {
		pg := cfg.Storage.Postgres
		hc.PostgresDSN = pg.DSN
		hc.MaxOpenConns = pg.MaxOpenConns
		hc.MaxIdleConns = pg.MaxIdleConns
		hc.ConnMaxLifetime = time.Duration(pg.ConnMaxLifetimeS) * time.Second
	}
	return hc
}

// buildRegistry applies configured agent overrides to the built-in set.
func buildRegistry(cfg *config.Config) (*agents.Registry, error) {
	base := agents.DefaultRegistry(cfg.Providers.DefaultModel())
	if len(cfg.Agents.Overrides) == 0 {
		return base, nil
	}

	configs := base.List()
	for i, ac := range configs {
		ov, ok := cfg.Agents.Overrides[string(ac.Type)]
		if !ok {
			continue
		}
		if ov.Model != "" {
			configs[i].Model = ov.Model
		}
		if ov.Temperature > 0 {
			configs[i].Temperature = ov.Temperature
		}
		if ov.MaxTokens > 0 {
			configs[i].MaxTokens = ov.MaxTokens
		}
		if ov.SystemPrompt != "" {
			configs[i].SystemPrompt = ov.SystemPrompt
		}
		if len(ov.Keywords) > 0 {
			configs[i].Keywords = ov.Keywords
		}
	}
	return agents.NewRegistry(configs, base.DefaultType())
}

// newSearcher builds the configured retrieval backend, or nil when
// retrieval is disabled.
func newSearcher(cfg *config.Config, logger *slog.Logger) (retrieval.Searcher, error) {
	if cfg.Retrieval == nil {
		return nil, nil
	}
	switch cfg.Retrieval.Backend {
	case "http":
		if cfg.Retrieval.HTTP == nil || cfg.Retrieval.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("retrieval.http.base_url is required")
		}
		return retrieval.NewHTTPSearcher(
			cfg.Retrieval.HTTP.BaseURL,
			cfg.Retrieval.HTTP.APIKey,
			logger,
			retrieval.WithTimeout(cfg.Retrieval.HTTP.Timeout()),
		), nil
	case "pgvector":
		if cfg.Retrieval.PGVector == nil || cfg.Retrieval.PGVector.DSN == "" {
			return nil, fmt.Errorf("retrieval.pgvector.dsn is required")
		}
		return retrieval.NewPGSearcher(
			cfg.Retrieval.PGVector.DSN,
			cfg.Retrieval.PGVector.TableName(),
			logger,
		)
	default:
		return nil, fmt.Errorf("unknown retrieval backend: %q", cfg.Retrieval.Backend)
	}
}

// registerHealthChecks wires dependency probes into the readiness check.
func registerHealthChecks(cfg *config.Config, sc *SharedComponents) {
	if sc.Obs == nil || sc.Obs.Health == nil {
		return
	}
	hc := cfg.Observability.Health
	if hc == nil {
		return
	}
	if hc.IncludeDB && sc.Store != nil {
		sc.Obs.Health.AddCheck("db", sc.Store.Ping)
	}
	if hc.IncludeRetrieval {
		if pg, ok := sc.Searcher.(*retrieval.PGSearcher); ok {
			sc.Obs.Health.AddCheck("retrieval", pg.Ping)
		}
	}
}

// newLLMProvider builds the default provider with an optional fallback chain.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary, err := buildProvider(cfg.Providers.Default, cfg, logger)
	if err != nil {
		return nil, err
	}

	if len(cfg.Providers.Fallback) > 0 {
		providers := []llm.Provider{primary}
		for _, name := range cfg.Providers.Fallback {
			fb, err := buildProvider(name, cfg, logger)
			if err != nil {
				logger.Warn("skipping fallback provider",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			providers = append(providers, fb)
		}
		if len(providers) > 1 {
			return llm.NewFallbackProvider(providers, logger), nil
		}
	}

	return primary, nil
}

// buildProvider creates a single LLM provider by name.
func buildProvider(name string, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch name {
	case "anthropic", "":
		return anthropic.NewClient(
			cfg.Providers.Anthropic.APIKey,
			cfg.Providers.Anthropic.Model,
			logger,
		), nil
	case "openai":
		var opts []openai.Option
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		return openai.NewClient(
			cfg.Providers.OpenAI.APIKey,
			cfg.Providers.OpenAI.Model,
			logger,
			opts...,
		), nil
	case "gemini":
		var opts []gemini.Option
		if cfg.Providers.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.Providers.Gemini.BaseURL))
		}
		return gemini.NewClient(
			cfg.Providers.Gemini.APIKey,
			cfg.Providers.Gemini.Model,
			logger,
			opts...,
		), nil
	case "ollama":
		baseURL := cfg.Providers.Ollama.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return openai.NewClient(
			"",
			cfg.Providers.Ollama.Model,
			logger,
			openai.WithBaseURL(baseURL),
			openai.WithName("ollama"),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}

// apiKeyUsers maps each configured API key to a stable derived user ID.
func apiKeyUsers(keys []string) map[string]string {
	users := make(map[string]string, len(keys))
	for _, key := range keys {
		sum := sha256.Sum256([]byte(key))
		users[key] = "user-" + hex.EncodeToString(sum[:4])
	}
	return users
}
