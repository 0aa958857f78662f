// Package seoforge is the public API for embedding the playbook engine server.
//
// Platform and plugin consumers import this package to construct and extend
// the server without forking it:
//
//	app, err := seoforge.New(
//	    seoforge.WithVersion(version),
//	    seoforge.WithLogger(logger),
//	    seoforge.WithSuggestionProvider(myProvider{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: seoforge (root) imports
// internal/*, but internal/* never imports seoforge (root). Public extension
// interfaces use plain strings instead of internal types; the adapters that
// bridge the two sides live here because this is the only file that sees
// both sides of the boundary.
package seoforge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/seoforge-ai/seoforge/internal/apply"
	"github.com/seoforge-ai/seoforge/internal/auth"
	"github.com/seoforge-ai/seoforge/internal/config"
	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/quota"
	"github.com/seoforge-ai/seoforge/internal/ratelimit"
	"github.com/seoforge-ai/seoforge/internal/server"
	"github.com/seoforge-ai/seoforge/internal/service/playbook"
	"github.com/seoforge-ai/seoforge/internal/shopify"
	"github.com/seoforge-ai/seoforge/internal/storage"
	"github.com/seoforge-ai/seoforge/internal/suggest"
	"github.com/seoforge-ai/seoforge/internal/telemetry"
	"github.com/seoforge-ai/seoforge/migrations"
)

// App is the server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	drafts       *draft.Store
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the server. It connects to the database, runs migrations,
// wires all subsystems, and returns a ready-to-run App. It does NOT start
// any goroutines or accept HTTP connections — call Run().
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
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("seoforge starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Storefront read and write sides. Option overrides take priority;
	// otherwise the Shopify Admin client when a token is configured, else
	// the in-memory dev store (which serves both sides).
	entities, target, err := newStorefront(cfg, o, logger)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, err
	}

	var provider suggest.Provider
	if o.provider != nil {
		provider = &providerAdapter{p: o.provider}
	} else {
		provider = newSuggestionProvider(cfg, logger)
	}

	drafts := draft.NewStore(cfg.DraftTTL, logger)
	executor := apply.New(target, cfg.ApplyWriteCap, logger)
	ledger := quota.New(db, logger)

	svc := playbook.New(playbook.Config{
		Entities:   entities,
		Provider:   provider,
		Drafts:     drafts,
		Executor:   executor,
		Ledger:     ledger,
		Audit:      db,
		Logger:     logger,
		GenWorkers: cfg.GenWorkers,
	})

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitPerSecond, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		PlaybookSvc:         svc,
		Drafts:              drafts,
		Logger:              logger,
		Limiter:             limiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		APIToken:            cfg.APIToken,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		drafts:       drafts,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then releases the limiter, the
// database pool, and the OTEL provider. Cached drafts are in-memory only
// and simply discarded.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("seoforge shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("seoforge stopped")
	return nil
}

// newStorefront selects the entity store and write target implementations.
func newStorefront(cfg config.Config, o resolvedOptions, logger *slog.Logger) (shopify.EntityStore, apply.WriteTarget, error) {
	var entities shopify.EntityStore
	var target apply.WriteTarget

	switch {
	case cfg.ShopifyToken != "":
		client, err := shopify.NewAdminClient(cfg.ShopifyStoreURL, cfg.ShopifyToken)
		if err != nil {
			return nil, nil, fmt.Errorf("shopify: %w", err)
		}
		entities, target = client, client
		logger.Info("storefront: shopify admin api", "store", cfg.ShopifyStoreURL)
	default:
		mem := shopify.NewMemoryStore()
		entities, target = mem, mem
		logger.Warn("storefront: in-memory store (no SHOPIFY_ACCESS_TOKEN, not for production)")
	}

	if o.entityStore != nil {
		entities = &entityStoreAdapter{s: o.entityStore}
		logger.Info("storefront: external entity store override")
	}
	if o.writeTarget != nil {
		target = &writeTargetAdapter{t: o.writeTarget}
		logger.Info("storefront: external write target override")
	}
	return entities, target, nil
}

// newSuggestionProvider creates a suggestion provider based on configuration.
// Provider selection: "openai", "noop", or "auto" (default). Auto mode uses
// OpenAI when a key is present, else noop (every entity is skipped).
func newSuggestionProvider(cfg config.Config, logger *slog.Logger) suggest.Provider {
	switch cfg.SuggestProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when SEOFORGE_SUGGEST_PROVIDER=openai")
			return suggest.NoopProvider{}
		}
		logger.Info("suggestion provider: openai", "model", cfg.OpenAIModel)
		p, err := suggest.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return suggest.NoopProvider{}
		}
		return p

	case "noop":
		logger.Info("suggestion provider: noop (all entities will be skipped)")
		return suggest.NoopProvider{}

	case "auto":
		fallthrough
	default:
		if cfg.OpenAIAPIKey != "" {
			logger.Info("suggestion provider: openai (auto-detected)", "model", cfg.OpenAIModel)
			p, err := suggest.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return suggest.NoopProvider{}
			}
			return p
		}
		logger.Warn("no suggestion provider available, using noop (all entities will be skipped)")
		return suggest.NoopProvider{}
	}
}

// ── Public/internal adapters ──────────────────────────────────────────────

type providerAdapter struct {
	p SuggestionProvider
}

func (a *providerAdapter) Suggest(ctx context.Context, req suggest.Request) (string, error) {
	return a.p.Suggest(ctx, SuggestionRequest{
		EntityID:     string(req.EntityID),
		CurrentValue: req.CurrentValue,
		PlaybookName: req.PlaybookName,
		TargetField:  req.TargetField,
	})
}

type entityStoreAdapter struct {
	s EntityStore
}

func (a *entityStoreAdapter) QueryMatching(ctx context.Context, criteria model.Criteria) ([]model.EntityID, error) {
	ids, err := a.s.QueryMatching(ctx, criteria.Field, string(criteria.Condition), criteria.Value)
	if err != nil {
		return nil, err
	}
	out := make([]model.EntityID, len(ids))
	for i, id := range ids {
		out[i] = model.EntityID(id)
	}
	return out, nil
}

func (a *entityStoreAdapter) ReadField(ctx context.Context, id model.EntityID, field string) (string, error) {
	return a.s.ReadField(ctx, string(id), field)
}

type writeTargetAdapter struct {
	t WriteTarget
}

func (a *writeTargetAdapter) WriteField(ctx context.Context, id model.EntityID, field, value string) error {
	return a.t.WriteField(ctx, string(id), field, value)
}
