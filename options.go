package seoforge

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	logger      *slog.Logger
	version     string
	provider    SuggestionProvider
	entityStore EntityStore
	writeTarget WriteTarget
}

// WithPort overrides the TCP port from config (SEOFORGE_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithSuggestionProvider replaces the auto-detected suggestion provider
// (OpenAI/noop).
func WithSuggestionProvider(p SuggestionProvider) Option {
	return func(o *resolvedOptions) { o.provider = p }
}

// WithEntityStore replaces the storefront read side. Use together with
// WithWriteTarget to point the engine at a platform other than Shopify.
func WithEntityStore(s EntityStore) Option {
	return func(o *resolvedOptions) { o.entityStore = s }
}

// WithWriteTarget replaces the storefront write side.
func WithWriteTarget(t WriteTarget) Option {
	return func(o *resolvedOptions) { o.writeTarget = t }
}
