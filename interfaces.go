package seoforge

import "context"

// SuggestionRequest is the context handed to a SuggestionProvider for one
// entity. Rule constraints are applied by the engine after the provider
// returns; providers see only the descriptive fields.
type SuggestionRequest struct {
	EntityID     string
	CurrentValue string
	PlaybookName string
	TargetField  string
}

// SuggestionProvider generates a suggested field value for one entity.
// When provided via WithSuggestionProvider, replaces the auto-detected
// OpenAI/noop provider. Returning ("", nil) declines the entity — it is
// skipped at apply time rather than treated as a failure.
type SuggestionProvider interface {
	Suggest(ctx context.Context, req SuggestionRequest) (string, error)
}

// EntityStore is the read side of the storefront: criteria queries plus
// single-field reads. When provided via WithEntityStore, replaces the
// Shopify Admin client (or the in-memory dev store).
type EntityStore interface {
	// QueryMatching returns the IDs of entities whose field matches the
	// condition ("missing", "equals", "contains", "not_contains").
	QueryMatching(ctx context.Context, field, condition, value string) ([]string, error)
	ReadField(ctx context.Context, entityID, field string) (string, error)
}

// WriteTarget receives the field updates produced by apply runs. When
// provided via WithWriteTarget, replaces the Shopify Admin client (or the
// in-memory dev store).
type WriteTarget interface {
	WriteField(ctx context.Context, entityID, field, value string) error
}
