// Package shopify implements the engine's two external storefront
// interfaces: the read-only entity store that scope resolution queries,
// and the write target the apply executor updates.
//
// AdminClient talks to the Shopify Admin REST API. MemoryStore is an
// in-memory implementation for development and tests.
package shopify

import (
	"context"
	"strings"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// EntityStore is the read side of the storefront: criteria queries and
// field reads. The engine never writes through this interface.
type EntityStore interface {
	QueryMatching(ctx context.Context, criteria model.Criteria) ([]model.EntityID, error)
	ReadField(ctx context.Context, id model.EntityID, field string) (string, error)
}

// matches evaluates one criteria condition against a field value. Shared
// by both implementations so dev mode and production agree on semantics.
func matches(value string, c model.Criteria) bool {
	switch c.Condition {
	case model.CondMissing:
		return strings.TrimSpace(value) == ""
	case model.CondEquals:
		return value == c.Value
	case model.CondContains:
		return strings.Contains(value, c.Value)
	case model.CondNotContains:
		return !strings.Contains(value, c.Value)
	default:
		return false
	}
}
