package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityID identifies a store entity (product, collection, page) in the
// merchant's catalog. Shopify numeric IDs are carried as strings so the
// engine stays agnostic of the platform's ID scheme.
type EntityID string

// MatchCondition is the comparison a playbook applies to its target field
// when deciding whether an entity qualifies.
type MatchCondition string

const (
	// CondMissing matches entities whose field is empty or absent.
	CondMissing MatchCondition = "missing"
	// CondEquals matches entities whose field equals Value exactly.
	CondEquals MatchCondition = "equals"
	// CondContains matches entities whose field contains Value as a substring.
	CondContains MatchCondition = "contains"
	// CondNotContains matches entities whose field does not contain Value.
	CondNotContains MatchCondition = "not_contains"
)

// Criteria describes which entities a playbook applies to. It is evaluated
// live against the entity store every time scope is resolved — the engine
// never caches a materialized entity list across requests.
type Criteria struct {
	Field     string         `json:"field"`
	Condition MatchCondition `json:"condition"`
	Value     string         `json:"value,omitempty"`
}

// Playbook is a named bulk-edit operation: matching criteria plus the
// field the generated suggestions are written to.
//
// Rules is the user's current rule configuration in its raw, loosely-typed
// form. It is normalized (and hashed) by the rules engine at use time —
// apply validation recomputes the hash from this stored value, which is
// how a rules edit between preview and apply is detected.
type Playbook struct {
	ID          uuid.UUID      `json:"id"`
	ProjectID   uuid.UUID      `json:"project_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	TargetField string         `json:"target_field"`
	Criteria    Criteria       `json:"criteria"`
	Rules       map[string]any `json:"rules,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ValidateCriteria rejects criteria shapes the scope resolver cannot evaluate.
func ValidateCriteria(c Criteria) error {
	if c.Field == "" {
		return fmt.Errorf("criteria field must not be empty")
	}
	switch c.Condition {
	case CondMissing:
		return nil
	case CondEquals, CondContains, CondNotContains:
		if c.Value == "" {
			return fmt.Errorf("criteria condition %q requires a value", c.Condition)
		}
		return nil
	default:
		return fmt.Errorf("unknown criteria condition %q", c.Condition)
	}
}
