// Package suggest provides AI text suggestion generation for playbook runs.
//
// Defines a Provider interface and an OpenAI implementation. The interface
// allows swapping providers without changing consumers; the draft
// generation path is the only caller.
package suggest

import (
	"context"

	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/rules"
)

// Request carries everything the provider needs to draft one suggestion.
type Request struct {
	EntityID     model.EntityID
	CurrentValue string
	PlaybookName string
	TargetField  string
	Rules        rules.RuleSet
}

// Provider generates a raw field suggestion for one entity. An empty
// suggestion with a nil error means the provider declined — the entity
// will be skipped at apply time, which is a normal outcome.
type Provider interface {
	Suggest(ctx context.Context, req Request) (string, error)
}

// NoopProvider declines every request. Used when no AI provider is
// configured; previews still compute scope and rules binding, they just
// produce no suggestions.
type NoopProvider struct{}

// Suggest always declines.
func (NoopProvider) Suggest(context.Context, Request) (string, error) { return "", nil }
