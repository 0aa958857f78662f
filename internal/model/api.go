package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error. Recovery, when present, is the single
// recommended next step for the caller (regenerate preview, recalculate
// estimate, upgrade plan, wait for the monthly reset).
type ErrorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Recovery string `json:"recovery,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// Engine-specific error codes. These guard the apply phase: any of them
// aborts the whole run before a single entity is written.
const (
	ErrCodeInvalidRuleConfig = "INVALID_RULE_CONFIG"
	ErrCodeScopeInvalid      = "SCOPE_INVALID"
	ErrCodeRulesChanged      = "RULES_CHANGED"
	ErrCodeDraftNotFound     = "DRAFT_NOT_FOUND"
	ErrCodeDraftExpired      = "DRAFT_EXPIRED"
	ErrCodeDraftFailed       = "DRAFT_FAILED"
	ErrCodeQuotaExceeded     = "AI_QUOTA_EXCEEDED"
)

// PreviewRequest is the request body for POST /v1/playbooks/{playbook_id}/preview.
// Rules arrive as a loosely-typed object; the rules engine normalizes them
// into a canonical RuleSet before anything is hashed.
type PreviewRequest struct {
	Rules      map[string]any `json:"rules"`
	SampleSize int            `json:"sample_size,omitempty"`
}

// PreviewItem is one sampled suggestion returned by preview.
type PreviewItem struct {
	EntityID        EntityID `json:"entity_id"`
	CurrentValue    string   `json:"current_value"`
	RawSuggestion   string   `json:"raw_suggestion"`
	FinalSuggestion string   `json:"final_suggestion"`
	Warnings        []string `json:"warnings,omitempty"`
}

// PreviewResponse binds the preview to the exact scope and rules it was
// computed over. The caller must echo ScopeID and RulesHash back on apply.
type PreviewResponse struct {
	PlaybookID  uuid.UUID     `json:"playbook_id"`
	ScopeID     string        `json:"scope_id"`
	RulesHash   string        `json:"rules_hash"`
	DraftKey    string        `json:"draft_key"`
	DraftState  string        `json:"draft_state"`
	ScopeSize   int           `json:"scope_size"`
	Samples     []PreviewItem `json:"samples"`
	QuotaStatus QuotaStatus   `json:"quota_status"`
}

// EstimateResponse reports the live affected-entity count and quota headroom.
type EstimateResponse struct {
	PlaybookID    uuid.UUID   `json:"playbook_id"`
	DraftKey      string      `json:"draft_key"`
	DraftState    string      `json:"draft_state"`
	AffectedCount int         `json:"affected_count"`
	ScopeDrifted  bool        `json:"scope_drifted"`
	QuotaStatus   QuotaStatus `json:"quota_status"`
}

// ApplyRequest is the request body for POST /v1/playbooks/{playbook_id}/apply.
// ScopeID and RulesHash are required: they are the caller's claim about what
// it previewed, and the validation gate rejects the run if either has drifted.
type ApplyRequest struct {
	DraftKey  string `json:"draft_key"`
	ScopeID   string `json:"scope_id"`
	RulesHash string `json:"rules_hash"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	APIToken  string    `json:"api_token"`
	ProjectID uuid.UUID `json:"project_id"`
	Role      Role      `json:"role"`
}

// AuthTokenResponse carries the issued JWT.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Drafts   int    `json:"cached_drafts"`
	Uptime   int64  `json:"uptime_seconds"`
}

// QuotaStatus is the evaluated quota position included in preview/estimate
// responses and the usage endpoint.
type QuotaStatus struct {
	Status       string  `json:"status"` // "allowed", "warning", or "blocked"
	Reason       string  `json:"reason,omitempty"`
	UsagePercent float64 `json:"usage_percent"`
	UsedThisMonth int    `json:"used_this_month"`
	MonthlyLimit int     `json:"monthly_limit"` // 0 = unlimited
}
