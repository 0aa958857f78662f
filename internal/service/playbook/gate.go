package playbook

import (
	"fmt"
	"time"

	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
)

// GateError is a validation-gate rejection. Any GateError aborts the whole
// apply before a single entity is touched; Recovery is the one recommended
// next step for the caller.
type GateError struct {
	Code            string
	Message         string
	Recovery        string
	ExpectedScopeID string // set for SCOPE_INVALID: the freshly computed id
	ProvidedScopeID string // set for SCOPE_INVALID: the stale id the caller sent
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// validateForApply is the all-or-nothing gate in front of the executor.
//
// Check order is deliberate: drift checks run before draft-existence
// checks, so a caller whose world has moved on is told about the drift
// (with both scope ids) rather than getting a bare "not found" for a
// draft that was evicted precisely because the world moved.
func validateForApply(store *draft.Store, key draft.Key, currentScopeID, currentRulesHash string, now time.Time) (*draft.Draft, *GateError) {
	if currentScopeID != key.ScopeID {
		return nil, &GateError{
			Code:            model.ErrCodeScopeInvalid,
			Message:         "the set of matching entities changed since this draft was previewed",
			Recovery:        "regenerate the preview to bind the current entity set",
			ExpectedScopeID: currentScopeID,
			ProvidedScopeID: key.ScopeID,
		}
	}

	if currentRulesHash != key.RulesHash {
		return nil, &GateError{
			Code:     model.ErrCodeRulesChanged,
			Message:  "the rule configuration changed since this draft was previewed",
			Recovery: "regenerate the preview with the current rules",
		}
	}

	d, ok := store.Get(key)
	if !ok {
		return nil, &GateError{
			Code:     model.ErrCodeDraftNotFound,
			Message:  "no draft exists for this key",
			Recovery: "run preview to generate a draft",
		}
	}

	switch d.StateAt(now) {
	case draft.StateExpired:
		return nil, &GateError{
			Code:     model.ErrCodeDraftExpired,
			Message:  "the draft expired before it was applied",
			Recovery: "regenerate the preview",
		}
	case draft.StateFailed:
		return nil, &GateError{
			Code:     model.ErrCodeDraftFailed,
			Message:  "draft generation failed: " + d.GenerationError(),
			Recovery: "regenerate the preview",
		}
	}

	return d, nil
}
