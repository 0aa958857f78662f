package model

import (
	"time"

	"github.com/google/uuid"
)

// RunType categorizes an engine run for quota accounting.
type RunType string

const (
	// RunPreviewGenerate is a Preview that produced (or attempted) AI samples.
	RunPreviewGenerate RunType = "PREVIEW_GENERATE"
	// RunDraftGenerate is a full draft generation across the playbook scope.
	RunDraftGenerate RunType = "DRAFT_GENERATE"
	// RunApply is a write run. Apply never invokes AI, so apply events
	// always carry AIUsed=false.
	RunApply RunType = "APPLY"
)

// AITriggering reports whether this run type can consume AI quota.
func (t RunType) AITriggering() bool {
	return t == RunPreviewGenerate || t == RunDraftGenerate
}

// UsageEvent is one immutable row in the append-only usage ledger.
// Monthly usage is always a window query over these events; there is no
// maintained counter and no scheduled reset job — a new calendar month
// simply has no prior events.
type UsageEvent struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"project_id"`
	PlaybookID uuid.UUID `json:"playbook_id"`
	RunType    RunType   `json:"run_type"`
	AIUsed     bool      `json:"ai_used"`
	OccurredAt time.Time `json:"occurred_at"`
}
