package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityStatus is the per-entity outcome of an apply run.
type EntityStatus string

const (
	// StatusUpdated means the suggestion was written to the target field.
	StatusUpdated EntityStatus = "UPDATED"
	// StatusSkipped means the draft had no usable suggestion for the entity.
	// This is a normal outcome (AI declined or the user cleared it), not an error.
	StatusSkipped EntityStatus = "SKIPPED"
	// StatusLimitReached means the per-run write cap was hit before this entity.
	StatusLimitReached EntityStatus = "LIMIT_REACHED"
	// StatusError means the external write failed for this entity.
	StatusError EntityStatus = "ERROR"
)

// EntityOutcome records what happened to a single entity during apply.
// Reason is set only for StatusError.
type EntityOutcome struct {
	EntityID EntityID     `json:"entity_id"`
	Status   EntityStatus `json:"status"`
	Reason   string       `json:"reason,omitempty"`
}

// ApplyResult is the immutable record of one apply run. A retry of the same
// draft key replays the stored result rather than producing a new one.
type ApplyResult struct {
	RunID            uuid.UUID       `json:"run_id"`
	PlaybookID       uuid.UUID       `json:"playbook_id"`
	DraftKey         string          `json:"draft_key"`
	Outcomes         []EntityOutcome `json:"outcomes"`
	UpdatedCount     int             `json:"updated_count"`
	SkippedCount     int             `json:"skipped_count"`
	ErrorCount       int             `json:"error_count"`
	LimitReachedCount int            `json:"limit_reached_count"`
	Replayed         bool            `json:"replayed"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// Tally recomputes the aggregate counts from Outcomes.
func (r *ApplyResult) Tally() {
	r.UpdatedCount, r.SkippedCount, r.ErrorCount, r.LimitReachedCount = 0, 0, 0, 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusUpdated:
			r.UpdatedCount++
		case StatusSkipped:
			r.SkippedCount++
		case StatusError:
			r.ErrorCount++
		case StatusLimitReached:
			r.LimitReachedCount++
		}
	}
}
