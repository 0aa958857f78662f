package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// CreateApplyRun persists the aggregate record of one apply run for audit.
// Rows are written once and never updated; replays of a consumed draft do
// not create new rows.
func (db *DB) CreateApplyRun(ctx context.Context, projectID uuid.UUID, res model.ApplyResult) error {
	outcomes, err := json.Marshal(res.Outcomes)
	if err != nil {
		return fmt.Errorf("storage: encode apply outcomes: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO apply_runs
		 (run_id, project_id, playbook_id, draft_key, outcomes,
		  updated_count, skipped_count, error_count, limit_reached_count,
		  started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.RunID, projectID, res.PlaybookID, res.DraftKey, outcomes,
		res.UpdatedCount, res.SkippedCount, res.ErrorCount, res.LimitReachedCount,
		res.StartedAt, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create apply run: %w", err)
	}
	return nil
}
