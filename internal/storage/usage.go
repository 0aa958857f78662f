package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// InsertUsageEvent appends one immutable row to the usage ledger. The
// table has no UPDATE path anywhere in this codebase — the insert is the
// only mutation, which is all the atomicity the ledger needs.
func (db *DB) InsertUsageEvent(ctx context.Context, ev model.UsageEvent) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO usage_events (id, project_id, playbook_id, run_type, ai_used, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.ProjectID, ev.PlaybookID, string(ev.RunType), ev.AIUsed, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert usage event: %w", err)
	}
	return nil
}

// CountAIRuns returns the number of AI-consuming events for a project in
// [from, to]. Quota evaluation calls this with the current calendar-month
// window; a new month naturally counts zero prior events.
func (db *DB) CountAIRuns(ctx context.Context, projectID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_events
		 WHERE project_id = $1 AND ai_used AND occurred_at >= $2 AND occurred_at <= $3`,
		projectID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count ai runs: %w", err)
	}
	return n, nil
}

// ListUsageEvents returns a project's events in a window, oldest first.
func (db *DB) ListUsageEvents(ctx context.Context, projectID uuid.UUID, from, to time.Time) ([]model.UsageEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, playbook_id, run_type, ai_used, occurred_at
		 FROM usage_events
		 WHERE project_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
		 ORDER BY occurred_at ASC`,
		projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: list usage events: %w", err)
	}
	defer rows.Close()

	var out []model.UsageEvent
	for rows.Next() {
		var ev model.UsageEvent
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &ev.PlaybookID, &ev.RunType, &ev.AIUsed, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("storage: scan usage event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
