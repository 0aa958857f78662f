// Package apply writes validated draft content to the external target.
//
// The executor is deliberately cut off from generation: it has no import
// of the suggestion provider and no path to the AI layer at all. It only
// copies finalized draft items into the target field, entity by entity.
package apply

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
)

// ErrInProgress is returned when a retry arrives while the first apply of
// the same draft is still running. The retry must not double-write, and
// there is no result to replay yet.
var ErrInProgress = errors.New("apply: draft is being applied by another request")

// WriteTarget is the external write interface (e.g. the storefront
// platform's admin API). Invoked only by the executor.
type WriteTarget interface {
	WriteField(ctx context.Context, id model.EntityID, field, value string) error
}

// Executor idempotently applies a validated draft to the write target.
type Executor struct {
	target   WriteTarget
	logger   *slog.Logger
	writeCap int // max writes per run; 0 = uncapped
	now      func() time.Time
}

// New creates an executor. writeCap bounds the number of UPDATED entities
// per run independently of AI quotas; 0 disables the cap.
func New(target WriteTarget, writeCap int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{target: target, logger: logger, writeCap: writeCap, now: time.Now}
}

// Execute applies d to the target, producing one outcome per entity in the
// draft's scope.
//
// Idempotency: consumption of the draft is an atomic compare-and-set, so
// exactly one caller runs the writes. A retry after success replays the
// stored result (Replayed=true, zero new writes); a retry racing the first
// run gets ErrInProgress.
//
// Per-entity failures are isolated: a failed external write marks that
// entity ERROR and the run continues. Once the write cap is reached, every
// remaining entity is marked LIMIT_REACHED and processing stops. Partial
// success is reported, never rolled back. Cancellation is ignored once the
// run has started — stopping halfway would leave the store half-written
// with no record of where.
func (e *Executor) Execute(ctx context.Context, pb model.Playbook, d *draft.Draft) (model.ApplyResult, error) {
	if !d.Consume() {
		if res, ok := d.Result(); ok {
			res.Replayed = true
			e.logger.Info("apply replayed",
				"playbook_id", pb.ID, "draft_key", d.Key().String(), "run_id", res.RunID)
			return res, nil
		}
		return model.ApplyResult{}, ErrInProgress
	}

	ctx = context.WithoutCancel(ctx)
	res := model.ApplyResult{
		RunID:      uuid.New(),
		PlaybookID: pb.ID,
		DraftKey:   d.Key().String(),
		StartedAt:  e.now().UTC(),
	}

	scope := d.Scope()
	res.Outcomes = make([]model.EntityOutcome, 0, len(scope))

	written := 0
	capped := false
	for i, id := range scope {
		if capped {
			break
		}

		item, ok := d.Item(id)
		if !ok || item.FinalSuggestion == "" {
			res.Outcomes = append(res.Outcomes, model.EntityOutcome{EntityID: id, Status: model.StatusSkipped})
			continue
		}

		if e.writeCap > 0 && written >= e.writeCap {
			for _, rest := range scope[i:] {
				res.Outcomes = append(res.Outcomes, model.EntityOutcome{EntityID: rest, Status: model.StatusLimitReached})
			}
			capped = true
			continue
		}

		if err := e.target.WriteField(ctx, id, pb.TargetField, item.FinalSuggestion); err != nil {
			e.logger.Warn("entity write failed",
				"playbook_id", pb.ID, "entity_id", id, "error", err)
			res.Outcomes = append(res.Outcomes, model.EntityOutcome{
				EntityID: id, Status: model.StatusError, Reason: err.Error(),
			})
			continue
		}

		written++
		res.Outcomes = append(res.Outcomes, model.EntityOutcome{EntityID: id, Status: model.StatusUpdated})
	}

	res.FinishedAt = e.now().UTC()
	res.Tally()
	d.StoreResult(res)

	e.logger.Info("apply completed",
		"playbook_id", pb.ID,
		"run_id", res.RunID,
		"updated", res.UpdatedCount,
		"skipped", res.SkippedCount,
		"errors", res.ErrorCount,
		"limit_reached", res.LimitReachedCount,
	)

	return res, nil
}
