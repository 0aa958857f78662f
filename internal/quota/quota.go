// Package quota evaluates plan-aware monthly AI usage from an append-only
// ledger of usage events.
//
// There is no mutable counter and no reset job: "this month's usage" is a
// calendar-month window query over the event log, so a new month naturally
// starts from zero. Only AI-triggering run types (preview/draft generation)
// count against quota; apply runs are recorded for audit but never billed.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// Evaluation statuses.
const (
	StatusAllowed = "allowed"
	StatusWarning = "warning"
	StatusBlocked = "blocked"
)

// Plan defines the quota limits of a subscription tier.
type Plan struct {
	Name                 string
	MonthlyLimit         int // AI-triggering runs per calendar month. 0 = unlimited.
	SoftThresholdPercent int // usage percent that flips status to warning
	HardEnforcement      bool // when false, exceeding the limit only warns
}

// plans mirrors the entitlements source. Unknown plan names fall back to free.
var plans = map[string]Plan{
	"free": {
		Name:                 "Free",
		MonthlyLimit:         100,
		SoftThresholdPercent: 80,
		HardEnforcement:      true,
	},
	"pro": {
		Name:                 "Pro",
		MonthlyLimit:         5_000,
		SoftThresholdPercent: 90,
		HardEnforcement:      false,
	},
	"enterprise": {
		Name:         "Enterprise",
		MonthlyLimit: 0, // unlimited
	},
}

// PlanByName returns the plan definition for a plan name, defaulting to free.
func PlanByName(name string) Plan {
	if p, ok := plans[name]; ok {
		return p
	}
	return plans["free"]
}

// Store is the persistence slice the ledger needs: an atomic append plus a
// windowed aggregation query.
type Store interface {
	InsertUsageEvent(ctx context.Context, ev model.UsageEvent) error
	CountAIRuns(ctx context.Context, projectID uuid.UUID, from, to time.Time) (int, error)
}

// Ledger records usage events and evaluates quota positions.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a quota ledger backed by store.
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// Record appends a usage event. Apply runs are forced to AIUsed=false —
// the executor never consumes AI and the ledger enforces that invariant
// even against a buggy caller.
func (l *Ledger) Record(ctx context.Context, projectID, playbookID uuid.UUID, runType model.RunType, aiUsed bool) error {
	if runType == model.RunApply {
		aiUsed = false
	}
	ev := model.UsageEvent{
		ID:         uuid.New(),
		ProjectID:  projectID,
		PlaybookID: playbookID,
		RunType:    runType,
		AIUsed:     aiUsed,
		OccurredAt: l.now().UTC(),
	}
	if err := l.store.InsertUsageEvent(ctx, ev); err != nil {
		return fmt.Errorf("quota: record usage event: %w", err)
	}
	return nil
}

// Evaluate aggregates this calendar month's AI-triggering events for the
// project and compares them against the plan.
//
// Ledger infrastructure failures fail open: generation must not be blocked
// by a broken quota check, so the caller gets StatusAllowed with a reason.
func (l *Ledger) Evaluate(ctx context.Context, projectID uuid.UUID, plan Plan) model.QuotaStatus {
	if plan.MonthlyLimit == 0 {
		return model.QuotaStatus{Status: StatusAllowed}
	}

	from, to := MonthWindow(l.now())
	used, err := l.store.CountAIRuns(ctx, projectID, from, to)
	if err != nil {
		l.logger.Warn("quota evaluation failed, failing open",
			"project_id", projectID, "error", err)
		return model.QuotaStatus{
			Status:       StatusAllowed,
			Reason:       "quota check unavailable",
			MonthlyLimit: plan.MonthlyLimit,
		}
	}

	percent := float64(used) / float64(plan.MonthlyLimit) * 100
	st := model.QuotaStatus{
		Status:        StatusAllowed,
		UsagePercent:  percent,
		UsedThisMonth: used,
		MonthlyLimit:  plan.MonthlyLimit,
	}

	switch {
	case used >= plan.MonthlyLimit && plan.HardEnforcement:
		st.Status = StatusBlocked
		st.Reason = fmt.Sprintf("monthly AI quota exceeded (%d/%d runs); upgrade your plan or wait for the monthly reset", used, plan.MonthlyLimit)
	case used >= plan.MonthlyLimit:
		st.Status = StatusWarning
		st.Reason = fmt.Sprintf("monthly AI quota exceeded (%d/%d runs); enforcement is advisory on plan %s", used, plan.MonthlyLimit, plan.Name)
	case plan.SoftThresholdPercent > 0 && percent >= float64(plan.SoftThresholdPercent):
		st.Status = StatusWarning
		st.Reason = fmt.Sprintf("approaching monthly AI quota (%d/%d runs)", used, plan.MonthlyLimit)
	}

	return st
}

// MonthWindow returns the UTC calendar-month window containing now:
// [first instant of the month, now].
func MonthWindow(now time.Time) (from, to time.Time) {
	now = now.UTC()
	from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, now
}
