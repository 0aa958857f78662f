// Package playbook provides the shared business logic for the playbook
// execution engine: the preview → estimate → apply flow.
//
// The service binds every preview to a (playbook, scope id, rules hash)
// triple, caches generation behind that triple, and gates apply on the
// triple still matching the live world. HTTP handlers delegate here and
// stay thin.
package playbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/seoforge-ai/seoforge/internal/apply"
	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/quota"
	"github.com/seoforge-ai/seoforge/internal/rules"
	"github.com/seoforge-ai/seoforge/internal/scope"
	"github.com/seoforge-ai/seoforge/internal/shopify"
	"github.com/seoforge-ai/seoforge/internal/suggest"
	"github.com/seoforge-ai/seoforge/internal/telemetry"
)

// Preview sampling bounds.
const (
	defaultSampleSize = 5
	maxSampleSize     = 50
)

// ErrBadApplyRequest is returned when the apply request's scope id or
// rules hash is absent or inconsistent with its draft key.
var ErrBadApplyRequest = errors.New("playbook: apply request is missing or inconsistent scope id / rules hash")

// ErrKeyMismatch is returned when a draft key names a different playbook
// than the one addressed by the request.
var ErrKeyMismatch = errors.New("playbook: draft key belongs to a different playbook")

// QuotaError blocks a generation request on a hard-enforced plan limit.
// It never blocks apply — apply does not consult quota at all.
type QuotaError struct {
	Status model.QuotaStatus
}

func (e *QuotaError) Error() string {
	return "playbook: " + e.Status.Reason
}

// AuditStore persists apply run records. Optional; nil disables auditing.
type AuditStore interface {
	CreateApplyRun(ctx context.Context, projectID uuid.UUID, res model.ApplyResult) error
}

// Config holds the service's dependencies.
type Config struct {
	Entities   shopify.EntityStore
	Provider   suggest.Provider
	Drafts     *draft.Store
	Executor   *apply.Executor
	Ledger     *quota.Ledger
	Audit      AuditStore // optional
	Logger     *slog.Logger
	GenWorkers int // concurrent AI calls per generation; 0 = 4
}

// Service encapsulates the playbook engine's business logic.
type Service struct {
	resolver   *scope.Resolver
	entities   shopify.EntityStore
	provider   suggest.Provider
	drafts     *draft.Store
	executor   *apply.Executor
	ledger     *quota.Ledger
	audit      AuditStore
	logger     *slog.Logger
	genWorkers int
	now        func() time.Time

	genDuration metric.Float64Histogram
	aiCalls     metric.Int64Counter
	applyRuns   metric.Int64Counter
}

// New creates the playbook service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.GenWorkers
	if workers <= 0 {
		workers = 4
	}

	meter := telemetry.Meter("seoforge/playbook")
	genDur, _ := meter.Float64Histogram("seoforge.generation.duration",
		metric.WithDescription("Time to generate a draft (ms)"),
		metric.WithUnit("ms"),
	)
	aiCalls, _ := meter.Int64Counter("seoforge.ai.calls",
		metric.WithDescription("AI provider invocations"),
	)
	applyRuns, _ := meter.Int64Counter("seoforge.apply.runs",
		metric.WithDescription("Apply executions by outcome"),
	)

	return &Service{
		resolver:    scope.NewResolver(cfg.Entities),
		entities:    cfg.Entities,
		provider:    cfg.Provider,
		drafts:      cfg.Drafts,
		executor:    cfg.Executor,
		ledger:      cfg.Ledger,
		audit:       cfg.Audit,
		logger:      logger,
		genWorkers:  workers,
		now:         time.Now,
		genDuration: genDur,
		aiCalls:     aiCalls,
		applyRuns:   applyRuns,
	}
}

// Preview resolves the playbook's current scope, normalizes and hashes the
// rules, and returns sample suggestions from the draft bound to that exact
// (playbook, scope, rules) triple — generating the draft if no fresh one
// is cached. Identical previews within TTL never re-invoke AI.
func (s *Service) Preview(ctx context.Context, project model.Project, pb model.Playbook, req model.PreviewRequest) (model.PreviewResponse, error) {
	sampleSize := req.SampleSize
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	if sampleSize > maxSampleSize {
		sampleSize = maxSampleSize
	}

	rawRules := req.Rules
	if rawRules == nil {
		rawRules = pb.Rules
	}

	d, key, qs, err := s.generate(ctx, project, pb, rawRules, model.RunPreviewGenerate)
	if err != nil {
		return model.PreviewResponse{}, err
	}

	samples := make([]model.PreviewItem, 0, sampleSize)
	for _, id := range d.Scope() {
		if len(samples) == sampleSize {
			break
		}
		item, ok := d.Item(id)
		if !ok {
			continue
		}
		samples = append(samples, model.PreviewItem{
			EntityID:        id,
			CurrentValue:    item.CurrentValue,
			RawSuggestion:   item.RawSuggestion,
			FinalSuggestion: item.FinalSuggestion,
			Warnings:        item.Warnings,
		})
	}

	return model.PreviewResponse{
		PlaybookID:  pb.ID,
		ScopeID:     key.ScopeID,
		RulesHash:   key.RulesHash,
		DraftKey:    key.String(),
		DraftState:  string(d.StateAt(s.now())),
		ScopeSize:   len(d.Scope()),
		Samples:     samples,
		QuotaStatus: qs,
	}, nil
}

// GenerateDraft prepares the full draft for the playbook's current scope
// and stored rules without returning samples. Same binding and caching
// semantics as Preview; recorded as a DRAFT_GENERATE run.
func (s *Service) GenerateDraft(ctx context.Context, project model.Project, pb model.Playbook) (model.PreviewResponse, error) {
	d, key, qs, err := s.generate(ctx, project, pb, pb.Rules, model.RunDraftGenerate)
	if err != nil {
		return model.PreviewResponse{}, err
	}
	return model.PreviewResponse{
		PlaybookID:  pb.ID,
		ScopeID:     key.ScopeID,
		RulesHash:   key.RulesHash,
		DraftKey:    key.String(),
		DraftState:  string(d.StateAt(s.now())),
		ScopeSize:   len(d.Scope()),
		QuotaStatus: qs,
	}, nil
}

// generate is the shared preview/draft-generation path: resolve scope,
// bind the key, enforce quota for fresh generations only, and fetch or
// build the draft.
func (s *Service) generate(ctx context.Context, project model.Project, pb model.Playbook, rawRules map[string]any, runType model.RunType) (*draft.Draft, draft.Key, model.QuotaStatus, error) {
	rs, err := rules.Normalize(rawRules)
	if err != nil {
		return nil, draft.Key{}, model.QuotaStatus{}, err
	}

	ids, err := s.resolver.Resolve(ctx, pb)
	if err != nil {
		return nil, draft.Key{}, model.QuotaStatus{}, err
	}

	key := draft.Key{
		PlaybookID: pb.ID,
		ScopeID:    scope.ComputeScopeID(ids),
		RulesHash:  rules.ComputeHash(rs),
	}

	qs := s.ledger.Evaluate(ctx, project.ID, quota.PlanByName(project.Plan))

	// A hard-blocked quota stops fresh generation only. Serving a cached
	// draft costs no AI, so it stays available even while blocked.
	if qs.Status == quota.StatusBlocked {
		if d, ok := s.drafts.Get(key); ok && !d.Expired(s.now()) {
			st := d.StateAt(s.now())
			if st == draft.StateReady || st == draft.StatePartial {
				return d, key, qs, nil
			}
		}
		return nil, draft.Key{}, model.QuotaStatus{}, &QuotaError{Status: qs}
	}

	d, err := s.drafts.GetOrCreate(ctx, key, ids, s.newGenerator(project, pb, rs, runType))
	if err != nil {
		return nil, draft.Key{}, model.QuotaStatus{}, err
	}
	return d, key, qs, nil
}

// newGenerator builds the draft generator for one run: the only code path
// that invokes the AI provider and the only one that records AI usage.
// The usage event is recorded per generation run, not per caller — waiters
// collapsed into this run by the draft store share a single event.
func (s *Service) newGenerator(project model.Project, pb model.Playbook, rs rules.RuleSet, runType model.RunType) draft.Generator {
	return func(ctx context.Context, ids []model.EntityID) (draft.Generation, error) {
		if err := s.ledger.Record(ctx, project.ID, pb.ID, runType, true); err != nil {
			// The ledger failing must not block generation (it fails open),
			// but an unrecorded AI run is worth a loud log line.
			s.logger.Warn("usage event not recorded", "playbook_id", pb.ID, "error", err)
		}

		start := s.now()

		var mu sync.Mutex
		items := make(map[model.EntityID]draft.Item, len(ids))
		var failed []model.EntityID

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.genWorkers)
		for _, id := range ids {
			g.Go(func() error {
				current, err := s.entities.ReadField(gctx, id, pb.TargetField)
				if err != nil {
					s.logger.Warn("entity read failed during generation",
						"playbook_id", pb.ID, "entity_id", id, "error", err)
					mu.Lock()
					failed = append(failed, id)
					mu.Unlock()
					return nil
				}

				raw, err := s.provider.Suggest(gctx, suggest.Request{
					EntityID:     id,
					CurrentValue: current,
					PlaybookName: pb.Name,
					TargetField:  pb.TargetField,
					Rules:        rs,
				})
				s.aiCalls.Add(gctx, 1, metric.WithAttributes(
					attribute.Bool("error", err != nil),
				))
				if err != nil {
					s.logger.Warn("suggestion failed",
						"playbook_id", pb.ID, "entity_id", id, "error", err)
					mu.Lock()
					failed = append(failed, id)
					mu.Unlock()
					return nil
				}

				item := draft.Item{CurrentValue: current, RawSuggestion: raw}
				if raw != "" {
					res := rules.Apply(raw, rs)
					item.FinalSuggestion = res.Text
					item.Warnings = res.Warnings
				}

				mu.Lock()
				items[id] = item
				mu.Unlock()
				return nil
			})
		}
		// Workers report per-entity failures via the failed list, never as
		// errors, so the whole scope is always attempted.
		_ = g.Wait()

		s.genDuration.Record(ctx, float64(s.now().Sub(start).Milliseconds()))

		if len(ids) > 0 && len(failed) == len(ids) {
			return draft.Generation{}, fmt.Errorf("playbook: generation failed for all %d entities", len(ids))
		}

		sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
		return draft.Generation{Items: items, FailedIDs: failed}, nil
	}
}

// Estimate re-resolves the playbook's live scope and reports the affected
// count, quota headroom, and whether the scope has drifted from the draft
// the caller is holding.
func (s *Service) Estimate(ctx context.Context, project model.Project, pb model.Playbook, draftKey string) (model.EstimateResponse, error) {
	key, err := draft.ParseKey(draftKey)
	if err != nil {
		return model.EstimateResponse{}, err
	}
	if key.PlaybookID != pb.ID {
		return model.EstimateResponse{}, ErrKeyMismatch
	}

	ids, err := s.resolver.Resolve(ctx, pb)
	if err != nil {
		return model.EstimateResponse{}, err
	}
	currentScopeID := scope.ComputeScopeID(ids)

	state := "NOT_FOUND"
	if d, ok := s.drafts.Get(key); ok {
		state = string(d.StateAt(s.now()))
	}

	return model.EstimateResponse{
		PlaybookID:    pb.ID,
		DraftKey:      draftKey,
		DraftState:    state,
		AffectedCount: len(ids),
		ScopeDrifted:  currentScopeID != key.ScopeID,
		QuotaStatus:   s.ledger.Evaluate(ctx, project.ID, quota.PlanByName(project.Plan)),
	}, nil
}

// Apply validates the caller's (draft key, scope id, rules hash) claim
// against the freshly recomputed world and, if nothing drifted, hands the
// draft to the executor. Apply never invokes AI, never counts against
// quota, and replays its stored result on retries of a consumed draft.
func (s *Service) Apply(ctx context.Context, project model.Project, pb model.Playbook, req model.ApplyRequest) (model.ApplyResult, error) {
	if req.ScopeID == "" || req.RulesHash == "" {
		return model.ApplyResult{}, ErrBadApplyRequest
	}
	key, err := draft.ParseKey(req.DraftKey)
	if err != nil {
		return model.ApplyResult{}, err
	}
	if key.PlaybookID != pb.ID || key.ScopeID != req.ScopeID || key.RulesHash != req.RulesHash {
		return model.ApplyResult{}, ErrBadApplyRequest
	}

	ids, err := s.resolver.Resolve(ctx, pb)
	if err != nil {
		return model.ApplyResult{}, err
	}
	currentScopeID := scope.ComputeScopeID(ids)

	rs, err := rules.Normalize(pb.Rules)
	if err != nil {
		return model.ApplyResult{}, err
	}
	currentRulesHash := rules.ComputeHash(rs)

	d, gateErr := validateForApply(s.drafts, key, currentScopeID, currentRulesHash, s.now())
	if gateErr != nil {
		s.applyRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
		return model.ApplyResult{}, gateErr
	}

	res, err := s.executor.Execute(ctx, pb, d)
	if err != nil {
		return model.ApplyResult{}, err
	}

	if !res.Replayed {
		if s.audit != nil {
			if err := s.audit.CreateApplyRun(ctx, project.ID, res); err != nil {
				// The writes are committed; a missed audit row must not fail them.
				s.logger.Error("apply run not audited", "run_id", res.RunID, "error", err)
			}
		}
		if err := s.ledger.Record(ctx, project.ID, pb.ID, model.RunApply, false); err != nil {
			s.logger.Warn("apply usage event not recorded", "run_id", res.RunID, "error", err)
		}
	}

	s.applyRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	return res, nil
}

// Quota returns the project's current quota position.
func (s *Service) Quota(ctx context.Context, project model.Project) model.QuotaStatus {
	return s.ledger.Evaluate(ctx, project.ID, quota.PlanByName(project.Plan))
}
