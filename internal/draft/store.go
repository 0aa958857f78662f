package draft

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// Generation is the output of one generator invocation. FailedIDs lists
// entities the provider could not produce a suggestion for without
// poisoning the whole run; a non-empty list settles the draft as PARTIAL.
type Generation struct {
	Items     map[model.EntityID]Item
	FailedIDs []model.EntityID
}

// Generator produces suggestions for every entity in scope. It is the only
// code path in the engine that talks to the AI provider.
type Generator func(ctx context.Context, scope []model.EntityID) (Generation, error)

// Store is the in-memory draft cache. Concurrent GetOrCreate calls for the
// same key collapse into a single generation via singleflight; different
// keys generate fully in parallel. Expiry is evaluated lazily on read.
type Store struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	drafts map[string]*Draft

	group singleflight.Group
}

// NewStore creates a draft store with the given TTL for cached drafts.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		drafts: make(map[string]*Draft),
	}
}

// Get returns the cached draft for key, if any. Expiry is the caller's
// concern via Draft.StateAt — the entry itself stays until replaced.
func (s *Store) Get(key Key) (*Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[key.String()]
	return d, ok
}

// GetOrCreate returns the draft for key, generating it if needed.
//
// A non-expired READY or PARTIAL draft is returned as-is without invoking
// gen — repeated identical requests within TTL never re-invoke AI. A
// FAILED or expired draft is replaced by a fresh generation. At most one
// generation runs per key at a time: concurrent callers await the single
// in-flight generation and share its draft.
//
// The generation itself runs on a background context detached from the
// caller. A caller that abandons its request (singleflight shares the
// first caller's context, so its cancellation would otherwise poison every
// waiter) leaves behind a completed draft that stays valid for any later
// caller with the same key.
func (s *Store) GetOrCreate(ctx context.Context, key Key, scope []model.EntityID, gen Generator) (*Draft, error) {
	if d, ok := s.Get(key); ok && !d.Expired(s.now()) && (d.state == StateReady || d.state == StatePartial) {
		return d, nil
	}

	ch := s.group.DoChan(key.String(), func() (any, error) {
		// Re-check under the flight: a previous caller may have just settled it.
		if d, ok := s.Get(key); ok && !d.Expired(s.now()) && (d.state == StateReady || d.state == StatePartial) {
			return d, nil
		}
		return s.generate(context.WithoutCancel(ctx), key, scope, gen), nil
	})

	select {
	case res := <-ch:
		return res.Val.(*Draft), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// generate runs gen and settles the draft. Generator errors settle the
// draft FAILED rather than propagating — preview reports the state, not an
// exception. The draft is published to the cache only after it has
// settled, so readers never observe a half-written GENERATING entry; the
// GENERATING phase is exactly the lifetime of the singleflight call.
func (s *Store) generate(ctx context.Context, key Key, scope []model.EntityID, gen Generator) *Draft {
	d := &Draft{
		key:       key,
		createdAt: s.now(),
		ttl:       s.ttl,
		state:     StateGenerating,
		scope:     scope,
	}

	start := s.now()
	out, err := gen(ctx, scope)
	switch {
	case err != nil:
		d.state = StateFailed
		d.genErr = err.Error()
		s.logger.Warn("draft generation failed",
			"playbook_id", key.PlaybookID, "entities", len(scope), "error", err)
	case len(out.FailedIDs) > 0:
		d.state = StatePartial
		d.items = out.Items
		d.failedIDs = out.FailedIDs
		s.logger.Info("draft generated partially",
			"playbook_id", key.PlaybookID, "items", len(out.Items),
			"failed", len(out.FailedIDs), "duration_ms", s.now().Sub(start).Milliseconds())
	default:
		d.state = StateReady
		d.items = out.Items
		s.logger.Info("draft generated",
			"playbook_id", key.PlaybookID, "items", len(out.Items),
			"duration_ms", s.now().Sub(start).Milliseconds())
	}

	s.put(d)
	return d
}

func (s *Store) put(d *Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.key.String()] = d
}

// Len returns the number of cached drafts, expired entries included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}
