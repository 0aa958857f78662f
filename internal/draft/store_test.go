package draft

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge-ai/seoforge/internal/model"
)

func testKey() Key {
	return Key{
		PlaybookID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		ScopeID:    "v1:scope",
		RulesHash:  "v1:rules",
	}
}

func countingGen(calls *atomic.Int64, out Generation, err error) Generator {
	return func(ctx context.Context, scope []model.EntityID) (Generation, error) {
		calls.Add(1)
		return out, err
	}
}

func readyGen(calls *atomic.Int64) Generator {
	return countingGen(calls, Generation{
		Items: map[model.EntityID]Item{
			"gid://shopify/Product/1": {CurrentValue: "a", FinalSuggestion: "b"},
		},
	}, nil)
}

func TestGetOrCreateCachesWithinTTL(t *testing.T) {
	s := NewStore(time.Hour, nil)
	scope := []model.EntityID{"gid://shopify/Product/1"}

	var calls atomic.Int64
	d1, err := s.GetOrCreate(context.Background(), testKey(), scope, readyGen(&calls))
	require.NoError(t, err)
	assert.Equal(t, StateReady, d1.StateAt(time.Now()))

	d2, err := s.GetOrCreate(context.Background(), testKey(), scope, readyGen(&calls))
	require.NoError(t, err)

	assert.Same(t, d1, d2, "second identical request must reuse the cached draft")
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, s.Len())
}

func TestGetOrCreateCollapsesConcurrentCallers(t *testing.T) {
	s := NewStore(time.Hour, nil)
	scope := []model.EntityID{"gid://shopify/Product/1"}

	var calls atomic.Int64
	release := make(chan struct{})
	gen := func(ctx context.Context, sc []model.EntityID) (Generation, error) {
		calls.Add(1)
		<-release
		return Generation{Items: map[model.EntityID]Item{}}, nil
	}

	const callers = 16
	drafts := make([]*Draft, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := s.GetOrCreate(context.Background(), testKey(), scope, gen)
			assert.NoError(t, err)
			drafts[i] = d
		}(i)
	}

	// Let the goroutines pile up on the in-flight generation before it
	// completes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent callers must share one generation")
	for i := 1; i < callers; i++ {
		assert.Same(t, drafts[0], drafts[i])
	}
}

func TestGetOrCreateFailureSettlesFailed(t *testing.T) {
	s := NewStore(time.Hour, nil)

	var calls atomic.Int64
	gen := countingGen(&calls, Generation{}, errors.New("provider down"))

	d, err := s.GetOrCreate(context.Background(), testKey(), nil, gen)
	require.NoError(t, err, "generator errors settle the draft, they do not propagate")
	assert.Equal(t, StateFailed, d.StateAt(time.Now()))
	assert.Equal(t, "provider down", d.GenerationError())
}

func TestGetOrCreateRetriesFailedDraft(t *testing.T) {
	s := NewStore(time.Hour, nil)

	var calls atomic.Int64
	_, err := s.GetOrCreate(context.Background(), testKey(), nil,
		countingGen(&calls, Generation{}, errors.New("boom")))
	require.NoError(t, err)

	d, err := s.GetOrCreate(context.Background(), testKey(), nil, readyGen(&calls))
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load(), "a FAILED draft must not satisfy later requests")
	assert.Equal(t, StateReady, d.StateAt(time.Now()))
}

func TestGetOrCreateRegeneratesExpired(t *testing.T) {
	s := NewStore(time.Hour, nil)
	clock := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	var calls atomic.Int64
	d1, err := s.GetOrCreate(context.Background(), testKey(), nil, readyGen(&calls))
	require.NoError(t, err)
	assert.Equal(t, StateReady, d1.StateAt(clock))

	clock = clock.Add(2 * time.Hour)
	assert.Equal(t, StateExpired, d1.StateAt(clock))

	d2, err := s.GetOrCreate(context.Background(), testKey(), nil, readyGen(&calls))
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
	assert.NotSame(t, d1, d2)
	assert.Equal(t, StateReady, d2.StateAt(clock))
	assert.Equal(t, 1, s.Len(), "the fresh draft replaces the expired entry")
}

func TestGetOrCreatePartial(t *testing.T) {
	s := NewStore(time.Hour, nil)
	scope := []model.EntityID{"gid://shopify/Product/1", "gid://shopify/Product/2"}

	var calls atomic.Int64
	gen := countingGen(&calls, Generation{
		Items: map[model.EntityID]Item{
			"gid://shopify/Product/1": {FinalSuggestion: "ok"},
		},
		FailedIDs: []model.EntityID{"gid://shopify/Product/2"},
	}, nil)

	d, err := s.GetOrCreate(context.Background(), testKey(), scope, gen)
	require.NoError(t, err)
	assert.Equal(t, StatePartial, d.StateAt(time.Now()))
	assert.Equal(t, []model.EntityID{"gid://shopify/Product/2"}, d.FailedIDs())

	// PARTIAL is terminal: it serves later requests like READY does.
	_, err = s.GetOrCreate(context.Background(), testKey(), scope, gen)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGetOrCreateCanceledWaiter(t *testing.T) {
	s := NewStore(time.Hour, nil)

	release := make(chan struct{})
	gen := func(ctx context.Context, sc []model.EntityID) (Generation, error) {
		<-release
		return Generation{Items: map[model.EntityID]Item{}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.GetOrCreate(ctx, testKey(), nil, gen)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The generation keeps running detached and settles the draft for the
	// next caller.
	close(release)
	require.Eventually(t, func() bool {
		d, ok := s.Get(testKey())
		return ok && d.StateAt(time.Now()) == StateReady
	}, time.Second, 5*time.Millisecond)
}
