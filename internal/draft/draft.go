// Package draft implements the content-addressable cache of AI-generated
// suggestions. Drafts are keyed by (playbook, scope id, rules hash): the
// triple that binds what the user previewed to what apply may write.
package draft

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// State is the draft lifecycle state. The set is closed: a draft is created
// GENERATING, settles into exactly one of READY/PARTIAL/FAILED, and EXPIRED
// is computed lazily from elapsed time — never stored, never swept.
type State string

const (
	StateGenerating State = "GENERATING"
	StateReady      State = "READY"
	StatePartial    State = "PARTIAL"
	StateFailed     State = "FAILED"
	StateExpired    State = "EXPIRED"
)

// keySep separates key parts in the wire form. Scope ids and rules hashes
// are "v1:<hex>" strings, so ':' is not usable here.
const keySep = "|"

// Key is the content address of a draft.
type Key struct {
	PlaybookID uuid.UUID
	ScopeID    string
	RulesHash  string
}

// String returns the opaque wire form handed to API clients as draft_key.
func (k Key) String() string {
	return k.PlaybookID.String() + keySep + k.ScopeID + keySep + k.RulesHash
}

// ErrMalformedKey reports a draft key that does not parse.
var ErrMalformedKey = errors.New("draft: malformed key")

// ParseKey parses the wire form back into a Key.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, keySep)
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return Key{}, fmt.Errorf("%w: bad playbook id: %v", ErrMalformedKey, err)
	}
	if parts[1] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("%w: missing scope id or rules hash", ErrMalformedKey)
	}
	return Key{PlaybookID: id, ScopeID: parts[1], RulesHash: parts[2]}, nil
}

// Item is the generated suggestion pair for one entity. RawSuggestion is
// the provider's output before the rules pipeline; FinalSuggestion is what
// apply writes. An empty FinalSuggestion means the entity is skipped.
type Item struct {
	CurrentValue    string   `json:"current_value"`
	RawSuggestion   string   `json:"raw_suggestion"`
	FinalSuggestion string   `json:"final_suggestion"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Draft is one cached generation run. It is written only by the generation
// process that created it and immutable once settled, except for the
// consumption bookkeeping (consumed flag + stored apply result).
//
// Invariant: items is non-nil only for READY/PARTIAL; failure detail is
// carried only by FAILED.
type Draft struct {
	key       Key
	createdAt time.Time
	ttl       time.Duration

	state     State
	items     map[model.EntityID]Item
	scope     []model.EntityID // sorted entity set the draft was generated over
	failedIDs []model.EntityID // entities the provider failed on (PARTIAL only)
	genErr    string           // terminal generation failure (FAILED only)

	consumed atomic.Bool

	resultMu sync.Mutex
	result   *model.ApplyResult
}

// Key returns the draft's content address.
func (d *Draft) Key() Key { return d.key }

// CreatedAt returns the generation start time.
func (d *Draft) CreatedAt() time.Time { return d.createdAt }

// TTL returns the draft's time-to-live.
func (d *Draft) TTL() time.Duration { return d.ttl }

// Expired reports whether the draft's TTL has elapsed at now. Pure function
// of elapsed time; there is no background sweep.
func (d *Draft) Expired(now time.Time) bool {
	return now.Sub(d.createdAt) > d.ttl
}

// StateAt returns the draft's effective state at now: the stored state, or
// EXPIRED once the TTL has elapsed.
func (d *Draft) StateAt(now time.Time) State {
	if d.Expired(now) {
		return StateExpired
	}
	return d.state
}

// Item returns the generated item for an entity. ok is false when the
// generation produced nothing for it.
func (d *Draft) Item(id model.EntityID) (Item, bool) {
	it, ok := d.items[id]
	return it, ok
}

// Scope returns the sorted entity set the draft was generated over.
func (d *Draft) Scope() []model.EntityID { return d.scope }

// FailedIDs returns the entities the provider failed on (PARTIAL drafts).
func (d *Draft) FailedIDs() []model.EntityID { return d.failedIDs }

// GenerationError returns the terminal failure reason for FAILED drafts.
func (d *Draft) GenerationError() string { return d.genErr }

// Consume atomically marks the draft as applied. The first caller gets
// true and owns the apply run; every later caller gets false and must
// replay the stored result instead of writing again.
func (d *Draft) Consume() bool {
	return d.consumed.CompareAndSwap(false, true)
}

// StoreResult records the apply run's outcome for replay on retries.
func (d *Draft) StoreResult(r model.ApplyResult) {
	d.resultMu.Lock()
	defer d.resultMu.Unlock()
	d.result = &r
}

// Result returns the stored apply result, if the draft has been applied.
func (d *Draft) Result() (model.ApplyResult, bool) {
	d.resultMu.Lock()
	defer d.resultMu.Unlock()
	if d.result == nil {
		return model.ApplyResult{}, false
	}
	return *d.result, true
}
