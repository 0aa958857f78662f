// Package scope turns "which entities does this playbook match right now"
// into a deterministic, order-independent identifier.
//
// The scope id is the drift signal for the whole engine: it is computed
// identically at preview time and at apply-validation time, and any
// difference between the two means the underlying entity set changed
// between steps.
package scope

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/seoforge-ai/seoforge/internal/model"
)

// Querier is the read-only slice of the entity store the resolver needs.
type Querier interface {
	// QueryMatching evaluates criteria against current entity data and
	// returns the IDs of matching entities. Purely a read.
	QueryMatching(ctx context.Context, criteria model.Criteria) ([]model.EntityID, error)
}

// Resolver resolves playbook scopes against a live entity store.
type Resolver struct {
	store Querier
}

// NewResolver creates a Resolver backed by the given entity store.
func NewResolver(store Querier) *Resolver {
	return &Resolver{store: store}
}

// Resolve executes the playbook's criteria against current entity data.
// The returned slice is sorted and deduplicated, so callers can feed it
// straight into ComputeScopeID or iterate it in a stable order.
func (r *Resolver) Resolve(ctx context.Context, pb model.Playbook) ([]model.EntityID, error) {
	ids, err := r.store.QueryMatching(ctx, pb.Criteria)
	if err != nil {
		return nil, fmt.Errorf("scope: query matching entities: %w", err)
	}
	return canonicalize(ids), nil
}

// ComputeScopeID produces a versioned SHA-256 hex digest of an entity-ID
// set. Input order and duplicates do not affect the result; any change in
// set membership does. Each ID is encoded with a 4-byte big-endian length
// prefix, and the set cardinality is bound into the digest first.
func ComputeScopeID(ids []model.EntityID) string {
	canon := canonicalize(ids)

	h := sha256.New()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(canon)))
	h.Write(lenBuf[:])
	for _, id := range canon {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id)))
		h.Write(lenBuf[:])
		h.Write([]byte(id))
	}

	return "v1:" + hex.EncodeToString(h.Sum(nil))
}

// canonicalize sorts and deduplicates without mutating the input.
func canonicalize(ids []model.EntityID) []model.EntityID {
	out := make([]model.EntityID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	dedup := out[:0]
	var prev model.EntityID
	for i, id := range out {
		if i > 0 && id == prev {
			continue
		}
		dedup = append(dedup, id)
		prev = id
	}
	return dedup
}
