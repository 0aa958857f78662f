package rules

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// Hash version prefix. The prefix lets a future encoding change coexist
// with hashes already bound to cached drafts.
const hashV1Prefix = "v1:"

// ComputeHash produces a versioned SHA-256 hex digest of a normalized
// RuleSet. Each field is encoded as a 4-byte big-endian length prefix
// followed by the field bytes, in the canonical field order of the RuleSet
// struct. Length prefixing avoids delimiter collisions when freeform rule
// text contains separator characters; explicit field order means the hash
// never depends on any serializer's key ordering.
//
// Must be called on normalized input only — Normalize is the step that
// makes representation-equivalent configurations identical.
func ComputeHash(rs RuleSet) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}

	writeField(strconv.FormatBool(rs.Enabled))
	writeField(rs.FindReplace.Find)
	writeField(rs.FindReplace.Replace)
	writeField(rs.Prefix)
	writeField(rs.Suffix)
	writeField(strconv.Itoa(rs.MaxLength))
	writeField(strconv.Itoa(len(rs.ForbiddenPhrases)))
	for _, p := range rs.ForbiddenPhrases {
		writeField(p)
	}

	return hashV1Prefix + hex.EncodeToString(h.Sum(nil))
}
