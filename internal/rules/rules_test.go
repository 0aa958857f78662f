package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	rs, err := Normalize(map[string]any{})
	require.NoError(t, err)

	assert.True(t, rs.Enabled, "enabled defaults to true")
	assert.Empty(t, rs.Prefix)
	assert.Empty(t, rs.Suffix)
	assert.Zero(t, rs.MaxLength)
	assert.Empty(t, rs.ForbiddenPhrases)
}

func TestNormalizeCoercion(t *testing.T) {
	rs, err := Normalize(map[string]any{
		"enabled":    "true",
		"prefix":     "  Shop |  ",
		"max_length": float64(60), // JSON numbers decode as float64
		"find_replace": map[string]any{
			"find":    " AI ",
			"replace": "EngineO",
		},
		"forbidden_phrases": []any{"free", "", "  guaranteed "},
		"ignored_future":    "ok", // unknown keys tolerated
	})
	require.NoError(t, err)

	assert.True(t, rs.Enabled)
	assert.Equal(t, "Shop |", rs.Prefix)
	assert.Equal(t, 60, rs.MaxLength)
	assert.Equal(t, "AI", rs.FindReplace.Find)
	assert.Equal(t, []string{"free", "guaranteed"}, rs.ForbiddenPhrases)
}

func TestNormalizeInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"negative max_length", map[string]any{"max_length": -1}},
		{"fractional max_length", map[string]any{"max_length": 2.5}},
		{"mistyped max_length", map[string]any{"max_length": "long"}},
		{"mistyped enabled", map[string]any{"enabled": 3}},
		{"mistyped prefix", map[string]any{"prefix": 7}},
		{"find_replace not object", map[string]any{"find_replace": "x"}},
		{"forbidden_phrases not array", map[string]any{"forbidden_phrases": "free"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			require.ErrorIs(t, err, ErrInvalidRuleConfig)
		})
	}
}

func TestApplyPipelineOrder(t *testing.T) {
	rs, err := Normalize(map[string]any{
		"find_replace": map[string]any{"find": "AI", "replace": "EngineO"},
		"prefix":       "Shop | ",
		"suffix":       " | 2024",
		"max_length":   20,
	})
	require.NoError(t, err)

	res := Apply("AI Widget", rs)
	assert.Equal(t, "Shop | EngineO Widg", res.Text)
	assert.Equal(t, []string{WarnTrimmedToMaxLength}, res.Warnings)
}

func TestApplyNoTrimUnderLimit(t *testing.T) {
	res := Apply("Widget", RuleSet{Enabled: true, Prefix: "A ", MaxLength: 40})
	assert.Equal(t, "A Widget", res.Text)
	assert.Empty(t, res.Warnings)
}

func TestApplyForbiddenPhraseWarns(t *testing.T) {
	rs := RuleSet{Enabled: true, ForbiddenPhrases: []string{"Guaranteed"}}

	res := Apply("Results guaranteed or your money back", rs)
	assert.Equal(t, "Results guaranteed or your money back", res.Text, "scan never alters text")
	assert.Equal(t, []string{WarnContainsForbiddenPhrase}, res.Warnings)
}

func TestApplyDisabledPassesThrough(t *testing.T) {
	rs := RuleSet{Enabled: false, Prefix: "X ", MaxLength: 1}
	res := Apply("untouched", rs)
	assert.Equal(t, "untouched", res.Text)
	assert.Empty(t, res.Warnings)
}

func TestApplyReplacesAllOccurrences(t *testing.T) {
	rs := RuleSet{Enabled: true, FindReplace: FindReplace{Find: "a", Replace: "b"}}
	res := Apply("banana", rs)
	assert.Equal(t, "bbnbnb", res.Text)
}

func TestApplyTruncatesByRunes(t *testing.T) {
	rs := RuleSet{Enabled: true, MaxLength: 4}
	res := Apply("日本語テキスト", rs)
	assert.Equal(t, "日本語", res.Text)
	assert.Equal(t, []string{WarnTrimmedToMaxLength}, res.Warnings)
}

func TestComputeHashRepresentationIndependent(t *testing.T) {
	// Same semantics, different raw representation: key order, omitted
	// defaults, string-typed booleans, untrimmed whitespace.
	a, err := Normalize(map[string]any{
		"prefix":     "Shop | ",
		"enabled":    true,
		"max_length": 60,
	})
	require.NoError(t, err)
	b, err := Normalize(map[string]any{
		"max_length": float64(60),
		"enabled":    "true",
		"prefix":     "  Shop |  ",
		"suffix":     "",
	})
	require.NoError(t, err)

	assert.Equal(t, ComputeHash(a), ComputeHash(b))
}

func TestComputeHashChangesWithSemantics(t *testing.T) {
	base := RuleSet{Enabled: true, Prefix: "A", MaxLength: 10}

	variants := []RuleSet{
		{Enabled: false, Prefix: "A", MaxLength: 10},
		{Enabled: true, Prefix: "B", MaxLength: 10},
		{Enabled: true, Prefix: "A", MaxLength: 11},
		{Enabled: true, Prefix: "A", MaxLength: 10, Suffix: "Z"},
		{Enabled: true, Prefix: "A", MaxLength: 10, ForbiddenPhrases: []string{"x"}},
		{Enabled: true, Prefix: "A", MaxLength: 10, FindReplace: FindReplace{Find: "x", Replace: "y"}},
	}

	baseHash := ComputeHash(base)
	require.True(t, strings.HasPrefix(baseHash, "v1:"))
	for i, v := range variants {
		assert.NotEqual(t, baseHash, ComputeHash(v), "variant %d should change the hash", i)
	}
}

func TestComputeHashNoFieldBleed(t *testing.T) {
	// Length prefixing keeps adjacent fields from bleeding into each other.
	a := RuleSet{Enabled: true, Prefix: "ab", Suffix: "c"}
	b := RuleSet{Enabled: true, Prefix: "a", Suffix: "bc"}
	assert.NotEqual(t, ComputeHash(a), ComputeHash(b))
}
