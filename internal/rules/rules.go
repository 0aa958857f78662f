// Package rules implements the deterministic text-transformation pipeline
// for playbook suggestions: normalization of user rule configuration, the
// ordered transformation steps, and a canonical hash of rule semantics.
//
// All functions are pure. Two semantically identical configurations always
// normalize to the same RuleSet and therefore the same hash, regardless of
// key order or omitted defaults in the raw input.
package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRuleConfig is returned by Normalize for rule configurations
// that cannot be coerced into a valid RuleSet. It is always detected
// before hashing, so an invalid configuration never binds a draft.
var ErrInvalidRuleConfig = errors.New("rules: invalid rule configuration")

// Warning codes emitted by Apply. Warnings never block or alter the
// pipeline outcome beyond what the step itself does.
const (
	WarnTrimmedToMaxLength      = "TRIMMED_TO_MAX_LENGTH"
	WarnContainsForbiddenPhrase = "CONTAINS_FORBIDDEN_PHRASE"
)

// FindReplace is a literal (non-regex) substring substitution applied to
// every occurrence.
type FindReplace struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// RuleSet is the canonical, normalized rule configuration. Field order here
// is the canonical hash order — see ComputeHash.
type RuleSet struct {
	Enabled          bool        `json:"enabled"`
	FindReplace      FindReplace `json:"find_replace"`
	Prefix           string      `json:"prefix"`
	Suffix           string      `json:"suffix"`
	MaxLength        int         `json:"max_length"` // 0 = unlimited
	ForbiddenPhrases []string    `json:"forbidden_phrases"`
}

// Result is the outcome of running the pipeline over one input text.
type Result struct {
	Text     string
	Warnings []string
}

// Normalize coerces a loosely-typed rule configuration into a canonical
// RuleSet: defaults filled, strings trimmed, booleans and integers coerced
// from their JSON representations. Unknown keys are ignored for forward
// compatibility. Returns ErrInvalidRuleConfig (wrapped) on unrecoverable
// shape errors such as a negative max_length or a mistyped field.
func Normalize(raw map[string]any) (RuleSet, error) {
	rs := RuleSet{Enabled: true}

	if v, ok := raw["enabled"]; ok {
		b, err := asBool(v)
		if err != nil {
			return RuleSet{}, fmt.Errorf("%w: enabled: %v", ErrInvalidRuleConfig, err)
		}
		rs.Enabled = b
	}

	if v, ok := raw["find_replace"]; ok && v != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return RuleSet{}, fmt.Errorf("%w: find_replace must be an object", ErrInvalidRuleConfig)
		}
		find, err := asTrimmedString(m["find"])
		if err != nil {
			return RuleSet{}, fmt.Errorf("%w: find_replace.find: %v", ErrInvalidRuleConfig, err)
		}
		replace, err := asTrimmedString(m["replace"])
		if err != nil {
			return RuleSet{}, fmt.Errorf("%w: find_replace.replace: %v", ErrInvalidRuleConfig, err)
		}
		rs.FindReplace = FindReplace{Find: find, Replace: replace}
	}

	var err error
	if rs.Prefix, err = asTrimmedStringField(raw, "prefix"); err != nil {
		return RuleSet{}, err
	}
	if rs.Suffix, err = asTrimmedStringField(raw, "suffix"); err != nil {
		return RuleSet{}, err
	}

	if v, ok := raw["max_length"]; ok && v != nil {
		n, err := asInt(v)
		if err != nil {
			return RuleSet{}, fmt.Errorf("%w: max_length: %v", ErrInvalidRuleConfig, err)
		}
		if n < 0 {
			return RuleSet{}, fmt.Errorf("%w: max_length must not be negative", ErrInvalidRuleConfig)
		}
		rs.MaxLength = n
	}

	if v, ok := raw["forbidden_phrases"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return RuleSet{}, fmt.Errorf("%w: forbidden_phrases must be an array", ErrInvalidRuleConfig)
		}
		for i, item := range list {
			s, err := asTrimmedString(item)
			if err != nil {
				return RuleSet{}, fmt.Errorf("%w: forbidden_phrases[%d]: %v", ErrInvalidRuleConfig, i, err)
			}
			if s != "" {
				rs.ForbiddenPhrases = append(rs.ForbiddenPhrases, s)
			}
		}
	}

	return rs, nil
}

// Apply runs the transformation pipeline over text in its fixed order:
// find/replace, prefix, suffix, length trim, forbidden-phrase scan.
// The order is load-bearing — the trim sees prefix and suffix, and the
// phrase scan sees the fully transformed text. A disabled RuleSet passes
// text through untouched.
func Apply(text string, rs RuleSet) Result {
	if !rs.Enabled {
		return Result{Text: text}
	}

	res := Result{Text: text}

	if rs.FindReplace.Find != "" {
		res.Text = strings.ReplaceAll(res.Text, rs.FindReplace.Find, rs.FindReplace.Replace)
	}
	if rs.Prefix != "" {
		res.Text = rs.Prefix + res.Text
	}
	if rs.Suffix != "" {
		res.Text = res.Text + rs.Suffix
	}
	if rs.MaxLength > 0 {
		if runes := []rune(res.Text); len(runes) > rs.MaxLength {
			// Truncated output stays strictly below the limit.
			res.Text = string(runes[:rs.MaxLength-1])
			res.Warnings = append(res.Warnings, WarnTrimmedToMaxLength)
		}
	}
	lower := strings.ToLower(res.Text)
	for _, phrase := range rs.ForbiddenPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			res.Warnings = append(res.Warnings, WarnContainsForbiddenPhrase)
			break
		}
	}

	return res
}

func asTrimmedStringField(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := asTrimmedString(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRuleConfig, key, err)
	}
	return s, nil
}

func asTrimmedString(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return strings.TrimSpace(s), nil
}

func asBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		// Tolerate stringly-typed booleans from form-encoded frontends.
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T", v)
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}
