package utils

import (
	"strings"
	"unicode"
)

// Alternate full names of policies. Keys and values are normalized. Aliases
// must name the same program; a shorter generic name would pull in the rules
// of an unrelated policy.
var titleAliases = map[string][]string{
	"청년전세임대":   {"청년전세임대주택", "청년매입전세임대"},
	"행복주택":     {"행복주택입주", "행복주택공급"},
	"버팀목":      {"버팀목전세자금", "버팀목대출"},
	"신혼부부전세임대": {"신혼전세임대"},
}

// NormalizeTitle lowercases s and strips whitespace and punctuation so that
// "청년 전세임대(LH)" and "청년전세임대LH" compare equal.
func NormalizeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TitleMatches reports whether a policy title refers to the rule key,
// either by substring or through a known alias.
func TitleMatches(title, key string) bool {
	t := NormalizeTitle(title)
	k := NormalizeTitle(key)
	if t == "" || k == "" {
		return false
	}
	if strings.Contains(t, k) {
		return true
	}
	for _, alias := range titleAliases[k] {
		if strings.Contains(t, alias) {
			return true
		}
	}
	return false
}
