// Package profanity holds the injected content predicate. The engine only
// cares that some check exists; the word list itself comes from config.
package profanity

import "strings"

// Checker reports whether text should be refused.
type Checker func(text string) bool

// None accepts everything.
func None(string) bool { return false }

// NewWordSet builds a Checker that flags text containing any of the given
// words, case-insensitively, on whole-word boundaries.
func NewWordSet(words []string) Checker {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	if len(set) == 0 {
		return None
	}
	return func(text string) bool {
		for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
		}) {
			if _, ok := set[field]; ok {
				return true
			}
		}
		return false
	}
}
