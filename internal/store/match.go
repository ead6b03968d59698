package store

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ContainsFunc reports whether needle occurs in haystack. Both arguments are
// already lower-cased. Used to plug smarter containment (e.g. input-method
// aware matching) into search queries.
type ContainsFunc func(haystack, needle string) bool

// FuzzyContains is a [ContainsFunc] that accepts subsequence matches in
// addition to plain substrings, so queries tolerate dropped characters.
func FuzzyContains(haystack, needle string) bool {
	return fuzzy.Match(needle, haystack)
}

// matchTokens implements the search predicate: the pattern is split on
// whitespace and every token must be contained in the value. Both sides are
// compared lower-cased. A nil contains falls back to substring containment.
func matchTokens(contains ContainsFunc, pattern, value string) bool {
	value = strings.ToLower(value)
	for _, token := range strings.Fields(strings.ToLower(pattern)) {
		if contains == nil {
			if !strings.Contains(value, token) {
				return false
			}
		} else if !contains(value, token) {
			return false
		}
	}
	return true
}
