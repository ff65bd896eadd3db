package models

import "strings"

// Tier is the generation priority bucket of a tag candidate.
type Tier int

const (
	TierName Tier = iota
	TierSubject
	TierAction
)

func (t Tier) String() string {
	switch t {
	case TierName:
		return "name"
	case TierSubject:
		return "subject"
	case TierAction:
		return "action"
	default:
		return "unknown"
	}
}

// TagCandidate is a normalized tag plus the tier it was generated in.
type TagCandidate struct {
	Text string
	Tier Tier
}

// ExclusionSet holds normalized phrases a caller never wants as tags.
type ExclusionSet struct {
	phrases []string
	exact   map[string]struct{}
}

// NewExclusionSet normalizes and deduplicates the given phrases.
// normalize is usually the tag normalizer, so exclusions compare like tags.
func NewExclusionSet(words []string, normalize func(string) string) ExclusionSet {
	set := ExclusionSet{exact: make(map[string]struct{}, len(words))}
	for _, w := range words {
		n := normalize(w)
		if n == "" {
			continue
		}
		if _, ok := set.exact[n]; ok {
			continue
		}
		set.exact[n] = struct{}{}
		set.phrases = append(set.phrases, n)
	}
	return set
}

// Len returns the number of distinct phrases.
func (s ExclusionSet) Len() int { return len(s.phrases) }

// Phrases returns a copy of the normalized phrases in insertion order.
func (s ExclusionSet) Phrases() []string {
	return append([]string(nil), s.phrases...)
}

// Contains reports an exact match.
func (s ExclusionSet) Contains(phrase string) bool {
	_, ok := s.exact[phrase]
	return ok
}

// Excludes applies the coverage rule: a tag is dropped on an exact match, or
// when an exclusion phrase appears inside it as whole tokens and covers at
// least half of the tag's tokens.
func (s ExclusionSet) Excludes(tag string) bool {
	if s.Contains(tag) {
		return true
	}
	tagTokens := strings.Fields(tag)
	if len(tagTokens) == 0 {
		return false
	}
	for _, phrase := range s.phrases {
		exTokens := strings.Fields(phrase)
		if len(exTokens) == 0 || len(exTokens) > len(tagTokens) {
			continue
		}
		if !containsTokens(tagTokens, exTokens) {
			continue
		}
		if float64(len(exTokens))/float64(len(tagTokens)) >= 0.5 {
			return true
		}
	}
	return false
}

func containsTokens(haystack, needle []string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
