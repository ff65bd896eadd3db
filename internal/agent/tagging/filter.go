package tagging

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

const (
	minTagLength = 2
	maxTagLength = 80
	maxTagTokens = 4

	gibberishSegmentLength = 7
	gibberishVowelRatio    = 0.08
	maxConsonantRun        = 5
)

// Rejection reasons reported by Filter.
const (
	RejectEmpty       = "empty"
	RejectLength      = "length"
	RejectNonASCII    = "non-ascii"
	RejectTokens      = "too-many-tokens"
	RejectRoman       = "roman-numeral"
	RejectDateNumber  = "date-or-number"
	RejectGibberish   = "gibberish"
	RejectNoise       = "noise"
	RejectExcluded    = "excluded"
	RejectDuplicate   = "duplicate"
	RejectOverflowing = "over-target"
)

var (
	leadingMarker = regexp.MustCompile(`^\s*(?:[-*•·▪►>#]+|\(?\d{1,2}[.)]|\(?[a-z][.)])\s+`)
	romanNumeral  = regexp.MustCompile(`^m{0,4}(?:cm|cd|d?c{0,3})(?:xc|xl|l?x{0,3})(?:ix|iv|v?i{0,3})$`)
	numberToken   = regexp.MustCompile(`^\d+(?:st|nd|rd|th)?$`)

	// romanLookalikes spell valid numerals but are far more often
	// abbreviations or words ("cm" chief minister, "dc" district
	// collector). Every other numeral-shaped token is still rejected.
	romanLookalikes = map[string]struct{}{
		"cc": {}, "cd": {}, "cm": {}, "cv": {}, "dc": {},
		"md": {}, "mcd": {}, "mix": {},
	}
)

// Normalize lowercases a raw candidate, strips list markers and quotes, and
// turns punctuation, hyphens and slashes into single spaces.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = leadingMarker.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '‘':
			// "minister's" reads better as "ministers" than "minister s"
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Reject returns the reason a normalized tag fails the quality filters, or
// "" when it passes. Checks run in a fixed order.
func (v Vocabulary) Reject(tag string) string {
	if tag == "" {
		return RejectEmpty
	}
	if n := len(tag); n < minTagLength || n > maxTagLength {
		return RejectLength
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] >= unicode.MaxASCII {
			return RejectNonASCII
		}
	}
	tokens := strings.Fields(tag)
	if len(tokens) > maxTagTokens {
		return RejectTokens
	}
	if allTokens(tokens, isRomanNumeral) {
		return RejectRoman
	}
	if allTokens(tokens, func(t string) bool { return numberToken.MatchString(t) || v.isMonth(t) }) {
		return RejectDateNumber
	}
	if IsGibberish(tag) {
		return RejectGibberish
	}
	if v.IsNoise(tag) {
		return RejectNoise
	}
	return ""
}

func isRomanNumeral(token string) bool {
	if _, ok := romanLookalikes[token]; ok {
		return false
	}
	return romanNumeral.MatchString(token)
}

func allTokens(tokens []string, pred func(string) bool) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !pred(t) {
			return false
		}
	}
	return true
}

// IsGibberish flags strings that read like OCR debris: a long letter run
// with almost no vowels, or a run of six or more consonants. Only a, e, i,
// o and u are vowels, so "rhythms" is rejected along with "bcdfyghjk".
func IsGibberish(tag string) bool {
	for _, seg := range letterSegments(tag) {
		vowels, run := 0, 0
		for _, r := range seg {
			if isVowel(r) {
				vowels++
				run = 0
				continue
			}
			run++
			if run > maxConsonantRun {
				return true
			}
		}
		if len(seg) >= gibberishSegmentLength && float64(vowels)/float64(len(seg)) < gibberishVowelRatio {
			return true
		}
	}
	return false
}

func letterSegments(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// Dedup drops case-insensitive repeats, keeping the first spelling seen.
func Dedup(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Selection is the outcome of running candidates through the filters.
type Selection struct {
	Tags     []string
	Rejected map[string]int
}

// Select normalizes, filters and excludes candidates, orders them by tier
// (arrival order within a tier), deduplicates and truncates to limit.
func (v Vocabulary) Select(candidates []models.TagCandidate, exclusions models.ExclusionSet, limit int) Selection {
	sel := Selection{Rejected: make(map[string]int)}

	kept := make([]models.TagCandidate, 0, len(candidates))
	for _, c := range candidates {
		tag := Normalize(c.Text)
		if reason := v.Reject(tag); reason != "" {
			sel.Rejected[reason]++
			continue
		}
		if exclusions.Excludes(tag) {
			sel.Rejected[RejectExcluded]++
			continue
		}
		kept = append(kept, models.TagCandidate{Text: tag, Tier: c.Tier})
	}

	ordered := make([]string, 0, len(kept))
	for _, tier := range []models.Tier{models.TierName, models.TierSubject, models.TierAction} {
		for _, c := range kept {
			if c.Tier == tier {
				ordered = append(ordered, c.Text)
			}
		}
	}

	sel.Tags = Dedup(ordered)
	if d := len(ordered) - len(sel.Tags); d > 0 {
		sel.Rejected[RejectDuplicate] += d
	}
	if limit > 0 && len(sel.Tags) > limit {
		sel.Rejected[RejectOverflowing] += len(sel.Tags) - limit
		sel.Tags = sel.Tags[:limit]
	}
	return sel
}
