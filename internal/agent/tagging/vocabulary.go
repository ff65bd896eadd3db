package tagging

import "strings"

// Vocabulary is the word-list configuration of the tagging engine. It is
// built once and never mutated, so one value can back many engines.
type Vocabulary struct {
	noise          map[string]struct{}
	generic        []string
	signalKeywords []string
	months         map[string]struct{}
	stopwords      map[string]struct{}
}

var defaultNoise = []string{
	"contact", "email", "e mail", "phone", "fax", "address", "website", "www",
	"http", "https", "document", "documents", "pdf", "file", "page", "pages",
	"copy", "scan", "scanned", "attachment", "annexure", "click here", "n a",
	"na", "nil", "none", "null", "untitled", "unknown", "misc", "miscellaneous",
	"others", "other", "various", "general", "information", "details",
}

var defaultGeneric = []string{
	"government", "india", "policy", "report", "notice", "order", "letter",
	"circular", "guidelines", "information", "public", "department",
	"ministry", "office", "official", "administration", "development",
	"management", "services", "scheme", "program",
}

var defaultSignalKeywords = []string{
	"act", "section", "rule", "rules", "regulation", "amendment", "notification",
	"gazette", "tender", "ref", "reference", "order", "circular", "memorandum",
	"resolution", "scheme", "committee", "commission", "ministry", "department",
	"budget", "audit", "court", "judgment", "petition", "appeal", "subject",
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
	"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct",
	"nov", "dec",
}

var stopwords = []string{
	"a", "an", "and", "the", "of", "for", "to", "in", "on", "at", "by", "with",
	"from", "into", "as", "or", "is", "are", "was", "were", "be", "this", "that",
	"its", "it", "their", "regarding", "about", "under", "dated", "no",
}

// DefaultVocabulary returns the built-in word lists.
func DefaultVocabulary() Vocabulary {
	return NewVocabulary(nil, nil, nil)
}

// NewVocabulary builds a vocabulary; any nil or empty list keeps the default.
func NewVocabulary(noise, generic, signalKeywords []string) Vocabulary {
	if len(noise) == 0 {
		noise = defaultNoise
	}
	if len(generic) == 0 {
		generic = defaultGeneric
	}
	if len(signalKeywords) == 0 {
		signalKeywords = defaultSignalKeywords
	}
	return Vocabulary{
		noise:          toSet(noise, Normalize),
		generic:        normalizeAll(generic),
		signalKeywords: normalizeAll(signalKeywords),
		months:         toSet(monthNames, strings.ToLower),
		stopwords:      toSet(stopwords, strings.ToLower),
	}
}

// IsNoise reports whether a normalized tag is on the noise list.
func (v Vocabulary) IsNoise(tag string) bool {
	_, ok := v.noise[tag]
	return ok
}

// GenericTerms lists broad terms the model is asked to use sparingly.
func (v Vocabulary) GenericTerms() []string {
	return append([]string(nil), v.generic...)
}

// SignalKeywords lists words that mark a line as worth including in the
// content window.
func (v Vocabulary) SignalKeywords() []string {
	return append([]string(nil), v.signalKeywords...)
}

func (v Vocabulary) isMonth(tok string) bool {
	_, ok := v.months[tok]
	return ok
}

func (v Vocabulary) isStopword(tok string) bool {
	_, ok := v.stopwords[tok]
	return ok
}

func toSet(words []string, normalize func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if n := normalize(w); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}
