package tagging

import (
	"regexp"
	"strings"
)

const maxAnchors = 15

var (
	yearRange   = regexp.MustCompile(`\b(?:19|20)\d{2}\s*[-–/]\s*(?:(?:19|20)\d{2}|\d{2})\b`)
	year        = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	acronym     = regexp.MustCompile(`\b[A-Z][A-Z&]{1,7}\b`)
	identifier  = regexp.MustCompile(`(?i)\b(?:section|sec\.|article|rule|clause|chapter|schedule|act|order|circular|notification|tender|ref(?:erence)?\.?(?:\s*no\.?)?|file\s*no\.?|f\.?\s*no\.?)\s*[:#]?\s*[A-Z0-9][A-Z0-9\-/.()]{0,24}`)
	titleSplits = regexp.MustCompile(`[,;:()\[\]|]+|\s[-–]\s`)
)

// acronymNoise are capitalised words that are rarely meaningful anchors.
var acronymNoise = map[string]bool{
	"THE": true, "AND": true, "FOR": true, "OF": true, "TO": true, "IN": true,
	"NO": true, "PDF": true, "PAGE": true, "DATE": true, "SUB": true, "REF": true,
}

// Anchors are high-signal terms pulled from a document without the model.
type Anchors struct {
	Years       []string
	Identifiers []string
	Acronyms    []string
	Phrases     []string
}

// All flattens the anchors in priority order, without duplicates.
func (a Anchors) All() []string {
	var all []string
	all = append(all, a.Identifiers...)
	all = append(all, a.Phrases...)
	all = append(all, a.Acronyms...)
	all = append(all, a.Years...)
	return Dedup(all)
}

// ExtractAnchors finds years, identifier-like phrases, acronyms and short
// title or description phrases.
func (v Vocabulary) ExtractAnchors(title, description, text string) Anchors {
	head := title + "\n" + description + "\n" + text
	var a Anchors

	a.Years = firstN(Dedup(append(yearRange.FindAllString(head, -1), year.FindAllString(head, -1)...)), 5)

	for _, m := range identifier.FindAllString(head, -1) {
		m = strings.TrimRight(strings.Join(strings.Fields(m), " "), ".-/")
		if hasDigit(m) {
			a.Identifiers = append(a.Identifiers, m)
		}
	}
	a.Identifiers = firstN(Dedup(a.Identifiers), 5)

	for _, m := range acronym.FindAllString(head, -1) {
		if !acronymNoise[m] {
			a.Acronyms = append(a.Acronyms, m)
		}
	}
	a.Acronyms = firstN(Dedup(a.Acronyms), 6)

	a.Phrases = firstN(Dedup(append(v.phrases(title), v.phrases(description)...)), 6)
	return a
}

// phrases splits s at punctuation and stopwords into 1-4 token phrases.
func (v Vocabulary) phrases(s string) []string {
	var out []string
	for _, chunk := range titleSplits.Split(s, -1) {
		var cur []string
		flush := func() {
			if len(cur) > 0 && len(cur) <= maxTagTokens {
				if p := Normalize(strings.Join(cur, " ")); len(p) > 2 {
					out = append(out, p)
				}
			}
			cur = nil
		}
		for _, tok := range strings.Fields(chunk) {
			if v.isStopword(strings.ToLower(strings.Trim(tok, ".,'\""))) {
				flush()
				continue
			}
			cur = append(cur, tok)
		}
		flush()
	}
	return out
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
