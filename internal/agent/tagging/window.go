package tagging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	defaultWindowChars = 5000
	maxSignalLines     = 25
)

var subjectLine = regexp.MustCompile(`(?i)^\s*(?:subject|sub|re|regarding|title)\s*[:.\-]\s*\S`)

// ContentWindow builds a bounded preview of text that represents the whole
// document: a subject line, slices from the start, middle and end, and lines
// that carry signal terms.
func (v Vocabulary) ContentWindow(text string, limit int) string {
	if limit <= 0 {
		limit = defaultWindowChars
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	lines := strings.Split(text, "\n")
	var heading string
	for _, line := range lines {
		if subjectLine.MatchString(line) {
			heading = clip(strings.TrimSpace(line), 500)
			break
		}
	}

	signals := v.signalLines(lines, heading)

	budget := max(limit-utf8.RuneCountInString(heading), 0)
	signalBudget := budget / 4
	signalText := clip(strings.Join(signals, "\n"), signalBudget)
	budget -= utf8.RuneCountInString(signalText)

	runes := []rune(text)
	startN := budget / 2
	midN := budget / 4
	endN := budget - startN - midN

	start := string(runes[:startN])
	midAt := len(runes)/2 - midN/2
	if midAt < startN {
		midAt = startN
	}
	middle := string(runes[midAt:min(midAt+midN, len(runes))])
	end := string(runes[max(len(runes)-endN, 0):])

	parts := make([]string, 0, 5)
	if heading != "" {
		parts = append(parts, heading)
	}
	parts = append(parts, strings.TrimSpace(start), "[...]\n"+strings.TrimSpace(middle), "[...]\n"+strings.TrimSpace(end))
	if signalText != "" {
		parts = append(parts, "Key lines:\n"+signalText)
	}
	return strings.Join(parts, "\n\n")
}

func (v Vocabulary) signalLines(lines []string, skip string) []string {
	keywords := v.signalKeywords
	var out []string
	seen := make(map[string]bool)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == skip || seen[line] || utf8.RuneCountInString(line) > 300 {
			continue
		}
		if !isSignal(line, keywords) {
			continue
		}
		seen[line] = true
		out = append(out, line)
		if len(out) >= maxSignalLines {
			break
		}
	}
	return out
}

func isSignal(line string, keywords []string) bool {
	if year.MatchString(line) || acronym.MatchString(line) {
		return true
	}
	for _, tok := range strings.Fields(Normalize(line)) {
		for _, k := range keywords {
			if tok == k {
				return true
			}
		}
	}
	return false
}

func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
