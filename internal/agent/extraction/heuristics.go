package extraction

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minContentChars      = 500
	minCharsPerPage      = 150
	minWordsPerPage      = 50
	substantiveLineChars = 40
	minSubstantiveRatio  = 0.30

	corruptionRatio     = 0.25
	minLegacySignatures = 3
)

// legacyFontSignatures are common Hindi words as they appear when a Kruti Dev
// style font is read back as ASCII: "vkSj" is और, "gS" is है, and so on.
var legacyFontSignatures = map[string]bool{
	"vkSj":   true,
	"gS":     true,
	"ds":     true,
	"dh":     true,
	"esa":    true,
	"dks":    true,
	"ls":     true,
	"fd":     true,
	"Hkkjr":  true,
	"ljdkj":  true,
	"jkT;":   true,
	"foHkkx": true,
}

// Corruption describes how likely a native text layer is font-encoding garbage.
type Corruption struct {
	// Ratio is the share of letters in U+00C0..U+024F, where glyphs of
	// legacy 8-bit Indic fonts land when mapped as Latin.
	Ratio float64
	// Signatures counts distinct legacy-font words found.
	Signatures int
}

func (c Corruption) Corrupt() bool {
	return c.Ratio > corruptionRatio || c.LegacyFont()
}

// LegacyFont reports whether the text looks like a transliterated Indic font.
func (c Corruption) LegacyFont() bool {
	return c.Signatures >= minLegacySignatures
}

// DetectCorruption measures the corruption signals of text.
func DetectCorruption(text string) Corruption {
	var letters, extended int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r >= 0x00C0 && r <= 0x024F {
			extended++
		}
	}

	var c Corruption
	if letters > 0 {
		c.Ratio = float64(extended) / float64(letters)
	}

	seen := make(map[string]bool)
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, `.,:!?()"'`)
		if legacyFontSignatures[tok] && !seen[tok] {
			seen[tok] = true
		}
	}
	c.Signatures = len(seen)
	return c
}

// ShouldAttemptOCR decides whether native text is too thin or too damaged to
// use. The reason is meant for logs and is always set.
func ShouldAttemptOCR(text string, pages int) (bool, string) {
	if c := DetectCorruption(text); c.Corrupt() {
		if c.LegacyFont() {
			return true, fmt.Sprintf("legacy font encoding detected (%d signatures)", c.Signatures)
		}
		return true, fmt.Sprintf("corrupted text layer (%.0f%% extended latin)", c.Ratio*100)
	}

	if pages < 1 {
		pages = 1
	}
	trimmed := strings.TrimSpace(text)
	length := utf8.RuneCountInString(trimmed)
	if length < minContentChars {
		return true, fmt.Sprintf("too little text (%d chars)", length)
	}

	density := float64(length) / float64(pages)
	if density < minCharsPerPage {
		return true, fmt.Sprintf("low text density (%.0f chars/page)", density)
	}

	wordsPerPage := float64(len(strings.Fields(trimmed))) / float64(pages)
	if wordsPerPage >= minWordsPerPage {
		return false, fmt.Sprintf("sufficient native text (%.0f words/page)", wordsPerPage)
	}
	if ratio := substantiveLineRatio(trimmed); ratio >= minSubstantiveRatio {
		return false, fmt.Sprintf("sufficient native text (%.0f%% substantive lines)", ratio*100)
	}
	return true, fmt.Sprintf("sparse text (%.0f words/page)", wordsPerPage)
}

func substantiveLineRatio(text string) float64 {
	var total, substantive int
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		if utf8.RuneCountInString(line) >= substantiveLineChars {
			substantive++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(substantive) / float64(total)
}
