package language

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Detection methods reported on extraction results.
const (
	MethodStatistical = "statistical"
	MethodScript      = "script"
	MethodDefault     = "default"
)

const sampleSize = 2000

// Language is a supported language and the tesseract configuration for it.
type Language struct {
	Code    string // ISO 639-3
	Name    string
	OCRLang string // tesseract language string, e.g. "hin+eng"
}

// Detection is the outcome of Detect.
type Detection struct {
	Language
	Method     string
	Confidence float64
}

var english = Language{Code: "eng", Name: "English", OCRLang: "eng"}

// Supported maps ISO 639-3 codes to their OCR configuration.
var Supported = map[string]Language{
	"eng": english,
	"hin": {Code: "hin", Name: "Hindi", OCRLang: "hin+eng"},
	"mar": {Code: "mar", Name: "Marathi", OCRLang: "mar+eng"},
	"nep": {Code: "nep", Name: "Nepali", OCRLang: "nep+eng"},
	"san": {Code: "san", Name: "Sanskrit", OCRLang: "san+hin+eng"},
	"ben": {Code: "ben", Name: "Bengali", OCRLang: "ben+eng"},
	"asm": {Code: "asm", Name: "Assamese", OCRLang: "asm+eng"},
	"guj": {Code: "guj", Name: "Gujarati", OCRLang: "guj+eng"},
	"pan": {Code: "pan", Name: "Punjabi", OCRLang: "pan+eng"},
	"ori": {Code: "ori", Name: "Odia", OCRLang: "ori+eng"},
	"tam": {Code: "tam", Name: "Tamil", OCRLang: "tam+eng"},
	"tel": {Code: "tel", Name: "Telugu", OCRLang: "tel+eng"},
	"kan": {Code: "kan", Name: "Kannada", OCRLang: "kan+eng"},
	"mal": {Code: "mal", Name: "Malayalam", OCRLang: "mal+eng"},
	"urd": {Code: "urd", Name: "Urdu", OCRLang: "urd+eng"},
}

// scriptLanguages maps each script to the language best served by its
// OCR model. Order matters only for ties.
var scriptLanguages = []struct {
	table *unicode.RangeTable
	code  string
}{
	{unicode.Devanagari, "hin"},
	{unicode.Bengali, "ben"},
	{unicode.Gujarati, "guj"},
	{unicode.Gurmukhi, "pan"},
	{unicode.Oriya, "ori"},
	{unicode.Tamil, "tam"},
	{unicode.Telugu, "tel"},
	{unicode.Kannada, "kan"},
	{unicode.Malayalam, "mal"},
	{unicode.Arabic, "urd"},
	{unicode.Latin, "eng"},
}

// Detect identifies the language of text and always returns a supported one.
func Detect(text string) Detection {
	sample := leadingSample(text, sampleSize)
	if strings.TrimSpace(sample) == "" {
		return Detection{Language: english, Method: MethodDefault}
	}

	info := whatlanggo.Detect(sample)
	if lang, ok := Supported[info.Lang.Iso6393()]; ok && info.Confidence > 0 {
		return Detection{Language: lang, Method: MethodStatistical, Confidence: info.Confidence}
	}

	if lang, ok := FromScript(sample); ok {
		return Detection{Language: lang, Method: MethodScript}
	}
	return Detection{Language: english, Method: MethodDefault}
}

// FromScript picks the language of the dominant script block in text.
func FromScript(text string) (Language, bool) {
	counts := make([]int, len(scriptLanguages))
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r) {
			continue
		}
		for i, s := range scriptLanguages {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}

	best, bestCount := -1, 0
	for i, c := range counts {
		if c > bestCount {
			best, bestCount = i, c
		}
	}
	if best < 0 {
		return Language{}, false
	}
	return Supported[scriptLanguages[best].code], true
}

// Lookup returns the supported language for a code, defaulting to English.
func Lookup(code string) Language {
	if lang, ok := Supported[strings.ToLower(strings.TrimSpace(code))]; ok {
		return lang
	}
	return english
}

func leadingSample(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := n
	// do not split a multi-byte rune
	for cut > 0 && !utf8RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
