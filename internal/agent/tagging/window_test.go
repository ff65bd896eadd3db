package tagging

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExtractAnchors(t *testing.T) {
	v := DefaultVocabulary()
	text := `GOVERNMENT OF MAHARASHTRA
Subject: Implementation of the PMAY scheme under Section 12 of the Housing Act 2016
Reference No. UDD/2021/45 dated 12.03.2021
The scheme covers FY 2020-21 and 2021-22 for urban households.`

	a := v.ExtractAnchors("Housing for All: PMAY Urban Guidelines", "", text)

	assert.Contains(t, a.Years, "2020-21")
	assert.Contains(t, a.Years, "2016")
	assert.Contains(t, a.Acronyms, "PMAY")
	assert.NotContains(t, a.Acronyms, "THE")
	assert.Contains(t, a.Identifiers, "Section 12")
	assert.Contains(t, a.Phrases, "housing")
	assert.Contains(t, a.Phrases, "pmay urban guidelines")
	assert.NotEmpty(t, a.All())
}

func TestContentWindowShortTextUnchanged(t *testing.T) {
	v := DefaultVocabulary()
	assert.Equal(t, "short body", v.ContentWindow("  short body \n", 5000))
}

func TestContentWindowIsBoundedAndRepresentative(t *testing.T) {
	v := DefaultVocabulary()
	var b strings.Builder
	b.WriteString("Subject: Annual audit of district hospitals\n")
	for i := 0; i < 400; i++ {
		switch i {
		case 0:
			b.WriteString("OPENING paragraph marker\n")
		case 200:
			b.WriteString("middle marker line about procurement\n")
		case 399:
			b.WriteString("closing marker signed by the director\n")
		default:
			b.WriteString("the quick brown fox jumps over the lazy dog again\n")
		}
	}
	b.WriteString("Notification issued under Rule 7 of the hospital rules\n")
	text := b.String()

	w := v.ContentWindow(text, 5000)
	assert.LessOrEqual(t, utf8.RuneCountInString(w), 5100)
	assert.True(t, strings.HasPrefix(w, "Subject: Annual audit of district hospitals"))
	assert.Contains(t, w, "OPENING paragraph marker")
	assert.Contains(t, w, "middle marker")
	assert.Contains(t, w, "closing marker")
	assert.Contains(t, w, "Notification issued under Rule 7")
}
