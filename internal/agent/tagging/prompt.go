package tagging

import (
	"fmt"
	"math"
	"strings"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/llm"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

const systemPrompt = `You generate search tags for documents in a public records archive.
Reply with a single JSON object and nothing else:
{"names": [...], "subjects": [...], "actions": [...]}
Rules for every tag:
- English, lowercase, 1 to 4 words, no punctuation except spaces
- no dates, page numbers, reference numbers on their own, or file names
- no generic filler such as "document", "pdf", "information" or "details"
- never repeat a tag, and never repeat a tag listed as already collected`

// Quotas splits a tag count across the three tiers.
type Quotas struct {
	Names    int
	Subjects int
	Actions  int
}

func (q Quotas) Total() int { return q.Names + q.Subjects + q.Actions }

// TierQuotas gives names about half, subjects about a third and actions the
// rest, keeping every tier non-empty once there are at least three tags.
func TierQuotas(n int) Quotas {
	if n <= 0 {
		return Quotas{}
	}
	q := Quotas{
		Names:    int(math.Ceil(float64(n) * 0.5)),
		Subjects: int(math.Round(float64(n) * 0.3)),
	}
	if q.Names+q.Subjects > n {
		q.Subjects = n - q.Names
	}
	q.Actions = n - q.Names - q.Subjects
	if n >= 3 && q.Actions == 0 {
		q.Actions = 1
		if q.Names > q.Subjects {
			q.Names--
		} else {
			q.Subjects--
		}
	}
	return q
}

type promptInput struct {
	Title       string
	Description string
	Window      string
	Anchors     []string
	Language    string
	Quality     models.QualityTier
	Quotas      Quotas
	Collected   []string
	Generic     []string
}

func buildUserPrompt(in promptInput) string {
	var b strings.Builder

	if in.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", in.Title)
	}
	if in.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.Description)
	}
	if in.Language != "" && !strings.EqualFold(in.Language, "english") {
		fmt.Fprintf(&b, "Document language: %s. Write the tags in English; transliterate proper names.\n", in.Language)
	}
	if in.Quality == models.QualityLow {
		b.WriteString("The text below comes from low-confidence OCR. Ignore garbled words and do not tag them.\n")
	}
	if len(in.Anchors) > 0 {
		fmt.Fprintf(&b, "Key terms found in the document: %s\n", strings.Join(in.Anchors, "; "))
	}

	b.WriteString("\nDocument content:\n\"\"\"\n")
	b.WriteString(in.Window)
	b.WriteString("\n\"\"\"\n\n")

	q := in.Quotas
	fmt.Fprintf(&b, "Return %d tags in total:\n", q.Total())
	fmt.Fprintf(&b, "- names: %d specific named entities (organisations, people, places, schemes, laws, projects)\n", q.Names)
	fmt.Fprintf(&b, "- subjects: %d topics or domains the document is about\n", q.Subjects)
	fmt.Fprintf(&b, "- actions: %d tags for what the document does (e.g. tender notice, budget allocation, appointment order)\n", q.Actions)

	minEntities := q.Names
	if minEntities > 3 {
		minEntities = 3
	}
	fmt.Fprintf(&b, "At least %d tags should name a specific entity. Use at most 2 broad thematic terms", minEntities)
	if len(in.Generic) > 0 {
		fmt.Fprintf(&b, " such as %s", strings.Join(firstN(in.Generic, 6), ", "))
	}
	b.WriteString(".\n")

	if len(in.Collected) > 0 {
		fmt.Fprintf(&b, "Already collected (do not repeat these or close variants): %s\n", strings.Join(in.Collected, ", "))
	}
	return b.String()
}

// messages builds the chat messages; merged folds the instructions into
// the user turn for models that reject the system role.
func messages(user string, merged bool) []llm.Message {
	if merged {
		return []llm.Message{{Role: llm.RoleUser, Content: systemPrompt + "\n\n" + user}}
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
}
