package tagging

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

var (
	codeFence  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	delimiters = regexp.MustCompile(`[,;\n]+`)
)

var tierKeys = []struct {
	key  string
	tier models.Tier
}{
	{"names", models.TierName},
	{"subjects", models.TierSubject},
	{"actions", models.TierAction},
	// flat lists from models that ignore the tier instructions
	{"tags", models.TierSubject},
}

// ParseResponse reads the tiered JSON reply. When no usable JSON is found it
// splits the raw text on commas, semicolons and newlines, giving every
// candidate the same tier. The bool reports whether JSON was used.
func ParseResponse(text string) ([]models.TagCandidate, bool) {
	if candidates := parseJSON(text); len(candidates) > 0 {
		return candidates, true
	}
	return splitCandidates(text), false
}

func parseJSON(text string) []models.TagCandidate {
	body := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body[start:end+1]), &raw); err != nil {
		return nil
	}

	var out []models.TagCandidate
	for _, tk := range tierKeys {
		msg, ok := raw[tk.key]
		if !ok {
			continue
		}
		for _, s := range stringsOf(msg) {
			out = append(out, models.TagCandidate{Text: s, Tier: tk.tier})
		}
	}
	return out
}

// stringsOf accepts ["a","b"], "a, b" and [{"tag":"a"}] shapes.
func stringsOf(msg json.RawMessage) []string {
	var list []any
	if err := json.Unmarshal(msg, &list); err != nil {
		var single string
		if json.Unmarshal(msg, &single) == nil {
			return delimiters.Split(single, -1)
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			for _, k := range []string{"tag", "name", "text", "value"} {
				if s, ok := v[k].(string); ok {
					out = append(out, s)
					break
				}
			}
		}
	}
	return out
}

func splitCandidates(text string) []models.TagCandidate {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	var out []models.TagCandidate
	for _, part := range delimiters.Split(text, -1) {
		part = strings.Trim(strings.TrimSpace(part), `"'[]{}`)
		if part == "" {
			continue
		}
		// drop "names:" style labels the model may echo
		if i := strings.Index(part, ":"); i >= 0 && i < 12 {
			part = strings.TrimSpace(part[i+1:])
		}
		if part != "" {
			out = append(out, models.TagCandidate{Text: part, Tier: models.TierSubject})
		}
	}
	return out
}
