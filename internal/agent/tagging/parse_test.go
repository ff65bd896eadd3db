package tagging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

func texts(c []models.TagCandidate) []string {
	out := make([]string, len(c))
	for i := range c {
		out[i] = c[i].Text
	}
	return out
}

func TestParseResponseTiered(t *testing.T) {
	c, structured := ParseResponse(`{"names":["NITI Aayog"],"subjects":["health index"],"actions":["state ranking"]}`)
	assert.True(t, structured)
	assert.Equal(t, []models.TagCandidate{
		{Text: "NITI Aayog", Tier: models.TierName},
		{Text: "health index", Tier: models.TierSubject},
		{Text: "state ranking", Tier: models.TierAction},
	}, c)
}

func TestParseResponseFencedWithProse(t *testing.T) {
	reply := "Here are the tags:\n```json\n{\"actions\": [\"audit report\"], \"names\": [{\"tag\": \"CAG\"}]}\n```\nHope this helps."
	c, structured := ParseResponse(reply)
	assert.True(t, structured)
	assert.Equal(t, []string{"CAG", "audit report"}, texts(c))
	assert.Equal(t, models.TierName, c[0].Tier)
}

func TestParseResponseFlatTags(t *testing.T) {
	c, structured := ParseResponse(`{"tags": "flood relief, disaster management"}`)
	assert.True(t, structured)
	assert.Equal(t, []string{"flood relief", " disaster management"}, texts(c))
}

func TestParseResponseFallbackSplit(t *testing.T) {
	c, structured := ParseResponse("names: flood relief; disaster management\n- Assam\n\n")
	assert.False(t, structured)
	assert.Equal(t, []string{"flood relief", "disaster management", "- Assam"}, texts(c))
	for _, cand := range c {
		assert.Equal(t, models.TierSubject, cand.Tier)
	}
}

func TestParseResponseBrokenJSONFallsBack(t *testing.T) {
	c, structured := ParseResponse(`{"names": ["a b", "c d"`)
	assert.False(t, structured)
	assert.NotEmpty(t, c)
}
