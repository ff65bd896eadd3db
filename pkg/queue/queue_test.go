package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

func TestBatchPayloadKeepsAPIKey(t *testing.T) {
	job := models.NewBatchJob("job-1", []models.DocumentRef{
		{Title: "Circular 12", SourceKind: models.SourceURL, Locator: "https://example.gov.in/c12.pdf"},
	}, models.JobConfig{
		APIKey:         "sk-or-secret",
		ModelName:      "openai/gpt-4o-mini",
		PagesToExtract: 3,
		TagsRequested:  8,
		ExclusionWords: []string{"government"},
	})

	data, err := json.Marshal(NewBatchPayload(job, true))
	require.NoError(t, err)

	p, err := DecodeBatchPayload(data)
	require.NoError(t, err)
	assert.True(t, p.RequireSubscriber)

	restored := p.Job()
	assert.Equal(t, "job-1", restored.ID)
	assert.Equal(t, models.JobPending, restored.Status)
	assert.Equal(t, "sk-or-secret", restored.Config.APIKey)
	assert.Equal(t, job.Config.ExclusionWords, restored.Config.ExclusionWords)
	assert.Equal(t, job.Documents, restored.Documents)
	assert.True(t, job.CreatedAt.Equal(restored.CreatedAt))
}

func TestDecodeBatchPayloadRejectsInvalid(t *testing.T) {
	_, err := DecodeBatchPayload([]byte(`{"documents":[]}`))
	assert.Error(t, err)

	_, err = DecodeBatchPayload([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeResultsOrdersRows(t *testing.T) {
	enc := func(r models.DocumentResult) string {
		b, err := json.Marshal(r)
		require.NoError(t, err)
		return string(b)
	}
	rows := map[string]string{
		"2": enc(models.DocumentResult{RowIndex: 2, Status: models.DocumentFailed}),
		"0": enc(models.DocumentResult{RowIndex: 0, Status: models.DocumentSuccess}),
		"1": "garbage",
	}

	got := decodeResults(rows)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].RowIndex)
	assert.Equal(t, 2, got[1].RowIndex)
}

func TestWeightsCoverQueues(t *testing.T) {
	w := Weights()
	for _, name := range queueNames {
		assert.Contains(t, w, name)
	}
	assert.Equal(t, 6, w["critical"])
}
