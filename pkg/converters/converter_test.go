package converters

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

func cancelledJob(t *testing.T) *models.BatchJob {
	t.Helper()
	job := models.NewBatchJob("job-x", []models.DocumentRef{
		{Title: "Water circular"}, {Title: "Road tender"}, {Title: "Never reached"},
	}, models.JobConfig{ModelName: "openai/gpt-4o-mini", PagesToExtract: 3, TagsRequested: 3})
	require.NoError(t, job.Transition(models.JobProcessing))
	job.Record(models.DocumentResult{
		RowIndex: 0, Title: "Water circular", Status: models.DocumentSuccess,
		Tags: []string{"jal shakti", "water supply"}, ExtractionMethod: models.MethodNative,
	})
	job.Record(models.DocumentResult{
		RowIndex: 1, Title: "Road tender", Status: models.DocumentFailed,
		Error: "rate limited", ErrorKind: models.ErrorKindRateLimit,
	})
	require.NoError(t, job.Transition(models.JobCancelled))
	return job
}

func TestFlattenPadsUnreachedRows(t *testing.T) {
	batch, err := Flatten(cancelledJob(t))
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
	assert.True(t, batch.Cancelled)
	require.Len(t, batch.Rows, 3)
	assert.Equal(t, "success", batch.Rows[0].Status)
	assert.Equal(t, "rate-limit", batch.Rows[1].ErrorKind)
	assert.Equal(t, "pending", batch.Rows[2].Status)
	assert.Equal(t, "Never reached", batch.Rows[2].Title)
	assert.Equal(t, 3, batch.Rows[2].Row)

	_, err = Flatten(nil)
	assert.Error(t, err)
}

func TestJSONConverter(t *testing.T) {
	data, err := NewJSONConverter().Convert(cancelledJob(t))
	require.NoError(t, err)

	var got ExportedBatch
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "job-x", got.JobID)
	assert.Equal(t, "cancelled", got.Status)
	assert.Equal(t, []string{"jal shakti", "water supply"}, got.Rows[0].Tags)
	assert.Equal(t, []string{}, got.Rows[1].Tags)
}

func TestXLSXConverter(t *testing.T) {
	data, err := NewXLSXConverter().Convert(cancelledJob(t))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(resultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Tags", rows[0][3])
	assert.Equal(t, "jal shakti, water supply", rows[1][3])
	assert.Equal(t, "pending", rows[3][2])
}

func TestForFormat(t *testing.T) {
	c, err := ForFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", c.Extension())

	c, err = ForFormat("")
	require.NoError(t, err)
	assert.Equal(t, "application/json", c.ContentType())

	_, err = ForFormat("csv")
	assert.Error(t, err)
}
