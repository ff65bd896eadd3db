package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

var minimalPDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n")

func TestValidateUploadAcceptsPDF(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)
	res := v.ValidateUpload("Circular.PDF", minimalPDF)

	assert.True(t, res.IsValid, "%+v", res.Errors)
	assert.Equal(t, ".pdf", res.FileInfo.Extension)
	assert.Equal(t, "application/pdf", res.FileInfo.MimeType)
	assert.Len(t, res.FileInfo.Hash, 64)
}

func TestValidateUploadRejects(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), &ValidatorConfig{MaxFileSize: 16})

	tests := []struct {
		name string
		file string
		data []byte
		code string
	}{
		{"empty", "a.pdf", nil, "EMPTY_FILE"},
		{"too large", "a.pdf", minimalPDF, "FILE_TOO_LARGE"},
		{"extension", "a.docx", []byte("%PDF-1.4"), "INVALID_FILE_TYPE"},
		{"not a pdf", "a.pdf", []byte("<html></html>"), "INVALID_MIME_TYPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateUpload(tt.file, tt.data)
			require.False(t, res.IsValid)
			var codes []string
			for _, e := range res.Errors {
				codes = append(codes, e.Code)
			}
			assert.Contains(t, codes, tt.code)
		})
	}
}

func TestValidateJob(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), &ValidatorConfig{MaxDocuments: 2})
	good := models.JobConfig{ModelName: "m", PagesToExtract: 3, TagsRequested: 8}

	assert.Empty(t, v.ValidateJob([]models.DocumentRef{
		{SourceKind: models.SourceURL, Locator: "https://example.org/a.pdf"},
		{SourceKind: models.SourceInline, Data: minimalPDF},
	}, good))

	errs := v.ValidateJob([]models.DocumentRef{
		{SourceKind: models.SourceURL},
		{SourceKind: "ftp", Locator: "x"},
		{SourceKind: models.SourceInline},
	}, models.JobConfig{ModelName: "m", PagesToExtract: 3, TagsRequested: 2})

	var codes []string
	for _, e := range errs {
		codes = append(codes, e.Code)
	}
	assert.ElementsMatch(t, []string{"TOO_MANY_DOCUMENTS", "MISSING_LOCATOR", "INVALID_SOURCE", "EMPTY_FILE", "INVALID_CONFIG"}, codes)

	errs = v.ValidateJob(nil, good)
	require.Len(t, errs, 1)
	assert.Equal(t, "NO_DOCUMENTS", errs[0].Code)
}
