package converters

import (
	"fmt"
	"time"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

// BatchConverter renders a finished batch job for export.
type BatchConverter interface {
	Convert(job *models.BatchJob) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportedBatch is the flattened view of a job shared by all formats.
type ExportedBatch struct {
	JobID      string        `json:"jobId"`
	Status     string        `json:"status"`
	Model      string        `json:"model"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Cancelled  bool          `json:"cancelled"`
	Error      string        `json:"error,omitempty"`
	Rows       []ExportedRow `json:"rows"`
	ExportedAt time.Time     `json:"exportedAt"`
}

type ExportedRow struct {
	Row              int      `json:"row"`
	Title            string   `json:"title"`
	Status           string   `json:"status"`
	Tags             []string `json:"tags"`
	Error            string   `json:"error,omitempty"`
	ErrorKind        string   `json:"errorKind,omitempty"`
	ExtractionMethod string   `json:"extractionMethod,omitempty"`
	Language         string   `json:"language,omitempty"`
	QualityTier      string   `json:"qualityTier,omitempty"`
	PageCount        int      `json:"pageCount"`
	IsScanned        bool     `json:"isScanned"`
	ProcessingMs     int64    `json:"processingMs"`
}

// Flatten builds the export view. Rows never reached by a cancelled job
// are listed as pending so the export lines up with the input.
func Flatten(job *models.BatchJob) (*ExportedBatch, error) {
	if job == nil {
		return nil, fmt.Errorf("no job to convert")
	}
	total := max(job.TotalDocuments, len(job.Documents), len(job.Results))
	out := &ExportedBatch{
		JobID:      job.ID,
		Status:     string(job.Status),
		Model:      job.Config.ModelName,
		Total:      total,
		Processed:  job.ProcessedCount,
		Succeeded:  job.SuccessCount(),
		Failed:     job.FailedCount,
		Cancelled:  job.Cancelled,
		Error:      job.Error,
		Rows:       make([]ExportedRow, 0, total),
		ExportedAt: time.Now().UTC(),
	}

	byIndex := make(map[int]models.DocumentResult, len(job.Results))
	for _, r := range job.Results {
		byIndex[r.RowIndex] = r
	}
	for i := 0; i < total; i++ {
		r, ok := byIndex[i]
		if !ok {
			row := ExportedRow{Row: i + 1, Status: string(models.DocumentPending), Tags: []string{}}
			if i < len(job.Documents) {
				row.Title = job.Documents[i].Title
			}
			out.Rows = append(out.Rows, row)
			continue
		}
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		out.Rows = append(out.Rows, ExportedRow{
			Row:              i + 1,
			Title:            r.Title,
			Status:           string(r.Status),
			Tags:             tags,
			Error:            r.Error,
			ErrorKind:        string(r.ErrorKind),
			ExtractionMethod: string(r.ExtractionMethod),
			Language:         r.Language,
			QualityTier:      string(r.QualityTier),
			PageCount:        r.PageCount,
			IsScanned:        r.IsScanned,
			ProcessingMs:     r.ProcessingMs,
		})
	}
	return out, nil
}

// ForFormat picks a converter by name, defaulting to JSON.
func ForFormat(format string) (BatchConverter, error) {
	switch format {
	case "", "json":
		return NewJSONConverter(), nil
	case "xlsx":
		return NewXLSXConverter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}
