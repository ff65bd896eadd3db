package converters

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

const resultsSheet = "Results"

var xlsxHeaders = []string{
	"Row", "Title", "Status", "Tags", "Error", "Error Kind",
	"Extraction Method", "Language", "Quality", "Pages", "Scanned", "Processing ms",
}

// XLSXConverter writes one spreadsheet row per document with the tags
// joined into a single cell, the shape the upload sheet came in.
type XLSXConverter struct{}

func NewXLSXConverter() *XLSXConverter {
	return &XLSXConverter{}
}

func (c *XLSXConverter) Convert(job *models.BatchJob) ([]byte, error) {
	batch, err := Flatten(job)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	for i, h := range xlsxHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(resultsSheet, cell, h)
	}

	for i, r := range batch.Rows {
		row := i + 2
		values := []any{
			r.Row, r.Title, r.Status, strings.Join(r.Tags, ", "), r.Error, r.ErrorKind,
			r.ExtractionMethod, r.Language, r.QualityTier, r.PageCount, r.IsScanned, r.ProcessingMs,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(resultsSheet, cell, v); err != nil {
				return nil, fmt.Errorf("xlsx cell %s: %w", cell, err)
			}
		}
	}

	_ = f.SetColWidth(resultsSheet, "B", "B", 40)
	_ = f.SetColWidth(resultsSheet, "D", "D", 80)
	_ = f.SetColWidth(resultsSheet, "E", "E", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *XLSXConverter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (c *XLSXConverter) Extension() string { return ".xlsx" }
