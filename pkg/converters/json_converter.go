package converters

import (
	"encoding/json"
	"fmt"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(job *models.BatchJob) ([]byte, error) {
	batch, err := Flatten(job)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}
	return data, nil
}

func (c *JSONConverter) ContentType() string { return "application/json" }
func (c *JSONConverter) Extension() string   { return ".json" }
