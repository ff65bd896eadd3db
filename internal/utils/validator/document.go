package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
	"github.com/itsdivyanshjha/meta-data-tag-generator/pkg/logger"
)

// DocumentValidator checks uploads and job settings before any work is
// queued.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
	MaxDocuments      int
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e ValidationError) Error() string { return e.Message }

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{}
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = 50 * 1024 * 1024
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".pdf"}
	}
	if config.MaxDocuments <= 0 {
		config.MaxDocuments = 500
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateUpload checks one uploaded file held in memory.
func (v *DocumentValidator) ValidateUpload(filename string, data []byte) *ValidationResult {
	sum := sha256.Sum256(data)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      int64(len(data)),
			Extension: strings.ToLower(filepath.Ext(filename)),
			MimeType:  http.DetectContentType(data),
			Hash:      hex.EncodeToString(sum[:]),
		},
	}

	add := func(code, field, format string, args ...any) {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			Field:   field,
		})
	}

	info := result.FileInfo
	switch {
	case info.Size == 0:
		add("EMPTY_FILE", "file", "File %s is empty", filename)
	case info.Size > v.config.MaxFileSize:
		add("FILE_TOO_LARGE", "size", "File size exceeds maximum limit of %d bytes", v.config.MaxFileSize)
	}
	if !v.extensionAllowed(info.Extension) {
		add("INVALID_FILE_TYPE", "extension", "File type %s is not allowed", info.Extension)
	}
	if info.Size > 0 && !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-")) {
		add("INVALID_MIME_TYPE", "mimeType", "File %s is not a PDF (detected %s)", filename, info.MimeType)
	}

	if !result.IsValid {
		v.logger.Debug("Upload rejected",
			logger.String("filename", filename),
			logger.Int64("size", info.Size),
			logger.Any("errors", result.Errors),
		)
	}
	return result
}

func (v *DocumentValidator) extensionAllowed(ext string) bool {
	for _, allowed := range v.config.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ValidateJob checks the job configuration and the document list.
func (v *DocumentValidator) ValidateJob(docs []models.DocumentRef, cfg models.JobConfig) []ValidationError {
	var errs []ValidationError
	if len(docs) == 0 {
		errs = append(errs, ValidationError{Code: "NO_DOCUMENTS", Message: "At least one document is required", Field: "documents"})
	}
	if len(docs) > v.config.MaxDocuments {
		errs = append(errs, ValidationError{
			Code:    "TOO_MANY_DOCUMENTS",
			Message: fmt.Sprintf("A batch may hold at most %d documents, got %d", v.config.MaxDocuments, len(docs)),
			Field:   "documents",
		})
	}
	for i, d := range docs {
		switch d.SourceKind {
		case models.SourceURL, models.SourceObjectStore, models.SourceLocal:
			if strings.TrimSpace(d.Locator) == "" {
				errs = append(errs, ValidationError{
					Code:    "MISSING_LOCATOR",
					Message: fmt.Sprintf("Row %d has no file location", i+1),
					Field:   fmt.Sprintf("documents[%d].locator", i),
				})
			}
		case models.SourceInline:
			if len(d.Data) == 0 {
				errs = append(errs, ValidationError{
					Code:    "EMPTY_FILE",
					Message: fmt.Sprintf("Row %d has no file data", i+1),
					Field:   fmt.Sprintf("documents[%d].data", i),
				})
			}
		default:
			errs = append(errs, ValidationError{
				Code:    "INVALID_SOURCE",
				Message: fmt.Sprintf("Row %d has unknown source kind %q", i+1, d.SourceKind),
				Field:   fmt.Sprintf("documents[%d].sourceKind", i),
			})
		}
	}
	if err := cfg.Validate(); err != nil {
		errs = append(errs, ValidationError{Code: "INVALID_CONFIG", Message: err.Error(), Field: "config"})
	}
	return errs
}
