package models

// ExtractionMethod names the stage whose text was kept.
type ExtractionMethod string

const (
	MethodNative                ExtractionMethod = "native"
	MethodFastOCR               ExtractionMethod = "fast-ocr"
	MethodAccurateOCR           ExtractionMethod = "accurate-ocr"
	MethodRescueRender          ExtractionMethod = "rescue-render"
	MethodNativeOCRInsufficient ExtractionMethod = "native_ocr_insufficient"
	MethodFailed                ExtractionMethod = "failed"
)

// IsOCR reports whether text for this method came from an OCR engine.
func (m ExtractionMethod) IsOCR() bool {
	switch m {
	case MethodFastOCR, MethodAccurateOCR, MethodRescueRender:
		return true
	default:
		return false
	}
}

// DocumentType is the coarse origin of a document's text.
type DocumentType string

const (
	DocumentDigital DocumentType = "digital"
	DocumentScanned DocumentType = "scanned"
)

// QualityTier classifies how trustworthy extracted text is.
type QualityTier string

const (
	QualityHigh   QualityTier = "high"
	QualityMedium QualityTier = "medium"
	QualityLow    QualityTier = "low"
)

// RawDocument is the input to extraction. Data is never modified.
type RawDocument struct {
	Data      []byte
	PageLimit int
}

// QualityInfo summarizes extraction quality for downstream consumers.
type QualityInfo struct {
	Type              DocumentType `json:"type"`
	TextDensity       float64      `json:"textDensity"`
	Tier              QualityTier  `json:"tier"`
	RecommendedEngine string       `json:"recommendedEngine"`
}

// ExtractionResult is what the extraction engine returns for one document.
type ExtractionResult struct {
	Success          bool             `json:"success"`
	Text             string           `json:"text"`
	PageCount        int              `json:"pageCount"`
	PagesExtracted   int              `json:"pagesExtracted"`
	Title            string           `json:"title,omitempty"`
	IsScanned        bool             `json:"isScanned"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod"`
	OCRConfidence    *float64         `json:"ocrConfidence,omitempty"`
	DetectedLanguage string           `json:"detectedLanguage"`
	LanguageName     string           `json:"languageName"`
	DetectionMethod  string           `json:"detectionMethod"`
	QualityInfo      QualityInfo      `json:"qualityInfo"`
	Error            string           `json:"error,omitempty"`
}

// FailedExtraction builds a result that honors the "no text on failure" rule.
func FailedExtraction(reason string) ExtractionResult {
	return ExtractionResult{
		Success:          false,
		ExtractionMethod: MethodFailed,
		Error:            reason,
		QualityInfo: QualityInfo{
			Type: DocumentScanned,
			Tier: QualityLow,
		},
	}
}
