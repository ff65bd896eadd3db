package ocrworker

// Request is written as JSON to the worker's stdin. Page images are passed
// as PNG files on disk rather than through the pipe.
type Request struct {
	Lang         string   `json:"lang"`
	ImagePaths   []string `json:"imagePaths"`
	MaxDimension int      `json:"maxDimension"`
	TessdataDir  string   `json:"tessdataDir,omitempty"`
}

// Response is written as JSON to the worker's stdout.
type Response struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	HasConfidence bool    `json:"hasConfidence"`
	Pages         int     `json:"pages"`
	Error         string  `json:"error,omitempty"`
}
