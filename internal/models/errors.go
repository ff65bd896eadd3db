package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrExtractionFailure         = errors.New("extraction failure")
	ErrInsufficientContent       = errors.New("insufficient content")
	ErrOCRUnavailable            = errors.New("ocr engine unavailable")
	ErrOCRWorkerCrashed          = errors.New("ocr worker crashed")
	ErrOCRTimeout                = errors.New("ocr worker timed out")
	ErrProviderAuth              = errors.New("provider authentication failed")
	ErrProviderRateLimited       = errors.New("provider rate limited")
	ErrProviderIncompatibleModel = errors.New("provider model incompatible")
	ErrProviderNetwork           = errors.New("provider network error")
	ErrUnknown                   = errors.New("unknown error")
	ErrJobNotFound               = errors.New("job not found")
	ErrObjectNotFound            = errors.New("object not found")
	ErrSourceUnavailable         = errors.New("document source unavailable")
	ErrSourceNetwork             = errors.New("document source network error")
)

// RateLimitError carries the provider's retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}

func (e *RateLimitError) Unwrap() error { return ErrProviderRateLimited }
