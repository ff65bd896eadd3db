package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat completion call.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Provider is a generative text backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// ErrorKind is the provider-level classification of a failed call.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindRateLimit  ErrorKind = "rate_limit"
	KindBadRequest ErrorKind = "bad_request"
	KindOther      ErrorKind = "other"
)

// ProviderError is returned for every failed call that reached, or tried to
// reach, the provider. It unwraps to the matching models sentinel.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	// Network is set for transport failures and client timeouts.
	Network bool
	Err     error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("%s %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
	}
}

func (e *ProviderError) Unwrap() []error {
	var out []error
	switch {
	case e.Kind == KindAuth:
		out = append(out, models.ErrProviderAuth)
	case e.Kind == KindRateLimit:
		out = append(out, &models.RateLimitError{RetryAfter: e.RetryAfter, Message: e.Message})
	case e.Network:
		out = append(out, models.ErrProviderNetwork)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// SystemRoleRejected reports whether the model refused the system message,
// which some instruction-less models do.
func (e *ProviderError) SystemRoleRejected() bool {
	if e.Kind != KindBadRequest {
		return false
	}
	msg := strings.ToLower(e.Message)
	if !strings.Contains(msg, "system") && !strings.Contains(msg, "developer instruction") {
		return false
	}
	return strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "not enabled") ||
		strings.Contains(msg, "does not support")
}

// IsSystemRoleRejected is SystemRoleRejected for any error.
func IsSystemRoleRejected(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.SystemRoleRejected()
}

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return KindBadRequest
	default:
		return KindOther
	}
}

// ParseRetryAfter understands both delta-seconds and HTTP-date values.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncateMessage(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
