package batch

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/agent/tagging"
	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

var (
	rateLimitMarkers = []string{"rate limit", "rate_limit", "ratelimit", "too many requests", "429", "quota"}
	modelMarkers     = []string{
		"model", "not found", "404", "unsupported", "not supported", "incompatible",
		"unauthorized", "401", "403", "api key", "authentication", "invalid_request",
	}
	networkMarkers = []string{
		"timeout", "timed out", "deadline exceeded", "connection", "network",
		"no such host", "dial tcp", "connection reset", "unreachable",
	}
)

// ClassifyError maps a row failure onto the coarse kinds reported to
// clients. Typed errors are checked first, then the message.
func ClassifyError(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindUnknown
	}
	var netErr net.Error
	switch {
	case errors.Is(err, models.ErrProviderRateLimited):
		return models.ErrorKindRateLimit
	case errors.Is(err, models.ErrProviderAuth), errors.Is(err, models.ErrProviderIncompatibleModel):
		return models.ErrorKindModelError
	case errors.Is(err, models.ErrProviderNetwork), errors.Is(err, models.ErrSourceNetwork),
		errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return models.ErrorKindNetwork
	case errors.Is(err, models.ErrSourceUnavailable), errors.Is(err, models.ErrObjectNotFound):
		return models.ErrorKindUnknown
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage inspects a failure message. Rate limiting wins over the
// other markers since such messages often mention the model too.
func ClassifyMessage(msg string) models.ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case m == "":
		return models.ErrorKindUnknown
	case containsAny(m, rateLimitMarkers):
		return models.ErrorKindRateLimit
	case containsAny(m, networkMarkers):
		return models.ErrorKindNetwork
	case containsAny(m, modelMarkers):
		return models.ErrorKindModelError
	default:
		return models.ErrorKindUnknown
	}
}

// KindForTagging folds the synthesis engine's error kinds into row kinds.
func KindForTagging(kind tagging.ErrorKind) models.ErrorKind {
	switch kind {
	case tagging.KindRateLimited:
		return models.ErrorKindRateLimit
	case tagging.KindAuth, tagging.KindModelIncompatible:
		return models.ErrorKindModelError
	case tagging.KindNetwork:
		return models.ErrorKindNetwork
	default:
		return models.ErrorKindUnknown
	}
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
