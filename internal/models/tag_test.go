package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func TestExclusionCoverage(t *testing.T) {
	tests := []struct {
		name      string
		exclusion string
		tag       string
		excluded  bool
	}{
		{"short word does not veto long tag", "act", "official languages act 1963", false},
		{"two of three tokens", "social justice", "social justice ministry", true},
		{"exact match", "budget", "budget", true},
		{"half coverage", "annual report", "annual report 2020 india", true},
		{"not contiguous", "report annual", "annual report", false},
		{"partial token is not a token", "act", "action plan", false},
		{"longer exclusion than tag", "national health mission", "health mission", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewExclusionSet([]string{tt.exclusion}, lower)
			assert.Equal(t, tt.excluded, set.Excludes(tt.tag))
		})
	}
}

func TestNewExclusionSetDeduplicates(t *testing.T) {
	set := NewExclusionSet([]string{"Budget", " budget ", "", "Policy"}, lower)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"budget", "policy"}, set.Phrases())
}

func TestRateLimitErrorUnwraps(t *testing.T) {
	err := &RateLimitError{RetryAfter: 2 * time.Second, Message: "slow down"}
	assert.True(t, errors.Is(err, ErrProviderRateLimited))
	assert.Contains(t, err.Error(), "2s")
}
