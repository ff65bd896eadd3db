package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsdivyanshjha/meta-data-tag-generator/internal/models"
)

func chatRequest() Request {
	return Request{
		Model: "openai/gpt-4o-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "Return JSON only"},
			{Role: RoleUser, Content: "tag this"},
		},
		MaxTokens:   300,
		Temperature: 0.2,
	}
}

func TestOpenAIClientSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "Tagger Test", r.Header.Get("X-Title"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openai/gpt-4o-mini", body["model"])
		assert.EqualValues(t, 300, body["max_tokens"])
		assert.Len(t, body["messages"], 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model":"openai/gpt-4o-mini",
			"choices":[{"message":{"role":"assistant","content":"{\"names\":[\"ministry of finance\"]}"}}],
			"usage":{"prompt_tokens":120,"completion_tokens":30,"total_tokens":150}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/", AppName: "Tagger Test"})
	resp, err := client.Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"names":["ministry of finance"]}`, resp.Text)
	assert.Equal(t, 150, resp.Usage.TotalTokens)
	assert.Equal(t, 120, resp.Usage.PromptTokens)
}

func TestOpenAIClientContentParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]}}]}`))
	}))
	defer server.Close()

	resp, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}).Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "part one\npart two", resp.Text)
	assert.Equal(t, "openai/gpt-4o-mini", resp.Model)
}

func TestOpenAIClientErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		kind       ErrorKind
		sentinel   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`, "", KindAuth, models.ErrProviderAuth},
		{"no credits", http.StatusPaymentRequired, `{"error":{"message":"insufficient credits"}}`, "", KindAuth, models.ErrProviderAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, "7", KindRateLimit, models.ErrProviderRateLimited},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad schema"}}`, "", KindBadRequest, nil},
		{"server error", http.StatusBadGateway, `upstream down`, "", KindOther, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}).Complete(context.Background(), chatRequest())
			require.Error(t, err)

			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.status, perr.StatusCode)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel))
			}
		})
	}
}

func TestOpenAIClientRetryAfterHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}).Complete(context.Background(), chatRequest())
	var rl *models.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestOpenAIClientSystemRoleRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Developer instruction is not enabled for models/gemma-3"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}).Complete(context.Background(), chatRequest())
	assert.True(t, IsSystemRoleRejected(err))
	assert.False(t, IsSystemRoleRejected(errors.New("system failure")))
}

func TestOpenAIClientMissingKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{}).Complete(context.Background(), chatRequest())
	assert.True(t, errors.Is(err, models.ErrProviderAuth))
}

func TestOpenAIClientTimeoutIsNetwork(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL, Timeout: 100 * time.Millisecond})
	_, err := client.Complete(context.Background(), chatRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrProviderNetwork))
	assert.Contains(t, err.Error(), "timed out")
}

func TestOpenAIClientParentCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL, Timeout: 10 * time.Second}).Complete(ctx, chatRequest())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, models.ErrProviderNetwork))
}

func TestOllamaClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])
		options := body["options"].(map[string]any)
		assert.EqualValues(t, 300, options["num_predict"])

		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":" budget, audit "},"done":true,"prompt_eval_count":40,"eval_count":8}`))
	}))
	defer server.Close()

	resp, err := NewOllamaClient(OllamaConfig{Endpoint: server.URL}).Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "budget, audit", resp.Text)
	assert.Equal(t, 48, resp.Usage.TotalTokens)
}

func TestOllamaClientModelMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama9\" not found, try pulling it first"}`))
	}))
	defer server.Close()

	_, err := NewOllamaClient(OllamaConfig{Endpoint: server.URL}).Complete(context.Background(), chatRequest())
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindBadRequest, perr.Kind)
	assert.Contains(t, perr.Message, "not found")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	assert.Equal(t, 1500*time.Millisecond, ParseRetryAfter("1.5", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Zero(t, ParseRetryAfter("-4", now))
}

func TestNew(t *testing.T) {
	p, err := New(Config{Kind: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = New(Config{Kind: "openrouter", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = New(Config{Kind: "bard"})
	assert.Error(t, err)
}
