package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type OllamaConfig struct {
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OllamaClient talks to a local Ollama server through /api/chat.
type OllamaClient struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &OllamaClient{
		endpoint:   strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/"),
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (c *OllamaClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindBadRequest, Message: "model is required"}
	}

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
		"options":  options,
	}

	body, err := doJSON(ctx, c.httpClient, c.Name(), c.endpoint+"/api/chat", c.timeout, nil, payload)
	if err != nil {
		return Response{}, err
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindOther, Message: "undecodable response", Err: err}
	}
	if result.Error != "" {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindOther, Message: truncateMessage(result.Error, 700)}
	}

	text := strings.TrimSpace(result.Message.Content)
	if text == "" {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindOther, Message: "response without text output"}
	}
	return Response{
		Text:  text,
		Model: result.Model,
		Usage: Usage{
			PromptTokens:     result.PromptEvalCount,
			CompletionTokens: result.EvalCount,
			TotalTokens:      result.PromptEvalCount + result.EvalCount,
		},
	}, nil
}

var _ Provider = (*OllamaClient)(nil)
