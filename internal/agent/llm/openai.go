package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig configures a client for any OpenAI-compatible chat
// completions endpoint (OpenAI itself, OpenRouter, vLLM, ...).
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// SiteURL and AppName are sent as OpenRouter attribution headers.
	SiteURL string
	AppName string
}

type OpenAIClient struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	siteURL    string
	appName    string
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &OpenAIClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		siteURL:    strings.TrimSpace(cfg.SiteURL),
		appName:    strings.TrimSpace(cfg.AppName),
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindAuth, Message: "no API key configured"}
	}
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindBadRequest, Message: "model is required"}
	}

	payload := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if c.siteURL != "" {
		headers["HTTP-Referer"] = c.siteURL
	}
	if c.appName != "" {
		headers["X-Title"] = c.appName
	}

	body, err := doJSON(ctx, c.httpClient, c.Name(), c.baseURL+"/chat/completions", c.timeout, headers, payload)
	if err != nil {
		return Response{}, err
	}

	var raw chatCompletionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindOther, Message: "undecodable response", Err: err}
	}
	if raw.Error != nil && raw.Error.Message != "" {
		// some gateways report upstream failures with a 200
		return Response{}, &ProviderError{
			Provider:   c.Name(),
			Kind:       KindForStatus(raw.Error.Code),
			StatusCode: raw.Error.Code,
			Message:    truncateMessage(raw.Error.Message, 700),
		}
	}

	text := raw.text()
	if text == "" {
		return Response{}, &ProviderError{Provider: c.Name(), Kind: KindOther, Message: "response without text output"}
	}
	model := raw.Model
	if model == "" {
		model = req.Model
	}
	return Response{
		Text:  text,
		Model: model,
		Usage: Usage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		},
	}, nil
}

type chatCompletionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// text handles both plain string content and the array-of-parts form.
func (r chatCompletionsResponse) text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	switch content := r.Choices[0].Message.Content.(type) {
	case string:
		return strings.TrimSpace(content)
	case []any:
		parts := make([]string, 0, len(content))
		for _, item := range content {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := part["text"].(string); strings.TrimSpace(t) != "" {
				parts = append(parts, strings.TrimSpace(t))
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

var _ Provider = (*OpenAIClient)(nil)
