package llm

import (
	"fmt"
	"net/http"
	"time"
)

// Config selects and configures a provider.
type Config struct {
	Kind       string // openai | ollama
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	SiteURL    string
	AppName    string
	HTTPClient *http.Client
}

// New builds the provider named by cfg.Kind.
func New(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case "", "openai", "openrouter":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
			SiteURL:    cfg.SiteURL,
			AppName:    cfg.AppName,
		}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			Endpoint:   cfg.BaseURL,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", cfg.Kind)
	}
}
