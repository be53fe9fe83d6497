package llm

import (
	"fmt"
	"net/url"
	"strings"
)

// Default configuration values
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.0
)

// LLMConfig holds configuration for LLM clients.
type LLMConfig struct {
	APIKey string `json:"api_key,omitempty"`

	// Model is the model used for extraction and summarization
	Model string `json:"model,omitempty"`

	// BaseURL points at an OpenAI-compatible service. Empty means api.openai.com.
	BaseURL string `json:"base_url,omitempty"`

	// Temperature is the default for calls that do not pass WithTemperature.
	Temperature float32 `json:"temperature,omitempty"`

	// MaxTokens is the default for calls that do not pass WithMaxTokens.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// NewLLMConfig creates a new LLMConfig with default values
func NewLLMConfig() *LLMConfig {
	return &LLMConfig{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

func (c LLMConfig) withDefaults() LLMConfig {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// apiKey returns the key to send. Local OpenAI-compatible services usually
// do not authenticate but the client requires a non-empty key.
func (c LLMConfig) apiKey() string {
	if c.APIKey == "" && c.BaseURL != "" {
		return "dummy-key"
	}
	return c.APIKey
}

// endpoint returns the API root for BaseURL. It must be an http(s) URL;
// "/v1" is appended unless the URL already ends in an API path.
func (c LLMConfig) endpoint() (string, error) {
	if c.BaseURL == "" {
		return "", nil
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid baseURL format: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("baseURL must include scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("baseURL must use http:// or https:// scheme")
	}

	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") && !strings.HasSuffix(base, "/api") {
		base += "/v1"
	}
	return base, nil
}
