package llm

import (
	"context"
	"errors"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

// ErrEmptyResponse is returned when the service answers without content.
var ErrEmptyResponse = errors.New("empty response from language model")

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Client defines the interface for chat-style language model operations.
type Client interface {
	Generator

	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, messages []Message, opts ...Option) (*Response, error)

	// Model reports the model requests are sent to.
	Model() string
}

// Message represents a chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response represents a chat completion response.
type Response struct {
	Content      string            `json:"content"`
	Model        string            `json:"model,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Usage        *types.TokenUsage `json:"usage,omitempty"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Options are per-call generation settings.
type Options struct {
	Temperature *float32
	MaxTokens   int
	System      string
}

// Option configures a single generation call.
type Option func(*Options)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *Options) { o.Temperature = &t }
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithSystemPrompt prepends a system message.
func WithSystemPrompt(s string) Option {
	return func(o *Options) { o.System = s }
}

func applyOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// generate runs a single-prompt chat through c.
func generate(ctx context.Context, c Client, prompt string, opts []Option) (string, error) {
	resp, err := c.Chat(ctx, []Message{NewUserMessage(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}
