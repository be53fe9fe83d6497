package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/go-graphrag/pkg/types"
)

// OpenAIClient implements Client for OpenAI and any OpenAI-compatible API
// (Ollama, vLLM, LocalAI, Together and others).
type OpenAIClient struct {
	client *openai.Client
	config LLMConfig
}

// NewOpenAIClient creates a client from config. A nil config uses
// NewLLMConfig.
func NewOpenAIClient(config *LLMConfig) (*OpenAIClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	cfg := config.withDefaults()

	clientConfig := openai.DefaultConfig(cfg.apiKey())
	base, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}
	if base != "" {
		clientConfig.BaseURL = base
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Model implements Client.
func (c *OpenAIClient) Model() string {
	return c.config.Model
}

// Generate implements Generator.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return generate(ctx, c, prompt, opts)
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts ...Option) (*Response, error) {
	req := c.buildChatRequest(messages, applyOptions(opts))

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from %s: %w", c.config.Model, ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:      choice.Message.Content,
		Model:        c.config.Model,
		FinishReason: string(choice.FinishReason),
	}
	if resp.Usage.TotalTokens > 0 {
		response.Usage = &types.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return response, nil
}

func (c *OpenAIClient) buildChatRequest(messages []Message, o Options) openai.ChatCompletionRequest {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if o.System != "" {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    string(RoleSystem),
			Content: o.System,
		})
	}
	for _, msg := range messages {
		openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    openaiMessages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}
	return req
}
