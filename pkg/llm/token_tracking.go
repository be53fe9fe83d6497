package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/soundprediction/go-graphrag/pkg/cost"
	"github.com/soundprediction/go-graphrag/pkg/types"
)

// UsageStats aggregates token usage for one model.
type UsageStats struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// UsageTracker accumulates token usage and estimated cost per model.
type UsageTracker struct {
	mu      sync.Mutex
	prices  *cost.Calculator
	byModel map[string]*UsageStats
}

// NewUsageTracker creates a tracker. A nil calculator uses default prices.
func NewUsageTracker(prices *cost.Calculator) *UsageTracker {
	if prices == nil {
		prices = cost.NewCalculator()
	}
	return &UsageTracker{prices: prices, byModel: make(map[string]*UsageStats)}
}

// AddUsage records one call.
func (t *UsageTracker) AddUsage(model string, usage *types.TokenUsage) {
	if usage == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byModel[model]
	if !ok {
		s = &UsageStats{}
		t.byModel[model] = s
	}
	s.Calls++
	s.PromptTokens += usage.PromptTokens
	s.CompletionTokens += usage.CompletionTokens
	s.TotalTokens += usage.TotalTokens
	s.CostUSD += t.prices.Estimate(model, *usage)
}

// ByModel returns a copy of the per-model statistics.
func (t *UsageTracker) ByModel() map[string]UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]UsageStats, len(t.byModel))
	for m, s := range t.byModel {
		out[m] = *s
	}
	return out
}

// Total sums the statistics over all models.
func (t *UsageTracker) Total() UsageStats {
	var total UsageStats
	for _, s := range t.ByModel() {
		total.Calls += s.Calls
		total.PromptTokens += s.PromptTokens
		total.CompletionTokens += s.CompletionTokens
		total.TotalTokens += s.TotalTokens
		total.CostUSD += s.CostUSD
	}
	return total
}

// Save writes the per-model statistics as JSON to path.
func (t *UsageTracker) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(t.ByModel(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// TokenTrackingClient wraps a Client to track usage
type TokenTrackingClient struct {
	client  Client
	tracker *UsageTracker
	logger  *slog.Logger
}

// NewTokenTrackingClient creates a wrapper client
func NewTokenTrackingClient(client Client, tracker *UsageTracker, logger *slog.Logger) *TokenTrackingClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenTrackingClient{client: client, tracker: tracker, logger: logger}
}

// Model implements Client
func (c *TokenTrackingClient) Model() string {
	return c.client.Model()
}

// Generate implements Generator
func (c *TokenTrackingClient) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return generate(ctx, c, prompt, opts)
}

// Chat implements Client
func (c *TokenTrackingClient) Chat(ctx context.Context, messages []Message, opts ...Option) (*Response, error) {
	resp, err := c.client.Chat(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = c.client.Model()
	}
	c.tracker.AddUsage(model, resp.Usage)
	if resp.Usage != nil {
		attrs := []any{
			"model", model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
			"run_id", types.RunIDFrom(ctx),
			"stage", types.StageFrom(ctx),
		}
		if id, ok := types.CommunityIDFrom(ctx); ok {
			attrs = append(attrs, "community", id)
		}
		c.logger.DebugContext(ctx, "llm usage", attrs...)
	}
	return resp, nil
}
