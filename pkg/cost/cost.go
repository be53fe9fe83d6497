package cost

import (
	"sort"
	"strings"
	"sync"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

// Price is the cost in USD per one million tokens.
type Price struct {
	Input  float64
	Output float64
}

// Calculator estimates the cost of generation calls from token usage.
// Unknown models resolve to the longest registered prefix, then to zero.
type Calculator struct {
	mu     sync.RWMutex
	prices map[string]Price
	// prefixes is kept sorted longest first for prefix lookup.
	prefixes []string
}

// NewCalculator returns a calculator loaded with default prices.
func NewCalculator() *Calculator {
	c := &Calculator{prices: make(map[string]Price)}
	for model, p := range defaultPrices {
		c.prices[model] = p
	}
	c.reindex()
	return c
}

// SetPrice registers or replaces the price of a model.
func (c *Calculator) SetPrice(model string, p Price) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[strings.ToLower(model)] = p
	c.reindex()
}

// Lookup returns the price for model and whether one was found.
func (c *Calculator) Lookup(model string) (Price, bool) {
	model = strings.ToLower(model)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.prices[model]; ok {
		return p, true
	}
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(model, prefix) {
			return c.prices[prefix], true
		}
	}
	return Price{}, false
}

// Estimate returns the estimated cost in USD of one call.
func (c *Calculator) Estimate(model string, usage types.TokenUsage) float64 {
	p, _ := c.Lookup(model)
	return float64(usage.PromptTokens)/1_000_000*p.Input +
		float64(usage.CompletionTokens)/1_000_000*p.Output
}

func (c *Calculator) reindex() {
	c.prefixes = c.prefixes[:0]
	for model := range c.prices {
		c.prefixes = append(c.prefixes, model)
	}
	sort.Slice(c.prefixes, func(i, j int) bool {
		if len(c.prefixes[i]) != len(c.prefixes[j]) {
			return len(c.prefixes[i]) > len(c.prefixes[j])
		}
		return c.prefixes[i] < c.prefixes[j]
	})
}

var defaultPrices = map[string]Price{
	// OpenAI
	"gpt-4o":        {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
	"gpt-4.1":       {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini":  {Input: 0.40, Output: 1.60},
	"gpt-4.1-nano":  {Input: 0.10, Output: 0.40},
	"gpt-4-turbo":   {Input: 10.00, Output: 30.00},
	"gpt-4":         {Input: 2.50, Output: 10.00},
	"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
	"o1-mini":       {Input: 3.00, Output: 12.00},

	// Embeddings are billed on input only.
	"text-embedding-3-small": {Input: 0.02},
	"text-embedding-3-large": {Input: 0.13},
	"text-embedding-ada-002": {Input: 0.10},

	// Together AI serverless
	"meta-llama/llama-3.3-70b-instruct-turbo":      {Input: 0.88, Output: 0.88},
	"meta-llama/meta-llama-3.1-8b-instruct-turbo":  {Input: 0.18, Output: 0.18},
	"meta-llama/meta-llama-3.1-70b-instruct-turbo": {Input: 0.88, Output: 0.88},
	"qwen/qwen2.5-72b-instruct-turbo":              {Input: 1.20, Output: 1.20},
	"mistralai/mixtral-8x7b-instruct-v0.1":         {Input: 0.60, Output: 0.60},
	"deepseek-ai/deepseek-v3":                      {Input: 1.25, Output: 1.25},
}
