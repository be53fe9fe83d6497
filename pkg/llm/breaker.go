package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures BreakerGenerator.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string
	// ConsecutiveFailures trips the breaker. Default 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Default 30s.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open. Default 1.
	HalfOpenRequests uint32
}

// BreakerGenerator fails fast once the wrapped generator keeps failing.
// Cancellation of the caller's context is not counted as a failure.
type BreakerGenerator struct {
	next   Generator
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreakerGenerator wraps next in a circuit breaker.
func NewBreakerGenerator(next Generator, cfg BreakerConfig, logger *slog.Logger) *BreakerGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}

	b := &BreakerGenerator{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b
}

// Generate implements Generator.
func (b *BreakerGenerator) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, prompt, opts...)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state.
func (b *BreakerGenerator) State() gobreaker.State {
	return b.cb.State()
}
