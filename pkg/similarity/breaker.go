package similarity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerOracle stops calling a failing oracle for a cool-down period. While
// open, BestMatch returns gobreaker.ErrOpenState immediately, which the
// resolver treats like any other oracle failure.
type BreakerOracle struct {
	next Oracle
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerOracle wraps next. The breaker opens after failures consecutive
// errors and half-opens after openTimeout.
func NewBreakerOracle(next Oracle, failures uint32, openTimeout time.Duration, logger *slog.Logger) *BreakerOracle {
	if logger == nil {
		logger = slog.Default()
	}
	if failures == 0 {
		failures = 3
	}
	if openTimeout == 0 {
		openTimeout = 30 * time.Second
	}

	return &BreakerOracle{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "similarity",
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNoCandidates)
			},
		}),
	}
}

// BestMatch implements Oracle.
func (b *BreakerOracle) BestMatch(ctx context.Context, queries, candidates []string, metric Metric, topK int) ([]Match, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.BestMatch(ctx, queries, candidates, metric, topK)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Match), nil
}
