package ratelimit

import (
	"context"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit around the counter store.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// BreakerStore stops calling an unhealthy store until the breaker half-opens.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[Result]
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner Store, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker[Result](settings)}
}

// Hit forwards to the wrapped store unless the circuit is open.
func (b *BreakerStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	return b.cb.Execute(func() (Result, error) {
		return b.inner.Hit(ctx, key, limit, window, now)
	})
}

// State reports the breaker state name.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}
