package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
)

const keyPrefix = "ratelimit"

// Observer receives rejection signals. Implemented by observability.Metrics.
type Observer interface {
	RateLimited(tier string)
}

// Limiter enforces one tier's budget.
type Limiter struct {
	tier   Tier
	budget Budget
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Tier returns the limiter's tier.
func (l *Limiter) Tier() Tier { return l.tier }

// Budget returns the limiter's budget.
func (l *Limiter) Budget() Budget { return l.budget }

// Limit records a hit for identifier. Without a store, or when the store
// fails, the hit is allowed.
func (l *Limiter) Limit(ctx context.Context, identifier string) Result {
	now := l.now()
	allow := Result{Success: true, Limit: l.budget.Requests, Remaining: l.budget.Requests, Reset: now.Add(l.budget.Window)}
	if l.store == nil {
		return allow
	}
	key := keyPrefix + ":" + string(l.tier) + ":" + identifier
	res, err := l.store.Hit(ctx, key, l.budget.Requests, l.budget.Window, now)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request",
			slog.String("tier", string(l.tier)),
			slog.Any("error", err))
		return allow
	}
	return res
}

// Option customises a Set.
type Option func(*Set)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Set) { s.now = now }
}

// WithObserver reports rejections.
func WithObserver(o Observer) Option {
	return func(s *Set) { s.observer = o }
}

// Set groups the tier limiters.
type Set struct {
	limiters map[Tier]*Limiter
	enabled  bool
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
}

// NewSet builds a limiter per tier. A nil store yields a disabled set in which
// every check succeeds.
func NewSet(store Store, budgets map[Tier]Budget, logger *slog.Logger, opts ...Option) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{
		limiters: make(map[Tier]*Limiter, len(Tiers)),
		enabled:  store != nil,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, tier := range Tiers {
		budget, ok := budgets[tier]
		if !ok || budget.Requests <= 0 || budget.Window <= 0 {
			budget = DefaultBudgets[tier]
		}
		s.limiters[tier] = &Limiter{tier: tier, budget: budget, store: store, now: s.now, logger: logger}
	}
	if !s.enabled {
		logger.Warn("rate limiting disabled: no counter store configured")
	}
	return s
}

// Enabled reports whether a counter store is configured.
func (s *Set) Enabled() bool { return s.enabled }

// For returns the limiter for tier, falling back to the public tier.
func (s *Set) For(tier Tier) *Limiter {
	if l, ok := s.limiters[tier]; ok {
		return l
	}
	return s.limiters[TierPublic]
}

// RetryAfter returns whole seconds until reset, never less than one.
func RetryAfter(reset, now time.Time) int {
	secs := int(math.Ceil(reset.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func rejectionBody(tier Tier) httpx.ErrorBody {
	if tier == TierAuth {
		return httpx.ErrorBody{Error: "Too many authentication attempts, please try again later."}
	}
	return httpx.ErrorBody{Error: "Too many requests"}
}

// Middleware checks the tier matching the request path before any route
// logic. Rejections are 429 with Retry-After and the security header set.
func (s *Set) Middleware(finisher *httpx.Finisher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.enabled {
				next.ServeHTTP(w, r)
				return
			}
			tier := TierFor(r.URL.Path)
			res := s.For(tier).Limit(r.Context(), ClientIdentifier(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
			if res.Success {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Retry-After", strconv.Itoa(RetryAfter(res.Reset, s.now())))
			if s.observer != nil {
				s.observer.RateLimited(string(tier))
			}
			finisher.Error(w, r, http.StatusTooManyRequests, rejectionBody(tier))
		})
	}
}
