// Package ratelimit throttles requests per client identifier with a sliding
// window held in a shared counter store.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Tier is a named budget with its own key space.
type Tier string

const (
	TierPublic Tier = "public"
	TierAPI    Tier = "api"
	TierAuth   Tier = "auth"
)

// Tiers lists every tier.
var Tiers = []Tier{TierPublic, TierAPI, TierAuth}

// Budget is a request allowance per window.
type Budget struct {
	Requests int
	Window   time.Duration
}

// DefaultBudgets are used for tiers missing from configuration.
var DefaultBudgets = map[Tier]Budget{
	TierAuth:   {Requests: 5, Window: 60 * time.Second},
	TierAPI:    {Requests: 10, Window: 10 * time.Second},
	TierPublic: {Requests: 30, Window: 60 * time.Second},
}

func (b Budget) String() string {
	return fmt.Sprintf("%d/%s", b.Requests, b.Window)
}

// ParseBudget reads "requests/window", e.g. "5/60s" or "100/1m".
func ParseBudget(raw string) (Budget, error) {
	count, window, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return Budget{}, fmt.Errorf("ratelimit: budget %q: want requests/window", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Budget{}, fmt.Errorf("ratelimit: budget %q: invalid request count", raw)
	}
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil || d < time.Second {
		return Budget{}, fmt.Errorf("ratelimit: budget %q: invalid window", raw)
	}
	return Budget{Requests: n, Window: d}, nil
}

// TierFor maps a request path to its tier.
func TierFor(path string) Tier {
	switch {
	case path == "/api/auth" || strings.HasPrefix(path, "/api/auth/"):
		return TierAuth
	case path == "/api" || strings.HasPrefix(path, "/api/"):
		return TierAPI
	default:
		return TierPublic
	}
}

// AnonymousClient is the identifier used when no address header is present.
const AnonymousClient = "anonymous"

// ClientIdentifier derives the caller's identifier from proxy headers: the
// first X-Forwarded-For entry, then X-Real-IP, then AnonymousClient.
func ClientIdentifier(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return AnonymousClient
}
