package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nia-ro/workdesk/internal/observability"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/ratelimit"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger     *slog.Logger
	Config     *Config
	Finisher   *httpx.Finisher
	RateLimits *ratelimit.Set
	Metrics    *observability.Metrics
}

// MiddlewareStack installs the edge chain. The tier rate limit runs before
// any route logic, and every response, rejections included, carries the
// security header set.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
	}
	if cfg.Logger != nil {
		middlewares = append(middlewares, requestLogger(cfg.Logger))
	}
	middlewares = append(middlewares, middleware.Recoverer)
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	middlewares = append(middlewares, cfg.Finisher.Middleware)
	if cfg.RateLimits != nil {
		middlewares = append(middlewares, cfg.RateLimits.Middleware(cfg.Finisher))
	}
	middlewares = append(middlewares,
		middleware.Timeout(timeout),
		middleware.Compress(5, "application/json", "text/html", "text/csv", "text/css"),
	)
	return middlewares
}
