package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nia-ro/workdesk/cmd/workdesk/cli"
	"github.com/nia-ro/workdesk/internal/app"
	"github.com/nia-ro/workdesk/internal/audit"
	audithttp "github.com/nia-ro/workdesk/internal/audit/http"
	"github.com/nia-ro/workdesk/internal/auth"
	"github.com/nia-ro/workdesk/internal/guard"
	"github.com/nia-ro/workdesk/internal/identity"
	"github.com/nia-ro/workdesk/internal/observability"
	"github.com/nia-ro/workdesk/internal/platform/cache"
	"github.com/nia-ro/workdesk/internal/platform/db"
	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/ratelimit"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
	"github.com/nia-ro/workdesk/internal/tools"
	"github.com/nia-ro/workdesk/internal/users"
	"github.com/nia-ro/workdesk/internal/view"
	"github.com/nia-ro/workdesk/jobs"
	"github.com/nia-ro/workdesk/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, logger, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// A missing or unreachable Redis leaves rate limiting and revocation
	// disabled rather than blocking startup.
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Warn("redis unavailable, running degraded", slog.Any("error", err))
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var (
		counterStore ratelimit.Store
		revocations  *identity.RevocationStore
	)
	if redisClient != nil {
		counterStore = ratelimit.NewBreakerStore(ratelimit.NewRedisStore(redisClient), ratelimit.BreakerConfig{}, logger)
		revocations = identity.NewRevocationStore(redisClient, cfg.SessionTTL)
	} else {
		logger.Warn("rate limiting disabled: no redis configured")
	}

	rbacRepo := rbac.NewRepository(dbpool)
	provider, err := identity.NewLocal(identity.LocalConfig{
		Secret:      cfg.SessionSecret,
		TTL:         cfg.SessionTTL,
		Claims:      rbacRepo,
		Revocations: revocations,
	})
	if err != nil {
		logger.Error("init identity provider", slog.Any("error", err))
		os.Exit(1)
	}

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	finisher := httpx.NewFinisher(cfg.IsProduction(), logger)
	cookies := shared.NewSessionCookies(cfg.SessionCookie, cfg.IsProduction())

	auditStore := audit.NewPGStore(dbpool)
	auditQueue := audit.NewQueue(auditStore, cfg.AuditQueue(), logger).WithObserver(metrics)

	limits := ratelimit.NewSet(counterStore, cfg.RateLimitBudgets(), logger, ratelimit.WithObserver(metrics))

	resolver := identity.NewResolver(provider, cookies.Name(), logger)
	routeGuard := guard.New(resolver, finisher, auditQueue, logger).WithObserver(metrics)

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(dbpool)), provider, cookies, routeGuard, auditQueue, finisher)
	usersHandler := users.NewHandler(logger, users.NewService(users.NewRepository(dbpool), rbacRepo), routeGuard, finisher)
	reportClient := report.NewClient(cfg.GotenbergURL)
	toolsHandler := tools.NewHandler(logger, routeGuard, finisher, reportClient)
	auditHandler := audithttp.NewHandler(logger, auditStore, routeGuard, finisher)
	permissionsHandler := rbac.NewPermissionsHandler(routeGuard, finisher)

	deps := jobs.HandlerDeps{Documents: reportClient}
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		deps.Inspector = inspector
		deps.Enqueuer = jobClient
	}
	jobHandler := jobs.NewHandler(deps, routeGuard, finisher, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		Finisher:           finisher,
		Guard:              routeGuard,
		RateLimits:         limits,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		ToolsHandler:       toolsHandler,
		AuditHandler:       auditHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	if err := auditQueue.Close(shutdownCtx); err != nil {
		logger.Error("audit drain", slog.Any("error", err))
	}
}

func runJobs(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if cfg.RedisAddr == "" {
		logger.Error("jobs: REDIS_ADDR is not configured")
		return 1
	}
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, cfg.AuditRetention)
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	if err := jobsCLI.Run(ctx, args, os.Stdout); err != nil {
		logger.Error("jobs", slog.Any("error", err))
		return 1
	}
	return 0
}
