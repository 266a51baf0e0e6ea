package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/nia-ro/workdesk/internal/platform/httpx"
	"github.com/nia-ro/workdesk/internal/rbac"
	"github.com/nia-ro/workdesk/internal/shared"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		Logger: newAsynqLogger(cfg.Logger),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueAuditPurge requests an immediate retention run.
func (c *Client) EnqueueAuditPurge(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewAuditPurgeTask(retention)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector reports queue statistics. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Pinger checks a dependency's reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PurgeEnqueuer schedules an audit retention run. *Client satisfies it.
type PurgeEnqueuer interface {
	EnqueueAuditPurge(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error)
}

// RouteGuard wraps handlers with authorization and auditing.
type RouteGuard interface {
	API(action string, perms ...rbac.Permission) func(http.Handler) http.Handler
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	documents Pinger
	enqueuer  PurgeEnqueuer
	guard     RouteGuard
	finisher  *httpx.Finisher
	logger    *slog.Logger
}

// HandlerDeps collects the optional collaborators of Handler. Nil fields
// report the dependency as not configured.
type HandlerDeps struct {
	Inspector QueueInspector
	Documents Pinger
	Enqueuer  PurgeEnqueuer
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(deps HandlerDeps, guard RouteGuard, finisher *httpx.Finisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		inspector: deps.Inspector,
		documents: deps.Documents,
		enqueuer:  deps.Enqueuer,
		guard:     guard,
		finisher:  finisher,
		logger:    logger,
	}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.API("jobs.health", rbac.PermSettingsRead)).Get("/health", h.health)
	r.With(h.guard.API("jobs.audit_purge", rbac.PermSettingsWrite)).Post("/audit-purge", h.triggerPurge)
}

func (h *Handler) triggerPurge(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		h.finisher.Error(w, r, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "Service Unavailable", Message: "Job queue not configured"})
		return
	}
	info, err := h.enqueuer.EnqueueAuditPurge(r.Context(), 0)
	if err != nil {
		h.logger.Error("enqueue audit purge", slog.Any("error", err))
		shared.AnnotateError(r.Context(), err)
		h.finisher.Error(w, r, http.StatusInternalServerError, httpx.BodyInternal)
		return
	}
	shared.Annotate(r.Context(), "task_id", info.ID)
	h.finisher.JSON(w, r, http.StatusAccepted, map[string]string{"task_id": info.ID, "queue": info.Queue})
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

type healthResponse struct {
	Status    string       `json:"status"`
	Queue     *queueHealth `json:"queue,omitempty"`
	Documents string       `json:"documents"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Documents: "not-configured"}
	status := http.StatusOK

	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(QueueDefault)
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err))
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else if info != nil {
			resp.Queue = &queueHealth{
				Queue:     info.Queue,
				Pending:   info.Pending,
				Active:    info.Active,
				Scheduled: info.Scheduled,
				Retry:     info.Retry,
				Archived:  info.Archived,
				Paused:    info.Paused,
			}
		}
	}

	if h.documents != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.documents.Ping(ctx); err != nil {
			h.logger.Warn("document service health", slog.Any("error", err))
			resp.Documents = "unavailable"
			resp.Status = "degraded"
		} else {
			resp.Documents = "ok"
		}
	}

	h.finisher.JSON(w, r, status, resp)
}
