package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/nia-ro/workdesk/internal/jobs"
)

// minRetention guards against a payload that would wipe the whole table.
const minRetention = 24 * time.Hour

// AuditPurger deletes audit records older than a cutoff.
type AuditPurger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// AuditPurgeJob applies audit retention.
type AuditPurgeJob struct {
	Store     AuditPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewAuditPurgeJob constructs the job handler.
func NewAuditPurgeJob(store AuditPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPurgeJob {
	return &AuditPurgeJob{
		Store:     store,
		Retention: retention,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one purge run.
func (j *AuditPurgeJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit purge: dependencies not configured")
	}
	var payload AuditPurgePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("audit purge: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = j.Retention
	}
	if retention < minRetention {
		return fmt.Errorf("audit purge: retention %s below %s: %w", retention, minRetention, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAuditPurge)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.clock().Add(-retention)
	deleted, err := j.Store.Purge(ctx, cutoff)
	if err != nil {
		j.log().Error("audit purge", slog.Time("cutoff", cutoff), slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurged(deleted)
	j.log().Info("audit purge complete", slog.Time("cutoff", cutoff), slog.Int64("deleted", deleted))
	return nil
}

func (j *AuditPurgeJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
