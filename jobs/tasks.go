package jobs

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPurge deletes audit records past the retention window.
	TaskAuditPurge = "audit:purge"
)

// AuditPurgePayload carries the retention the purge applies. A zero retention
// falls back to the job's configured default.
type AuditPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditPurgeTask constructs the retention task.
func NewAuditPurgeTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(AuditPurgePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
