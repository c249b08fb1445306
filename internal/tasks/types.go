package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/projectcamp/pkg/queue"
)

// Task type names
const (
	TypeSendEmail         = "mail:send"
	TypeDeleteAttachments = "storage:delete_attachments"
	TypeSweepOrphans      = "maintenance:sweep_orphans"
)

// Email kinds carried by SendEmailPayload.
const (
	EmailVerification  = "verification"
	EmailPasswordReset = "password_reset"
)

// SendEmailPayload names the template and the values it is rendered with.
// The worker renders the message so the queue never carries HTML.
type SendEmailPayload struct {
	Kind      string    `json:"kind"`
	UserID    uuid.UUID `json:"user_id"`
	To        string    `json:"to"`
	Username  string    `json:"username"`
	ActionURL string    `json:"action_url"`
}

func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendEmail, data,
		asynq.Queue(queue.QueueCritical),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	), nil
}

// DeleteAttachmentsPayload lists blob keys to remove after their task or
// project is gone.
type DeleteAttachmentsPayload struct {
	ProjectID uuid.UUID `json:"project_id"`
	Keys      []string  `json:"keys"`
}

func NewDeleteAttachmentsTask(payload DeleteAttachmentsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeleteAttachments, data,
		asynq.Queue(queue.QueueLow),
		asynq.MaxRetry(10),
	), nil
}

// NewSweepOrphansTask is enqueued by the scheduler; it has no payload.
func NewSweepOrphansTask() *asynq.Task {
	return asynq.NewTask(TypeSweepOrphans, nil, asynq.Queue(queue.QueueLow))
}
