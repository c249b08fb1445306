package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/projectcamp/internal/auth"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/projects"
)

// Dispatcher hands a task to whatever runs background work.
type Dispatcher interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error
}

// AsynqDispatcher enqueues onto Redis for the worker process.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	_, err := d.client.EnqueueContext(ctx, task, opts...)
	return err
}

// InlineDispatcher runs tasks in-process on their own goroutine. It serves
// local development without Redis and tests.
type InlineDispatcher struct {
	handler asynq.Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewInlineDispatcher(handler asynq.Handler, logger *slog.Logger) *InlineDispatcher {
	return &InlineDispatcher{handler: handler, logger: logger}
}

func (d *InlineDispatcher) Enqueue(ctx context.Context, task *asynq.Task, _ ...asynq.Option) error {
	// The request context ends with the response; the task must outlive it.
	runCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.handler.ProcessTask(runCtx, task); err != nil {
			d.logger.Error("inline task failed", "type", task.Type(), "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched task has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// Enqueuer turns service callbacks into queued tasks.
type Enqueuer struct {
	dispatcher Dispatcher
}

var (
	_ auth.Notifier        = (*Enqueuer)(nil)
	_ projects.BlobCleaner = (*Enqueuer)(nil)
)

func NewEnqueuer(dispatcher Dispatcher) *Enqueuer {
	return &Enqueuer{dispatcher: dispatcher}
}

func (e *Enqueuer) SendVerificationEmail(ctx context.Context, user *models.User, verifyURL string) error {
	return e.sendEmail(ctx, EmailVerification, user, verifyURL)
}

func (e *Enqueuer) SendPasswordResetEmail(ctx context.Context, user *models.User, resetURL string) error {
	return e.sendEmail(ctx, EmailPasswordReset, user, resetURL)
}

func (e *Enqueuer) sendEmail(ctx context.Context, kind string, user *models.User, url string) error {
	task, err := NewSendEmailTask(SendEmailPayload{
		Kind:      kind,
		UserID:    user.ID,
		To:        user.Email,
		Username:  user.Username,
		ActionURL: url,
	})
	if err != nil {
		return fmt.Errorf("build %s email task: %w", kind, err)
	}
	return e.dispatcher.Enqueue(ctx, task)
}

func (e *Enqueuer) DeleteAttachments(ctx context.Context, projectID uuid.UUID, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	task, err := NewDeleteAttachmentsTask(DeleteAttachmentsPayload{ProjectID: projectID, Keys: keys})
	if err != nil {
		return fmt.Errorf("build cleanup task: %w", err)
	}
	return e.dispatcher.Enqueue(ctx, task)
}
