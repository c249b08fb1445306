package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/projectcamp/internal/mail"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/internal/storage"
)

// Sweeper removes rows left behind by interrupted deletions.
type Sweeper interface {
	SweepOrphans(ctx context.Context) (projects.SweepResult, error)
}

type Handler struct {
	logger  *slog.Logger
	mailer  mail.Mailer
	store   storage.Store
	sweeper Sweeper
}

func NewHandler(logger *slog.Logger, mailer mail.Mailer, store storage.Store, sweeper Sweeper) *Handler {
	return &Handler{
		logger:  logger,
		mailer:  mailer,
		store:   store,
		sweeper: sweeper,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSendEmail, h.HandleSendEmail)
	mux.HandleFunc(TypeDeleteAttachments, h.HandleDeleteAttachments)
	mux.HandleFunc(TypeSweepOrphans, h.HandleSweepOrphans)
}

// Mux returns a ServeMux with every task handler registered.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	h.RegisterHandlers(mux)
	return mux
}

// HandleSendEmail renders and sends one email. Delivery failures are logged
// and swallowed: a lost email never fails the operation that triggered it,
// and the user can ask for the link again.
func (h *Handler) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	var content mail.Content
	switch payload.Kind {
	case EmailVerification:
		content = mail.VerificationContent(payload.Username, payload.ActionURL)
	case EmailPasswordReset:
		content = mail.PasswordResetContent(payload.Username, payload.ActionURL)
	default:
		return fmt.Errorf("unknown email kind %q: %w", payload.Kind, asynq.SkipRetry)
	}

	msg, err := mail.Compose(payload.To, content)
	if err != nil {
		return fmt.Errorf("compose email: %w: %w", err, asynq.SkipRetry)
	}

	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logger.Error("mail service failed, check the smtp credentials",
			"kind", payload.Kind,
			"user_id", payload.UserID,
			"error", err,
		)
		return nil
	}

	h.logger.Info("email sent", "kind", payload.Kind, "user_id", payload.UserID)
	return nil
}

// HandleDeleteAttachments removes every key it can. Keys that fail are
// reported together so asynq retries the task; keys already gone succeed.
func (h *Handler) HandleDeleteAttachments(ctx context.Context, t *asynq.Task) error {
	var payload DeleteAttachmentsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	var errs []error
	deleted := 0
	for _, key := range payload.Keys {
		if err := h.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		deleted++
	}

	h.logger.Info("attachment cleanup finished",
		"project_id", payload.ProjectID,
		"deleted", deleted,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

func (h *Handler) HandleSweepOrphans(ctx context.Context, t *asynq.Task) error {
	if h.sweeper == nil {
		return fmt.Errorf("no sweeper configured: %w", asynq.SkipRetry)
	}
	result, err := h.sweeper.SweepOrphans(ctx)
	if err != nil {
		return fmt.Errorf("sweep orphans: %w", err)
	}
	h.logger.Info("orphan sweep finished", "removed", result.Total())
	return nil
}
