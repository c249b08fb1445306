package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/mail"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/internal/testutil"
	"github.com/hugh/projectcamp/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// fakeStore records deletions and fails for keys listed in failing.
type fakeStore struct {
	mu      sync.Mutex
	deleted []string
	failing map[string]bool
}

func (s *fakeStore) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[key] {
		return errors.New("backend unavailable")
	}
	s.deleted = append(s.deleted, key)
	return nil
}

// recordingDispatcher keeps enqueued tasks without running them.
type recordingDispatcher struct {
	tasks []*asynq.Task
	err   error
}

func (d *recordingDispatcher) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) error {
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

func newTestHandler(mailer mail.Mailer, store *fakeStore, sweeper Sweeper) *Handler {
	return NewHandler(util.DiscardLogger(), mailer, store, sweeper)
}

func mustTask(t *testing.T, typ string, payload interface{}) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(typ, data)
}

func TestHandleSendEmail(t *testing.T) {
	mailer := &recordingMailer{}
	h := newTestHandler(mailer, &fakeStore{}, nil)

	err := h.HandleSendEmail(context.Background(), mustTask(t, TypeSendEmail, SendEmailPayload{
		Kind:      EmailVerification,
		UserID:    uuid.New(),
		To:        "ada@example.com",
		Username:  "ada",
		ActionURL: "http://api.test/api/v1/auth/verify-email/tok",
	}))
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ada@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Text, "http://api.test/api/v1/auth/verify-email/tok")

	err = h.HandleSendEmail(context.Background(), mustTask(t, TypeSendEmail, SendEmailPayload{
		Kind: EmailPasswordReset, To: "ada@example.com", Username: "ada", ActionURL: "http://app.test/reset/tok",
	}))
	require.NoError(t, err)
	require.Len(t, mailer.sent, 2)
	assert.Contains(t, mailer.sent[1].Text, "Reset Password")
}

func TestHandleSendEmail_DeliveryFailureIsSwallowed(t *testing.T) {
	h := newTestHandler(&recordingMailer{err: errors.New("connection refused")}, &fakeStore{}, nil)

	err := h.HandleSendEmail(context.Background(), mustTask(t, TypeSendEmail, SendEmailPayload{
		Kind: EmailVerification, To: "ada@example.com",
	}))
	assert.NoError(t, err)
}

func TestHandleSendEmail_BadPayload(t *testing.T) {
	h := newTestHandler(&recordingMailer{}, &fakeStore{}, nil)

	err := h.HandleSendEmail(context.Background(), asynq.NewTask(TypeSendEmail, []byte("invalid json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "unmarshal payload")

	err = h.HandleSendEmail(context.Background(), mustTask(t, TypeSendEmail, SendEmailPayload{Kind: "welcome"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleDeleteAttachments(t *testing.T) {
	store := &fakeStore{failing: map[string]bool{"b": true}}
	h := newTestHandler(&recordingMailer{}, store, nil)

	err := h.HandleDeleteAttachments(context.Background(), mustTask(t, TypeDeleteAttachments, DeleteAttachmentsPayload{
		ProjectID: uuid.New(),
		Keys:      []string{"a", "b", "c"},
	}))
	require.Error(t, err, "a failed key makes the task retry")
	assert.Contains(t, err.Error(), "b:")
	assert.Equal(t, []string{"a", "c"}, store.deleted, "the remaining keys are still deleted")

	store.failing = nil
	store.deleted = nil
	err = h.HandleDeleteAttachments(context.Background(), mustTask(t, TypeDeleteAttachments, DeleteAttachmentsPayload{
		Keys: []string{"a", "b"},
	}))
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, store.deleted)
}

func TestHandleSweepOrphans(t *testing.T) {
	setup := testutil.NewTestContext(t)
	defer setup.Cleanup()

	svc := projects.NewService(setup.DB, nil, util.DiscardLogger())
	project := testutil.CreateTestProject(t, setup.DB, setup.User, "")
	testutil.CreateTestNote(t, setup.DB, project, setup.User)
	require.NoError(t, setup.DB.Exec("DELETE FROM projects WHERE id = ?", project.ID).Error)

	h := newTestHandler(&recordingMailer{}, &fakeStore{}, svc)
	require.NoError(t, h.HandleSweepOrphans(context.Background(), NewSweepOrphansTask()))

	assert.Equal(t, int64(0), testutil.CountRows(t, setup.DB, &models.Note{}, ""))
	assert.Equal(t, int64(0), testutil.CountRows(t, setup.DB, &models.ProjectMember{}, ""))
}

func TestHandleSweepOrphans_NoSweeper(t *testing.T) {
	h := newTestHandler(&recordingMailer{}, &fakeStore{}, nil)
	err := h.HandleSweepOrphans(context.Background(), NewSweepOrphansTask())
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEnqueuer(t *testing.T) {
	d := &recordingDispatcher{}
	e := NewEnqueuer(d)
	ctx := context.Background()
	user := &models.User{Base: models.Base{ID: uuid.New()}, Email: "ada@example.com", Username: "ada"}

	require.NoError(t, e.SendVerificationEmail(ctx, user, "http://verify"))
	require.NoError(t, e.SendPasswordResetEmail(ctx, user, "http://reset"))
	require.NoError(t, e.DeleteAttachments(ctx, uuid.New(), nil), "nothing to clean is a no-op")
	require.NoError(t, e.DeleteAttachments(ctx, uuid.New(), []string{"k1"}))

	require.Len(t, d.tasks, 3)
	assert.Equal(t, TypeSendEmail, d.tasks[0].Type())
	assert.Equal(t, TypeSendEmail, d.tasks[1].Type())
	assert.Equal(t, TypeDeleteAttachments, d.tasks[2].Type())

	var payload SendEmailPayload
	require.NoError(t, json.Unmarshal(d.tasks[1].Payload(), &payload))
	assert.Equal(t, EmailPasswordReset, payload.Kind)
	assert.Equal(t, user.ID, payload.UserID)
	assert.Equal(t, "http://reset", payload.ActionURL)

	d.err = errors.New("redis down")
	assert.Error(t, e.SendVerificationEmail(ctx, user, "http://verify"))
}

func TestInlineDispatcher(t *testing.T) {
	mailer := &recordingMailer{}
	h := newTestHandler(mailer, &fakeStore{}, nil)
	d := NewInlineDispatcher(h.Mux(), util.DiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	user := &models.User{Base: models.Base{ID: uuid.New()}, Email: "ada@example.com", Username: "ada"}
	require.NoError(t, NewEnqueuer(d).SendVerificationEmail(ctx, user, "http://verify"))
	cancel()

	d.Wait()
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.sent, 1, "tasks outlive the enqueuing context")
	assert.Equal(t, "ada@example.com", mailer.sent[0].To)
}
