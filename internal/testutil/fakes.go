package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/database/models"
)

// SentEmail is a message captured by RecordingNotifier.
type SentEmail struct {
	Kind   string
	To     string
	Link   string
	UserID uuid.UUID
}

// RecordingNotifier captures account emails instead of queueing them.
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []SentEmail
	Err  error
}

func (n *RecordingNotifier) SendVerificationEmail(_ context.Context, user *models.User, url string) error {
	return n.record("verification", user, url)
}

func (n *RecordingNotifier) SendPasswordResetEmail(_ context.Context, user *models.User, url string) error {
	return n.record("password_reset", user, url)
}

func (n *RecordingNotifier) record(kind string, user *models.User, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, SentEmail{Kind: kind, To: user.Email, Link: url, UserID: user.ID})
	return nil
}

// Last returns the most recent email, or the zero value.
func (n *RecordingNotifier) Last() SentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Sent) == 0 {
		return SentEmail{}
	}
	return n.Sent[len(n.Sent)-1]
}

// RecordingCleaner captures attachment cleanup requests.
type RecordingCleaner struct {
	mu    sync.Mutex
	Calls []CleanupCall
	Err   error
}

type CleanupCall struct {
	ProjectID uuid.UUID
	Keys      []string
}

func (c *RecordingCleaner) DeleteAttachments(_ context.Context, projectID uuid.UUID, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, CleanupCall{ProjectID: projectID, Keys: append([]string(nil), keys...)})
	return c.Err
}

// Keys returns every key passed to DeleteAttachments so far.
func (c *RecordingCleaner) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for _, call := range c.Calls {
		keys = append(keys, call.Keys...)
	}
	return keys
}
