// Package pending holds generated email drafts awaiting an explicit user
// decision. One slot per user: staging a new draft replaces the previous one,
// and nothing leaves the slot without a confirm or cancel.
package pending

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoPendingAction is returned by Confirm and Cancel when the user has
// nothing staged (or the staged draft has expired).
var ErrNoPendingAction = errors.New("no pending action")

// DefaultTTL bounds how long an unconfirmed draft stays valid. The original
// behavior had no expiry at all, which let drafts outlive OAuth tokens and
// recipients.
const DefaultTTL = 24 * time.Hour

// Draft is a staged, unconfirmed application email.
type Draft struct {
	Subject        string
	Body           string
	RecipientEmail string
	StagedAt       time.Time
	ExpiresAt      time.Time
}

// Store is the single-slot staging state machine.
//
// Confirm resolves the slot through the send callback: the draft is yielded
// to send, and the slot is cleared only if send succeeds, so a failed
// dispatch stays retryable. Implementations serialize Stage/Confirm/Cancel
// per user; operations for different users run independently.
type Store interface {
	Stage(ctx context.Context, userID string, d Draft) error
	Confirm(ctx context.Context, userID string, send func(Draft) error) error
	Cancel(ctx context.Context, userID string) error
	Close() error
}

// keyedMutex provides one mutex per user id, so a slow send callback for one
// user never blocks another user's staging.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m
}
