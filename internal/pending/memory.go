package pending

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps staged drafts in process memory. Used by tests and the
// local chat command; a restart drops every staged draft.
type MemoryStore struct {
	users *keyedMutex

	mu     sync.Mutex
	drafts map[string]Draft

	now func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:  newKeyedMutex(),
		drafts: make(map[string]Draft),
		now:    time.Now,
	}
}

func (s *MemoryStore) Stage(_ context.Context, userID string, d Draft) error {
	userLock := s.users.lock(userID)
	defer userLock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[userID] = d
	return nil
}

func (s *MemoryStore) Confirm(_ context.Context, userID string, send func(Draft) error) error {
	userLock := s.users.lock(userID)
	defer userLock.Unlock()

	d, ok := s.current(userID)
	if !ok {
		return ErrNoPendingAction
	}

	if err := send(d); err != nil {
		// Slot intentionally kept; the user may retry the confirm.
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, userID string) error {
	userLock := s.users.lock(userID)
	defer userLock.Unlock()

	if _, ok := s.current(userID); !ok {
		return ErrNoPendingAction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, userID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) current(userID string) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[userID]
	if !ok {
		return Draft{}, false
	}
	if !d.ExpiresAt.IsZero() && !s.now().Before(d.ExpiresAt) {
		delete(s.drafts, userID)
		return Draft{}, false
	}
	return d, true
}
