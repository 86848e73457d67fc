package history

import (
	"context"
	"sync"
	"time"

	"github.com/xenonwellz/autoplybot/internal/textutil"
)

// MemoryStore is an in-process Store used by tests and the local chat
// command. State is lost on process exit.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string][]Message
	now      func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, userID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[userID] = append(s.messages[userID], Message{
		UserID:    userID,
		Role:      role,
		Content:   textutil.StripMarkdown(content),
		Timestamp: s.now(),
	})
	return nil
}

func (s *MemoryStore) Load(_ context.Context, userID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[userID]
	start := 0
	if len(all) > Limit {
		start = len(all) - Limit
	}

	out := make([]Message, len(all)-start)
	copy(out, all[start:])
	return out, nil
}
