// Package history keeps the rolling per-user conversation log that grounds
// both model stages. Messages are append-only and stored as plain text.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/xenonwellz/autoplybot/internal/textutil"
)

// Message roles. The log only ever contains the user and the assistant.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Limit is the number of most recent messages loaded as model context.
const Limit = 20

// Message is a single conversation turn. Immutable once appended.
type Message struct {
	UserID    string
	Role      string
	Content   string
	Timestamp time.Time
}

// ContextLine renders the message for model consumption, prefixed with a
// readable timestamp so recency is legible without raw machine timestamps.
func (m Message) ContextLine() string {
	return fmt.Sprintf("%s: [%s] %s", m.Role, textutil.FormatTimestamp(m.Timestamp), m.Content)
}

// TimedContent renders just the timestamp-prefixed content, for chat-session
// history where the role field already carries the speaker.
func (m Message) TimedContent() string {
	return fmt.Sprintf("[%s] %s", textutil.FormatTimestamp(m.Timestamp), m.Content)
}

// Store is the conversation persistence seam. Load returns at most Limit
// messages, oldest first. Append strips markdown before persisting.
type Store interface {
	Load(ctx context.Context, userID string) ([]Message, error)
	Append(ctx context.Context, userID, role, content string) error
}
