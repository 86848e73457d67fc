// Package mail delivers confirmed application emails. It owns OAuth token
// freshness and envelope construction; callers only hand it a message.
package mail

import "context"

// Attachment is the CV file attached to every application.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Message is a fully resolved outbound email.
type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// Dispatcher sends a message on behalf of a user and returns a provider
// message id. A single attempt per call; retrying is the caller's decision.
type Dispatcher interface {
	Send(ctx context.Context, userID string, msg Message) (string, error)
}
