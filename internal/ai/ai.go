// Package ai defines the domain types exchanged between the routing and
// generation stages and their callers.
package ai

import (
	"context"

	"github.com/xenonwellz/autoplybot/internal/history"
)

// IntentKind discriminates the two recognized shapes of an inbound message.
type IntentKind string

const (
	// IntentConversation covers greetings, questions about the CV and
	// anything else that only needs a textual reply.
	IntentConversation IntentKind = "conversation"
	// IntentJobApplication means the user shared a job posting or asked to
	// apply somewhere.
	IntentJobApplication IntentKind = "job_application"
)

// Intent is the router's classification of a message. Exactly one variant is
// active: Response is set for conversations, JobDescription (and optionally
// RecipientEmail) for applications.
type Intent struct {
	Kind           IntentKind
	Response       string
	JobDescription string
	RecipientEmail string
}

// EmailDraft is a generated-but-unconfirmed application email. It is never
// sent without an explicit user confirmation.
type EmailDraft struct {
	Subject        string
	Body           string
	RecipientEmail string
}

// ComposeRequest carries everything the generation stage may ground on.
type ComposeRequest struct {
	JobDescription string
	RecipientEmail string
	CVText         string
	History        []history.Message
}

// ComposeResult is the generation outcome: the narration shown to the user
// and, when the drafting tool was invoked, the resulting draft.
type ComposeResult struct {
	Response string
	Draft    *EmailDraft
}

// Router classifies a message. Implementations are total: they degrade to a
// conversational Intent on any model or parse failure instead of erroring.
type Router interface {
	Route(ctx context.Context, message, cvText string, hist []history.Message) *Intent
}

// Composer drafts an application email grounded in the CV text.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (*ComposeResult, error)
}
