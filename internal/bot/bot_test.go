package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/ai"
	"github.com/xenonwellz/autoplybot/internal/history"
	"github.com/xenonwellz/autoplybot/internal/mail"
	"github.com/xenonwellz/autoplybot/internal/pending"
	"github.com/xenonwellz/autoplybot/internal/store"
)

type stubRouter struct {
	intent *ai.Intent
}

func (r *stubRouter) Route(_ context.Context, _, _ string, _ []history.Message) *ai.Intent {
	return r.intent
}

type stubComposer struct {
	result  *ai.ComposeResult
	err     error
	lastReq ai.ComposeRequest
}

func (c *stubComposer) Compose(_ context.Context, req ai.ComposeRequest) (*ai.ComposeResult, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type stubUsers struct {
	user *store.User
	apps []store.Application
}

func (s *stubUsers) GetUser(_ context.Context, _ string) (*store.User, error) {
	if s.user == nil {
		return nil, store.ErrNotFound
	}
	return s.user, nil
}

func (s *stubUsers) SaveApplication(_ context.Context, app store.Application) error {
	s.apps = append(s.apps, app)
	return nil
}

type stubObjects struct {
	blobs map[string][]byte
}

func (s *stubObjects) Put(_ context.Context, data []byte, _ string) (string, error) {
	if s.blobs == nil {
		s.blobs = make(map[string][]byte)
	}
	key := "blob"
	s.blobs[key] = data
	return key, nil
}

func (s *stubObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.blobs[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *stubObjects) Delete(_ context.Context, key string) error {
	delete(s.blobs, key)
	return nil
}

type stubSenders struct {
	emails []string
	err    error
}

func (s *stubSenders) SendAsEmails(_ context.Context, _ string) ([]string, error) {
	return s.emails, s.err
}

type stubMailer struct {
	err  error
	sent []mail.Message
}

func (m *stubMailer) Send(_ context.Context, _ string, msg mail.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-1", nil
}

type testBot struct {
	bot      *Bot
	history  *history.MemoryStore
	router   *stubRouter
	composer *stubComposer
	pending  pending.Store
	users    *stubUsers
	objects  *stubObjects
	mailer   *stubMailer
}

func newTestBot(intent *ai.Intent, result *ai.ComposeResult, composeErr error) *testBot {
	tb := &testBot{
		history:  history.NewMemory(),
		router:   &stubRouter{intent: intent},
		composer: &stubComposer{result: result, err: composeErr},
		pending:  pending.NewMemory(),
		users: &stubUsers{user: &store.User{
			ID:            "u1",
			FirstName:     "Ada",
			LastName:      "Lovelace",
			CVStorageKey:  "cv-key",
			CVMediaType:   "application/pdf",
			SelectedEmail: "ada@example.com",
		}},
		objects: &stubObjects{blobs: map[string][]byte{"cv-key": []byte("%PDF-1.4")}},
		mailer:  &stubMailer{},
	}
	tb.rebuild(nil)
	return tb
}

func (tb *testBot) rebuild(senders SenderResolver) {
	tb.bot = New(Config{
		History:  tb.history,
		Router:   tb.router,
		Composer: tb.composer,
		Pending:  tb.pending,
		Users:    tb.users,
		Objects:  tb.objects,
		Mailer:   tb.mailer,
		Senders:  senders,
		Logger:   zap.NewNop(),
	})
}

func TestTurnConversation(t *testing.T) {
	tb := newTestBot(&ai.Intent{Kind: ai.IntentConversation, Response: "Hello there!"}, nil, nil)

	res := tb.bot.Turn(context.Background(), "u1", "hi", "")
	if res.Response != "Hello there!" {
		t.Fatalf("unexpected response: %q", res.Response)
	}
	if res.ConfirmationRequested {
		t.Fatalf("conversation must not request confirmation")
	}

	msgs, err := tb.history.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("loading history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant turns, got %d messages", len(msgs))
	}
	if msgs[0].Role != history.RoleUser || msgs[1].Role != history.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestTurnJobApplicationWithoutCV(t *testing.T) {
	tb := newTestBot(&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev at Acme"}, nil, nil)

	res := tb.bot.Turn(context.Background(), "u1", "apply to this", "")
	if !strings.Contains(res.Response, "upload your CV") {
		t.Fatalf("expected upload reminder, got %q", res.Response)
	}
	if res.ConfirmationRequested {
		t.Fatalf("no draft can exist without a CV")
	}
}

func TestTurnComposeFailure(t *testing.T) {
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev at Acme"},
		nil, errors.New("model unavailable"),
	)

	res := tb.bot.Turn(context.Background(), "u1", "apply", "cv text")
	if res.Response != msgComposeFailed {
		t.Fatalf("expected apology, got %q", res.Response)
	}
	if res.ConfirmationRequested {
		t.Fatalf("failed generation must not stage a draft")
	}
}

func TestTurnStagesDraftAndConfirms(t *testing.T) {
	draft := &ai.EmailDraft{
		Subject:        "Application for Go Developer at Acme",
		Body:           "Dear Hiring Manager,",
		RecipientEmail: "jobs@acme.com",
	}
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev at Acme", RecipientEmail: "jobs@acme.com"},
		&ai.ComposeResult{Response: "Drafted your application.", Draft: draft},
		nil,
	)

	ctx := context.Background()
	res := tb.bot.Turn(ctx, "u1", "apply to this posting", "cv text")
	if !res.ConfirmationRequested {
		t.Fatalf("expected confirmation request")
	}
	if res.Draft == nil || res.Draft.Subject != draft.Subject {
		t.Fatalf("expected staged draft in result, got %+v", res.Draft)
	}
	if tb.composer.lastReq.CVText != "cv text" {
		t.Fatalf("composer must receive the cv text")
	}

	if got := tb.bot.Confirm(ctx, "u1"); got != msgSent {
		t.Fatalf("confirm: %q", got)
	}
	if len(tb.mailer.sent) != 1 {
		t.Fatalf("expected one sent message, got %d", len(tb.mailer.sent))
	}
	sent := tb.mailer.sent[0]
	if sent.To != "jobs@acme.com" || sent.From != "ada@example.com" {
		t.Fatalf("unexpected addressing: from %q to %q", sent.From, sent.To)
	}
	if sent.Attachment == nil {
		t.Fatalf("expected cv attachment")
	}
	if sent.Attachment.Filename != "Ada_Lovelace_CV.pdf" {
		t.Fatalf("attachment filename: %q", sent.Attachment.Filename)
	}
	if len(tb.users.apps) != 1 {
		t.Fatalf("expected one recorded application, got %d", len(tb.users.apps))
	}

	// The slot is cleared after a successful send.
	if got := tb.bot.Confirm(ctx, "u1"); got != msgNothingToSend {
		t.Fatalf("second confirm: %q", got)
	}
}

func TestTurnDraftWithoutRecipientNotStaged(t *testing.T) {
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev"},
		&ai.ComposeResult{
			Response: "I need the recipient address before I can prepare the email.",
			Draft:    &ai.EmailDraft{Subject: "Job Application", Body: "..."},
		},
		nil,
	)

	res := tb.bot.Turn(context.Background(), "u1", "apply", "cv text")
	if res.ConfirmationRequested {
		t.Fatalf("incomplete draft must not be staged")
	}
	if got := tb.bot.Confirm(context.Background(), "u1"); got != msgNothingToSend {
		t.Fatalf("confirm: %q", got)
	}
}

func TestConfirmFallsBackToSendAsAddress(t *testing.T) {
	draft := &ai.EmailDraft{Subject: "Job Application", Body: "...", RecipientEmail: "jobs@acme.com"}
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev"},
		&ai.ComposeResult{Response: "Drafted.", Draft: draft},
		nil,
	)
	tb.users.user.SelectedEmail = ""
	tb.rebuild(&stubSenders{emails: []string{"ada@gmail.com", "ada@work.com"}})

	ctx := context.Background()
	tb.bot.Turn(ctx, "u1", "apply", "cv text")

	if got := tb.bot.Confirm(ctx, "u1"); got != msgSent {
		t.Fatalf("confirm: %q", got)
	}
	if len(tb.mailer.sent) != 1 {
		t.Fatalf("expected one sent message, got %d", len(tb.mailer.sent))
	}
	if got := tb.mailer.sent[0].From; got != "ada@gmail.com" {
		t.Fatalf("expected first send-as address as sender, got %q", got)
	}
}

func TestConfirmSelectedEmailWinsOverSendAs(t *testing.T) {
	draft := &ai.EmailDraft{Subject: "Job Application", Body: "...", RecipientEmail: "jobs@acme.com"}
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev"},
		&ai.ComposeResult{Response: "Drafted.", Draft: draft},
		nil,
	)
	tb.users.user.SelectedEmail = "ada@work.com"
	tb.rebuild(&stubSenders{emails: []string{"ada@gmail.com", "ada@work.com"}})

	ctx := context.Background()
	tb.bot.Turn(ctx, "u1", "apply", "cv text")

	if got := tb.bot.Confirm(ctx, "u1"); got != msgSent {
		t.Fatalf("confirm: %q", got)
	}
	if got := tb.mailer.sent[0].From; got != "ada@work.com" {
		t.Fatalf("expected the selected address as sender, got %q", got)
	}
}

func TestConfirmWithoutConnectedAccount(t *testing.T) {
	draft := &ai.EmailDraft{Subject: "Job Application", Body: "...", RecipientEmail: "jobs@acme.com"}
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev"},
		&ai.ComposeResult{Response: "Drafted.", Draft: draft},
		nil,
	)
	tb.users.user.SelectedEmail = ""
	tb.rebuild(&stubSenders{err: store.ErrNotFound})

	ctx := context.Background()
	tb.bot.Turn(ctx, "u1", "apply", "cv text")

	if got := tb.bot.Confirm(ctx, "u1"); got != msgConnectGmail {
		t.Fatalf("expected connect hint, got %q", got)
	}
	if len(tb.mailer.sent) != 0 {
		t.Fatalf("nothing must be sent without a sender address")
	}

	// The draft survives so a confirm after connecting succeeds.
	tb.rebuild(&stubSenders{emails: []string{"ada@gmail.com"}})
	if got := tb.bot.Confirm(ctx, "u1"); got != msgSent {
		t.Fatalf("confirm after connecting: %q", got)
	}
	if got := tb.mailer.sent[0].From; got != "ada@gmail.com" {
		t.Fatalf("unexpected sender: %q", got)
	}
}

func TestConfirmKeepsDraftOnDispatchFailure(t *testing.T) {
	draft := &ai.EmailDraft{Subject: "Job Application", Body: "...", RecipientEmail: "jobs@acme.com"}
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev"},
		&ai.ComposeResult{Response: "Drafted.", Draft: draft},
		nil,
	)

	ctx := context.Background()
	tb.bot.Turn(ctx, "u1", "apply", "cv text")

	tb.mailer.err = errors.New("smtp unreachable")
	if got := tb.bot.Confirm(ctx, "u1"); !strings.HasPrefix(got, "Failed to send email:") {
		t.Fatalf("expected failure message, got %q", got)
	}
	if len(tb.users.apps) != 0 {
		t.Fatalf("failed send must not record an application")
	}

	// Retry after the transport recovers.
	tb.mailer.err = nil
	if got := tb.bot.Confirm(ctx, "u1"); got != msgSent {
		t.Fatalf("retry confirm: %q", got)
	}
}

func TestCancel(t *testing.T) {
	draft := &ai.EmailDraft{Subject: "Job Application", Body: "...", RecipientEmail: "jobs@acme.com"}
	tb := newTestBot(
		&ai.Intent{Kind: ai.IntentJobApplication, JobDescription: "Go dev"},
		&ai.ComposeResult{Response: "Drafted.", Draft: draft},
		nil,
	)

	ctx := context.Background()
	if got := tb.bot.Cancel(ctx, "u1"); got != msgNothingToCancel {
		t.Fatalf("cancel with empty slot: %q", got)
	}

	tb.bot.Turn(ctx, "u1", "apply", "cv text")
	if got := tb.bot.Cancel(ctx, "u1"); got != msgCancelled {
		t.Fatalf("cancel: %q", got)
	}
	if got := tb.bot.Confirm(ctx, "u1"); got != msgNothingToSend {
		t.Fatalf("confirm after cancel: %q", got)
	}
	if len(tb.mailer.sent) != 0 {
		t.Fatalf("cancelled draft must never be sent")
	}
}
