// Package bot orchestrates a conversation turn end to end: history, intent
// routing, email generation, draft staging and confirmed dispatch.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/ai"
	"github.com/xenonwellz/autoplybot/internal/extract"
	"github.com/xenonwellz/autoplybot/internal/history"
	"github.com/xenonwellz/autoplybot/internal/mail"
	"github.com/xenonwellz/autoplybot/internal/pending"
	"github.com/xenonwellz/autoplybot/internal/storage"
	"github.com/xenonwellz/autoplybot/internal/store"
)

// User-facing copy for the orchestration outcomes.
const (
	msgUploadCV        = "Please upload your CV first so I can write the application for you. Send it as a PDF or Word document."
	msgComposeFailed   = "Sorry, I couldn't put the application together just now. Please try again in a moment."
	msgSent            = "Email sent successfully!"
	msgNothingToSend   = "No pending email to send."
	msgCancelled       = "Email cancelled."
	msgNothingToCancel = "Nothing to cancel."
	msgConnectGmail    = "Please connect your Gmail account first with /connect."
)

// errNoSender means no sender address could be resolved for the user. The
// draft stays staged so a confirm after /connect goes through.
var errNoSender = errors.New("no sender address")

// UserStore is the slice of the relational store the orchestrator needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	SaveApplication(ctx context.Context, app store.Application) error
}

// SenderResolver lists the addresses the user's connected mail account may
// send from. Nil when the dispatcher owns the sender address itself.
type SenderResolver interface {
	SendAsEmails(ctx context.Context, userID string) ([]string, error)
}

// Bot wires the pipeline stages together. All stages are seams so tests can
// substitute fakes.
type Bot struct {
	history  history.Store
	router   ai.Router
	composer ai.Composer
	pending  pending.Store
	users    UserStore
	objects  storage.Store
	mailer   mail.Dispatcher
	senders  SenderResolver
	ttl      time.Duration
	logger   *zap.Logger
}

type Config struct {
	History  history.Store
	Router   ai.Router
	Composer ai.Composer
	Pending  pending.Store
	Users    UserStore
	Objects  storage.Store
	Mailer   mail.Dispatcher
	Senders  SenderResolver
	DraftTTL time.Duration
	Logger   *zap.Logger
}

func New(cfg Config) *Bot {
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = pending.DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bot{
		history:  cfg.History,
		router:   cfg.Router,
		composer: cfg.Composer,
		pending:  cfg.Pending,
		users:    cfg.Users,
		objects:  cfg.Objects,
		mailer:   cfg.Mailer,
		senders:  cfg.Senders,
		ttl:      cfg.DraftTTL,
		logger:   cfg.Logger,
	}
}

// TurnResult is what the transport shows the user after a text message.
type TurnResult struct {
	// Response is the assistant's reply, already markdown-stripped where it
	// came from a model.
	Response string
	// Draft is set when a complete email was staged this turn, so the
	// transport can render a preview next to the confirmation prompt.
	Draft *ai.EmailDraft
	// ConfirmationRequested tells the transport to offer Send/Cancel.
	ConfirmationRequested bool
}

// Turn processes one user message. It never fails the conversation: history
// and staging errors are logged and degraded, and generation failures turn
// into an apology reply.
func (b *Bot) Turn(ctx context.Context, userID, text, cvText string) *TurnResult {
	hist, err := b.history.Load(ctx, userID)
	if err != nil {
		b.logger.Warn("loading history", zap.String("user_id", userID), zap.Error(err))
		hist = nil
	}
	b.append(ctx, userID, history.RoleUser, text)

	intent := b.router.Route(ctx, text, cvText, hist)
	if intent.Kind == ai.IntentConversation {
		b.append(ctx, userID, history.RoleAssistant, intent.Response)
		return &TurnResult{Response: intent.Response}
	}

	if cvText == "" {
		b.append(ctx, userID, history.RoleAssistant, msgUploadCV)
		return &TurnResult{Response: msgUploadCV}
	}

	res, err := b.composer.Compose(ctx, ai.ComposeRequest{
		JobDescription: intent.JobDescription,
		RecipientEmail: intent.RecipientEmail,
		CVText:         cvText,
		History:        hist,
	})
	if err != nil {
		b.logger.Error("composing application", zap.String("user_id", userID), zap.Error(err))
		b.append(ctx, userID, history.RoleAssistant, msgComposeFailed)
		return &TurnResult{Response: msgComposeFailed}
	}

	result := &TurnResult{Response: res.Response}
	if res.Draft != nil && res.Draft.RecipientEmail != "" {
		now := time.Now()
		err := b.pending.Stage(ctx, userID, pending.Draft{
			Subject:        res.Draft.Subject,
			Body:           res.Draft.Body,
			RecipientEmail: res.Draft.RecipientEmail,
			StagedAt:       now,
			ExpiresAt:      now.Add(b.ttl),
		})
		if err != nil {
			b.logger.Error("staging draft", zap.String("user_id", userID), zap.Error(err))
		} else {
			result.Draft = res.Draft
			result.ConfirmationRequested = true
		}
	}

	b.append(ctx, userID, history.RoleAssistant, res.Response)
	return result
}

// Confirm dispatches the user's staged draft. The draft survives a failed
// send so the user can confirm again.
func (b *Bot) Confirm(ctx context.Context, userID string) string {
	err := b.pending.Confirm(ctx, userID, func(d pending.Draft) error {
		return b.dispatch(ctx, userID, d)
	})
	if errors.Is(err, pending.ErrNoPendingAction) {
		return msgNothingToSend
	}
	if errors.Is(err, errNoSender) {
		return msgConnectGmail
	}
	if err != nil {
		b.logger.Error("sending application email", zap.String("user_id", userID), zap.Error(err))
		return fmt.Sprintf("Failed to send email: %v", err)
	}
	return msgSent
}

// Cancel discards the user's staged draft if one exists.
func (b *Bot) Cancel(ctx context.Context, userID string) string {
	err := b.pending.Cancel(ctx, userID)
	if errors.Is(err, pending.ErrNoPendingAction) {
		return msgNothingToCancel
	}
	if err != nil {
		b.logger.Error("cancelling draft", zap.String("user_id", userID), zap.Error(err))
		return msgNothingToCancel
	}
	return msgCancelled
}

func (b *Bot) dispatch(ctx context.Context, userID string, d pending.Draft) error {
	user, err := b.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	from, err := b.senderAddress(ctx, user)
	if err != nil {
		return err
	}

	msg := mail.Message{
		From:    from,
		To:      d.RecipientEmail,
		Subject: d.Subject,
		Body:    d.Body,
	}
	if user.CVStorageKey != "" {
		data, err := b.objects.Get(ctx, user.CVStorageKey)
		if err != nil {
			return fmt.Errorf("loading cv attachment: %w", err)
		}
		msg.Attachment = &mail.Attachment{
			Filename:  extract.NormalizeFilename(user.FirstName, user.LastName, user.CVMediaType),
			MediaType: user.CVMediaType,
			Data:      data,
		}
	}

	if _, err := b.mailer.Send(ctx, userID, msg); err != nil {
		return err
	}

	if err := b.users.SaveApplication(ctx, store.Application{
		UserID:       userID,
		JobSummary:   d.Subject,
		EmailSubject: d.Subject,
		EmailBody:    d.Body,
		SenderEmail:  msg.From,
		CVStorageKey: user.CVStorageKey,
		SentAt:       time.Now(),
	}); err != nil {
		// The mail is already out; losing the audit row must not fail the
		// confirmation.
		b.logger.Warn("recording sent application", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// senderAddress resolves the From address: the user's explicit selection,
// then the first address of the connected mail account. With no resolver the
// dispatcher owns the sender and an empty From is fine.
func (b *Bot) senderAddress(ctx context.Context, user *store.User) (string, error) {
	if user.SelectedEmail != "" {
		return user.SelectedEmail, nil
	}
	if b.senders == nil {
		return "", nil
	}

	emails, err := b.senders.SendAsEmails(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", errNoSender
	}
	if err != nil {
		return "", fmt.Errorf("resolving sender address: %w", err)
	}
	if len(emails) == 0 {
		return "", errNoSender
	}
	return emails[0], nil
}

func (b *Bot) append(ctx context.Context, userID, role, content string) {
	if err := b.history.Append(ctx, userID, role, content); err != nil {
		b.logger.Warn("appending history", zap.String("user_id", userID), zap.Error(err))
	}
}
