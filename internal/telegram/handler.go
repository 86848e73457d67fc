package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/bot"
	"github.com/xenonwellz/autoplybot/internal/extract"
	"github.com/xenonwellz/autoplybot/internal/storage"
	"github.com/xenonwellz/autoplybot/internal/store"
	"github.com/xenonwellz/autoplybot/internal/textutil"
)

// Telegram caps bot file downloads at 20 MB.
const maxDocumentSize = 20 << 20

const welcomeMessage = `Hi! I'm your job application assistant.

Upload your CV (PDF or Word document), then send me a job posting and I'll draft the application email for you. Nothing is sent without your confirmation.

Commands:
/cv - show your uploaded CV
/connect - connect your Gmail account
/email - choose which of your addresses to send from
/history - show recently sent applications`

// Orchestrator is the conversation pipeline behind the transport.
type Orchestrator interface {
	Turn(ctx context.Context, userID, text, cvText string) *bot.TurnResult
	Confirm(ctx context.Context, userID string) string
	Cancel(ctx context.Context, userID string) string
}

// Directory is the slice of the relational store the transport needs.
type Directory interface {
	UpsertUser(ctx context.Context, telegramID, firstName, lastName string) (*store.User, error)
	SetUserCV(ctx context.Context, userID, storageKey, mediaType string) error
	SetSelectedEmail(ctx context.Context, userID, email string) error
	RecentApplications(ctx context.Context, userID string, limit int) ([]store.Application, error)
}

// Messenger is the outbound half of the Bot API client.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendConfirmation(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	GetFile(ctx context.Context, fileID string) (string, error)
	Download(ctx context.Context, filePath string) ([]byte, error)
}

// Connector exposes the Gmail OAuth flow to the /connect and /email
// commands. Nil when the deployment sends through SMTP instead.
type Connector interface {
	AuthorizationURL(state string) string
	Connected(ctx context.Context, userID string) (bool, error)
	SendAsEmails(ctx context.Context, userID string) ([]string, error)
}

// Handler turns Bot API updates into orchestrator calls.
type Handler struct {
	client    Messenger
	bot       Orchestrator
	users     Directory
	objects   storage.Store
	extractor *extract.Extractor
	connector Connector
	logger    *zap.Logger
}

type HandlerConfig struct {
	Client    Messenger
	Bot       Orchestrator
	Users     Directory
	Objects   storage.Store
	Extractor *extract.Extractor
	Connector Connector
	Logger    *zap.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		client:    cfg.Client,
		bot:       cfg.Bot,
		users:     cfg.Users,
		objects:   cfg.Objects,
		extractor: cfg.Extractor,
		connector: cfg.Connector,
		logger:    cfg.Logger,
	}
}

// HandleUpdate processes one webhook update. Errors are logged, not
// returned: the webhook must always acknowledge or Telegram retries the
// same update indefinitely.
func (h *Handler) HandleUpdate(ctx context.Context, upd *Update) {
	switch {
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.Document != nil:
		h.handleDocument(ctx, upd.Message)
	case upd.Message != nil && upd.Message.Text != "":
		h.handleText(ctx, upd.Message)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *CallbackQuery) {
	user := h.resolveUser(ctx, cb.From)
	if user == nil {
		return
	}
	chatID := cb.From.ID
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}

	var reply string
	switch cb.Data {
	case CallbackConfirmSend:
		reply = h.bot.Confirm(ctx, user.ID)
	case CallbackCancelSend:
		reply = h.bot.Cancel(ctx, user.ID)
	default:
		h.answer(ctx, cb.ID, "Unknown action")
		return
	}

	h.answer(ctx, cb.ID, "")
	h.send(ctx, chatID, reply)
}

func (h *Handler) handleDocument(ctx context.Context, msg *IncomingMsg) {
	user := h.resolveUser(ctx, msg.From)
	if user == nil {
		return
	}
	doc := msg.Document

	switch doc.MimeType {
	case extract.MediaTypePDF, extract.MediaTypeDOC, extract.MediaTypeDOCX:
	default:
		h.send(ctx, msg.Chat.ID, "I can only read PDF and Word documents. Please upload your CV as .pdf, .doc or .docx.")
		return
	}
	if doc.FileSize > maxDocumentSize {
		h.send(ctx, msg.Chat.ID, "That file is too large. Please upload a CV under 20 MB.")
		return
	}

	path, err := h.client.GetFile(ctx, doc.FileID)
	if err != nil {
		h.logger.Error("resolving document", zap.String("user_id", user.ID), zap.Error(err))
		h.send(ctx, msg.Chat.ID, "I couldn't download that file. Please try again.")
		return
	}
	data, err := h.client.Download(ctx, path)
	if err != nil {
		h.logger.Error("downloading document", zap.String("user_id", user.ID), zap.Error(err))
		h.send(ctx, msg.Chat.ID, "I couldn't download that file. Please try again.")
		return
	}

	key, err := h.objects.Put(ctx, data, doc.MimeType)
	if err != nil {
		h.logger.Error("storing cv", zap.String("user_id", user.ID), zap.Error(err))
		h.send(ctx, msg.Chat.ID, "I couldn't save your CV. Please try again.")
		return
	}
	if err := h.users.SetUserCV(ctx, user.ID, key, doc.MimeType); err != nil {
		h.logger.Error("recording cv", zap.String("user_id", user.ID), zap.Error(err))
		h.send(ctx, msg.Chat.ID, "I couldn't save your CV. Please try again.")
		return
	}

	h.logger.Info("cv uploaded",
		zap.String("user_id", user.ID),
		zap.String("media_type", doc.MimeType),
		zap.Int64("size", doc.FileSize),
	)
	h.send(ctx, msg.Chat.ID, "Got your CV! Now send me a job posting and I'll draft the application email.")
}

func (h *Handler) handleText(ctx context.Context, msg *IncomingMsg) {
	user := h.resolveUser(ctx, msg.From)
	if user == nil {
		return
	}

	if strings.HasPrefix(msg.Text, "/") {
		h.handleCommand(ctx, msg.Chat.ID, user, msg.Text)
		return
	}

	res := h.bot.Turn(ctx, user.ID, msg.Text, h.cvText(ctx, user))
	if res.ConfirmationRequested && res.Draft != nil {
		preview := fmt.Sprintf("%s\n\n--- EMAIL PREVIEW ---\nTo: %s\nSubject: %s\n\n%s",
			res.Response, res.Draft.RecipientEmail, res.Draft.Subject, res.Draft.Body)
		if err := h.client.SendConfirmation(ctx, msg.Chat.ID, preview); err != nil {
			h.logger.Error("sending confirmation", zap.String("user_id", user.ID), zap.Error(err))
		}
		return
	}
	h.send(ctx, msg.Chat.ID, res.Response)
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, user *store.User, text string) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/start":
		h.send(ctx, chatID, welcomeMessage)

	case "/cv":
		if user.CVStorageKey == "" {
			h.send(ctx, chatID, "You haven't uploaded a CV yet. Send it as a PDF or Word document.")
			return
		}
		h.send(ctx, chatID, fmt.Sprintf("Your CV is on file as %s.",
			extract.NormalizeFilename(user.FirstName, user.LastName, user.CVMediaType)))

	case "/connect":
		h.handleConnect(ctx, chatID, user)

	case "/email":
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		h.handleEmail(ctx, chatID, user, arg)

	case "/history":
		h.handleHistory(ctx, chatID, user)

	default:
		h.send(ctx, chatID, "I don't know that command. Try /start.")
	}
}

func (h *Handler) handleConnect(ctx context.Context, chatID int64, user *store.User) {
	if h.connector == nil {
		h.send(ctx, chatID, "This deployment sends email through a shared account, so there's nothing to connect.")
		return
	}
	connected, err := h.connector.Connected(ctx, user.ID)
	if err != nil {
		h.logger.Error("checking gmail connection", zap.String("user_id", user.ID), zap.Error(err))
	}
	if connected {
		h.send(ctx, chatID, "Your Gmail account is already connected.")
		return
	}
	url := h.connector.AuthorizationURL(user.TelegramID)
	h.send(ctx, chatID, "Connect your Gmail account so applications go out from your own address:\n\n"+url)
}

// handleEmail lists the connected account's addresses, or records the chosen
// one as the sender for future applications.
func (h *Handler) handleEmail(ctx context.Context, chatID int64, user *store.User, address string) {
	if h.connector == nil {
		h.send(ctx, chatID, "This deployment sends email through a shared account, so the sender address is fixed.")
		return
	}

	emails, err := h.connector.SendAsEmails(ctx, user.ID)
	if err != nil {
		h.logger.Warn("listing send-as addresses", zap.String("user_id", user.ID), zap.Error(err))
		h.send(ctx, chatID, "You haven't connected a Gmail account yet. Use /connect first.")
		return
	}
	if len(emails) == 0 {
		h.send(ctx, chatID, "Your connected account has no usable sender addresses. Try /connect again.")
		return
	}

	if address == "" {
		var b strings.Builder
		b.WriteString("Addresses you can send from:\n")
		for _, email := range emails {
			marker := ""
			if email == user.SelectedEmail {
				marker = " (selected)"
			}
			fmt.Fprintf(&b, "\n• %s%s", email, marker)
		}
		b.WriteString("\n\nUse /email <address> to pick one.")
		h.send(ctx, chatID, b.String())
		return
	}

	known := false
	for _, email := range emails {
		if strings.EqualFold(email, address) {
			address = email
			known = true
			break
		}
	}
	if !known {
		h.send(ctx, chatID, fmt.Sprintf("%s is not one of your account's addresses. Send /email to see the list.", address))
		return
	}

	if err := h.users.SetSelectedEmail(ctx, user.ID, address); err != nil {
		h.logger.Error("selecting sender address", zap.String("user_id", user.ID), zap.Error(err))
		h.send(ctx, chatID, "I couldn't save that choice. Please try again.")
		return
	}
	user.SelectedEmail = address
	h.send(ctx, chatID, fmt.Sprintf("Applications will be sent from %s.", address))
}

func (h *Handler) handleHistory(ctx context.Context, chatID int64, user *store.User) {
	apps, err := h.users.RecentApplications(ctx, user.ID, 5)
	if err != nil {
		h.logger.Error("loading applications", zap.String("user_id", user.ID), zap.Error(err))
		h.send(ctx, chatID, "I couldn't load your application history right now.")
		return
	}
	if len(apps) == 0 {
		h.send(ctx, chatID, "You haven't sent any applications yet.")
		return
	}

	var b strings.Builder
	b.WriteString("Your recent applications:\n")
	for _, app := range apps {
		fmt.Fprintf(&b, "\n• %s (%s)", app.EmailSubject, textutil.FormatTimestamp(app.SentAt))
	}
	h.send(ctx, chatID, b.String())
}

// cvText loads and extracts the stored CV. Extraction failures degrade to an
// empty CV so the turn still routes.
func (h *Handler) cvText(ctx context.Context, user *store.User) string {
	if user.CVStorageKey == "" {
		return ""
	}
	data, err := h.objects.Get(ctx, user.CVStorageKey)
	if err != nil {
		h.logger.Warn("loading stored cv", zap.String("user_id", user.ID), zap.Error(err))
		return ""
	}
	text, err := h.extractor.Extract(data, user.CVMediaType)
	if err != nil {
		h.logger.Warn("extracting stored cv", zap.String("user_id", user.ID), zap.Error(err))
		return ""
	}
	return text
}

func (h *Handler) resolveUser(ctx context.Context, from *Sender) *store.User {
	if from == nil {
		return nil
	}
	user, err := h.users.UpsertUser(ctx, strconv.FormatInt(from.ID, 10), from.FirstName, from.LastName)
	if err != nil {
		h.logger.Error("upserting user", zap.Int64("telegram_id", from.ID), zap.Error(err))
		return nil
	}
	return user
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if err := h.client.SendMessage(ctx, chatID, text); err != nil {
		h.logger.Error("sending message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if err := h.client.AnswerCallback(ctx, callbackID, text); err != nil {
		h.logger.Error("answering callback", zap.String("callback_id", callbackID), zap.Error(err))
	}
}
