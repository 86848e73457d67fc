package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTPConfig describes a plain SMTP relay. All mail goes out through the
// single configured account regardless of the bot user.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// SMTPDispatcher sends messages through an authenticated SMTP relay. It is
// the fallback transport for deployments without Gmail OAuth credentials.
type SMTPDispatcher struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

func NewSMTPDispatcher(cfg SMTPConfig, logger *zap.Logger) *SMTPDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPDispatcher{cfg: cfg, logger: logger}
}

func (d *SMTPDispatcher) Send(ctx context.Context, userID string, msg Message) (string, error) {
	if msg.From == "" {
		msg.From = d.cfg.From
	}
	raw := buildMIME(msg)

	auth := sasl.NewPlainClient("", d.cfg.Username, d.cfg.Password)
	if err := smtp.SendMail(d.cfg.Addr, auth, msg.From, []string{msg.To}, strings.NewReader(raw)); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	d.logger.Info("email sent via smtp",
		zap.String("user_id", userID),
		zap.String("to", msg.To),
	)
	return "", nil
}
