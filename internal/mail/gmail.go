package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const gmailAPIURL = "https://gmail.googleapis.com/gmail/v1"

// GmailDispatcher sends messages through the Gmail REST API with the user's
// own OAuth credentials.
type GmailDispatcher struct {
	tokens *TokenManager
	client *http.Client
	logger *zap.Logger
}

func NewGmailDispatcher(tokens *TokenManager, logger *zap.Logger) *GmailDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GmailDispatcher{
		tokens: tokens,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

type gmailSendRequest struct {
	Raw string `json:"raw"`
}

type gmailSendResponse struct {
	ID string `json:"id"`
}

// Send builds the MIME message and posts it as a base64url raw payload.
// It returns the Gmail message id.
func (d *GmailDispatcher) Send(ctx context.Context, userID string, msg Message) (string, error) {
	accessToken, err := d.tokens.AccessToken(ctx, userID)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(gmailSendRequest{
		Raw: base64URLEncode(buildMIME(msg)),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		gmailAPIURL+"/users/me/messages/send", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gmail send: bad status %s: %s", resp.Status, body)
	}

	var data gmailSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("gmail send: decoding response: %w", err)
	}

	d.logger.Info("email sent via gmail",
		zap.String("user_id", userID),
		zap.String("message_id", data.ID),
		zap.String("to", msg.To),
	)
	return data.ID, nil
}
