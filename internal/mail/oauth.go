package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/store"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	// Refresh slightly before the deadline so an access token never expires
	// mid-send.
	refreshLeeway = time.Minute
)

var gmailScopes = strings.Join([]string{
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.settings.basic",
}, " ")

// OAuthConfig carries the Google OAuth application credentials.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// TokenManager owns the Gmail OAuth token lifecycle: code exchange, sealed
// persistence and on-demand refresh.
type TokenManager struct {
	cfg    OAuthConfig
	store  *store.Store
	sealer *store.Sealer
	client *http.Client
	logger *zap.Logger
}

func NewTokenManager(cfg OAuthConfig, st *store.Store, sealer *store.Sealer, logger *zap.Logger) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		cfg:    cfg,
		store:  st,
		sealer: sealer,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthorizationURL builds the consent URL; state carries the telegram id so
// the callback can find the user again.
func (m *TokenManager) AuthorizationURL(state string) string {
	params := url.Values{
		"client_id":     {m.cfg.ClientID},
		"redirect_uri":  {m.cfg.RedirectURI},
		"response_type": {"code"},
		"scope":         {gmailScopes},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	return googleAuthURL + "?" + params.Encode()
}

// Exchange trades an authorization code for tokens, seals them and stores
// them together with the account's send-as addresses.
func (m *TokenManager) Exchange(ctx context.Context, code, userID string) error {
	data, err := m.tokenRequest(ctx, url.Values{
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"redirect_uri":  {m.cfg.RedirectURI},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	})
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	if data.RefreshToken == "" {
		return errors.New("token exchange: no refresh token returned")
	}

	sealedAccess, err := m.sealer.Seal(data.AccessToken)
	if err != nil {
		return err
	}
	sealedRefresh, err := m.sealer.Seal(data.RefreshToken)
	if err != nil {
		return err
	}

	sendAs, err := m.fetchSendAsAddresses(ctx, data.AccessToken)
	if err != nil {
		m.logger.Warn("fetching send-as addresses", zap.Error(err))
		sendAs = nil
	}

	return m.store.UpsertToken(ctx, store.TokenRecord{
		UserID:       userID,
		AccessToken:  sealedAccess,
		RefreshToken: sealedRefresh,
		ExpiresAt:    time.Now().Add(time.Duration(data.ExpiresIn) * time.Second),
		SendAsEmails: sendAs,
	})
}

// AccessToken returns a valid access token for the user, refreshing it with
// the stored refresh token when close to expiry.
func (m *TokenManager) AccessToken(ctx context.Context, userID string) (string, error) {
	rec, err := m.store.GetToken(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load oauth token: %w", err)
	}

	if rec.ExpiresAt.After(time.Now().Add(refreshLeeway)) {
		return m.sealer.Open(rec.AccessToken)
	}

	refreshToken, err := m.sealer.Open(rec.RefreshToken)
	if err != nil {
		return "", err
	}

	data, err := m.tokenRequest(ctx, url.Values{
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	sealedAccess, err := m.sealer.Seal(data.AccessToken)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(time.Duration(data.ExpiresIn) * time.Second)
	if err := m.store.UpdateAccessToken(ctx, userID, sealedAccess, expiresAt); err != nil {
		return "", err
	}

	m.logger.Debug("refreshed gmail access token", zap.String("user_id", userID))
	return data.AccessToken, nil
}

// SendAsEmails returns the sender addresses recorded at connect time.
func (m *TokenManager) SendAsEmails(ctx context.Context, userID string) ([]string, error) {
	rec, err := m.store.GetToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rec.SendAsEmails, nil
}

// Connected reports whether the user has Gmail credentials on file.
func (m *TokenManager) Connected(ctx context.Context, userID string) (bool, error) {
	_, err := m.store.GetToken(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *TokenManager) tokenRequest(ctx context.Context, form url.Values) (*googleTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("bad status: %s: %s", resp.Status, body)
	}

	var data googleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

type gmailSendAsResponse struct {
	SendAs []struct {
		SendAsEmail string `json:"sendAsEmail"`
		IsDefault   bool   `json:"isDefault"`
	} `json:"sendAs"`
}

func (m *TokenManager) fetchSendAsAddresses(ctx context.Context, accessToken string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		gmailAPIURL+"/users/me/settings/sendAs", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var data gmailSendAsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(data.SendAs))
	// Default address first so it becomes the fallback sender.
	for _, s := range data.SendAs {
		if s.IsDefault {
			emails = append(emails, s.SendAsEmail)
		}
	}
	for _, s := range data.SendAs {
		if !s.IsDefault {
			emails = append(emails, s.SendAsEmail)
		}
	}
	return emails, nil
}
