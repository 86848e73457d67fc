// Package server exposes the HTTP surface: the Telegram webhook, the Gmail
// OAuth callback and a health probe.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/store"
	"github.com/xenonwellz/autoplybot/internal/telegram"
)

// UpdateHandler consumes decoded webhook updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd *telegram.Update)
}

// TokenExchanger finishes the OAuth flow for the callback endpoint.
type TokenExchanger interface {
	Exchange(ctx context.Context, code, userID string) error
}

// UserResolver maps the OAuth state parameter back to a user.
type UserResolver interface {
	GetUserByTelegramID(ctx context.Context, telegramID string) (*store.User, error)
}

type Server struct {
	handler UpdateHandler
	tokens  TokenExchanger
	users   UserResolver
	logger  *zap.Logger
	listen  string
	srv     *http.Server
}

type Config struct {
	Listen  string
	Handler UpdateHandler
	Tokens  TokenExchanger
	Users   UserResolver
	Logger  *zap.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		handler: cfg.Handler,
		tokens:  cfg.Tokens,
		users:   cfg.Users,
		logger:  cfg.Logger,
		listen:  cfg.Listen,
	}
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/oauth/callback", s.handleOAuthCallback)
	return r
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.listen))
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleWebhook always answers 200 once the body decodes. Telegram retries
// non-2xx responses, and a retried update reruns model calls.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.logger.Warn("decoding webhook update", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.handler.HandleUpdate(r.Context(), &upd)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}
	if s.tokens == nil {
		http.Error(w, "gmail connection is not enabled", http.StatusNotFound)
		return
	}

	user, err := s.users.GetUserByTelegramID(r.Context(), state)
	if err != nil {
		s.logger.Warn("resolving oauth state", zap.String("state", state), zap.Error(err))
		http.Error(w, "unknown user", http.StatusBadRequest)
		return
	}

	if err := s.tokens.Exchange(r.Context(), code, user.ID); err != nil {
		s.logger.Error("exchanging oauth code", zap.String("user_id", user.ID), zap.Error(err))
		s.renderPage(w, http.StatusBadGateway, "Connection failed",
			"We couldn't connect your Gmail account. Go back to Telegram and try /connect again.")
		return
	}

	s.logger.Info("gmail account connected", zap.String("user_id", user.ID))
	s.renderPage(w, http.StatusOK, "Gmail connected",
		"Your Gmail account is connected. You can close this tab and return to Telegram.")
}

func (s *Server) renderPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte("<!DOCTYPE html><html><head><title>" + title + "</title></head><body><h1>" +
		title + "</h1><p>" + body + "</p></body></html>"))
}
