// Package store persists users, sent applications and OAuth credentials in
// Postgres. The conversation log lives in package history on the same pool.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User is a bot user, keyed internally by UUID and externally by telegram id.
type User struct {
	ID            string
	TelegramID    string
	FirstName     string
	LastName      string
	CVStorageKey  string
	CVMediaType   string
	SelectedEmail string
}

// Application records a dispatched job application.
type Application struct {
	UserID       string
	JobSummary   string
	EmailSubject string
	EmailBody    string
	SenderEmail  string
	CVStorageKey string
	SentAt       time.Time
}

// TokenRecord holds a user's OAuth credentials. Access and refresh tokens
// are sealed before they reach this struct's persisted form.
type TokenRecord struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SendAsEmails []string
}

// Store is the Postgres-backed relational store.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for collaborators sharing the database.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables owned by this package.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		telegram_id TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		cv_storage_key TEXT NOT NULL DEFAULT '',
		cv_media_type TEXT NOT NULL DEFAULT '',
		selected_email TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS applications (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		job_summary TEXT NOT NULL,
		email_subject TEXT NOT NULL,
		email_body TEXT NOT NULL,
		sender_email TEXT NOT NULL,
		cv_storage_key TEXT NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_applications_user_sent ON applications (user_id, sent_at DESC);

	CREATE TABLE IF NOT EXISTS oauth_tokens (
		user_id TEXT PRIMARY KEY REFERENCES users(id),
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		send_as_emails TEXT[] NOT NULL DEFAULT '{}'
	);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create store schema: %w", err)
	}
	return nil
}

// UpsertUser creates the user on first contact and refreshes the display
// name on every later one.
func (s *Store) UpsertUser(ctx context.Context, telegramID, firstName, lastName string) (*User, error) {
	query := `
	INSERT INTO users (id, telegram_id, first_name, last_name)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (telegram_id) DO UPDATE SET
		first_name = excluded.first_name,
		last_name = excluded.last_name
	RETURNING id, telegram_id, first_name, last_name, cv_storage_key, cv_media_type, selected_email`

	return s.scanUser(s.pool.QueryRow(ctx, query, uuid.NewString(), telegramID, firstName, lastName))
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
	SELECT id, telegram_id, first_name, last_name, cv_storage_key, cv_media_type, selected_email
	FROM users WHERE id = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID string) (*User, error) {
	query := `
	SELECT id, telegram_id, first_name, last_name, cv_storage_key, cv_media_type, selected_email
	FROM users WHERE telegram_id = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, telegramID))
}

func (s *Store) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.LastName,
		&u.CVStorageKey, &u.CVMediaType, &u.SelectedEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// SetUserCV records the storage key and media type of a freshly uploaded CV.
func (s *Store) SetUserCV(ctx context.Context, userID, storageKey, mediaType string) error {
	query := `UPDATE users SET cv_storage_key = $2, cv_media_type = $3 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, userID, storageKey, mediaType); err != nil {
		return fmt.Errorf("set user cv: %w", err)
	}
	return nil
}

func (s *Store) SetSelectedEmail(ctx context.Context, userID, email string) error {
	query := `UPDATE users SET selected_email = $2 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, userID, email); err != nil {
		return fmt.Errorf("set selected email: %w", err)
	}
	return nil
}

func (s *Store) SaveApplication(ctx context.Context, app Application) error {
	query := `
	INSERT INTO applications (user_id, job_summary, email_subject, email_body, sender_email, cv_storage_key)
	VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		app.UserID, app.JobSummary, app.EmailSubject, app.EmailBody, app.SenderEmail, app.CVStorageKey)
	if err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

// RecentApplications returns the user's latest sent applications, newest
// first.
func (s *Store) RecentApplications(ctx context.Context, userID string, limit int) ([]Application, error) {
	query := `
	SELECT user_id, job_summary, email_subject, email_body, sender_email, cv_storage_key, sent_at
	FROM applications
	WHERE user_id = $1
	ORDER BY sent_at DESC
	LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.UserID, &a.JobSummary, &a.EmailSubject, &a.EmailBody,
			&a.SenderEmail, &a.CVStorageKey, &a.SentAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

// UpsertToken stores a full credential set after an OAuth code exchange.
func (s *Store) UpsertToken(ctx context.Context, rec TokenRecord) error {
	query := `
	INSERT INTO oauth_tokens (user_id, access_token, refresh_token, expires_at, send_as_emails)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id) DO UPDATE SET
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		expires_at = excluded.expires_at,
		send_as_emails = excluded.send_as_emails`
	_, err := s.pool.Exec(ctx, query,
		rec.UserID, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, rec.SendAsEmails)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, userID string) (*TokenRecord, error) {
	query := `
	SELECT user_id, access_token, refresh_token, expires_at, send_as_emails
	FROM oauth_tokens WHERE user_id = $1`

	var rec TokenRecord
	err := s.pool.QueryRow(ctx, query, userID).
		Scan(&rec.UserID, &rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt, &rec.SendAsEmails)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return &rec, nil
}

// UpdateAccessToken replaces just the short-lived half of the credentials
// after a refresh.
func (s *Store) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	query := `UPDATE oauth_tokens SET access_token = $2, expires_at = $3 WHERE user_id = $1`
	if _, err := s.pool.Exec(ctx, query, userID, accessToken, expiresAt); err != nil {
		return fmt.Errorf("update access token: %w", err)
	}
	return nil
}
