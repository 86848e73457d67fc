package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists staged drafts so in-flight confirmations survive a
// process restart. One row per user, upsert on stage, delete on resolve.
type SQLiteStore struct {
	db    *sql.DB
	users *keyedMutex
	now   func() time.Time
}

func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, users: newKeyedMutex(), now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS pending_actions (
		user_id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		recipient_email TEXT NOT NULL,
		staged_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_actions(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) Stage(ctx context.Context, userID string, d Draft) error {
	userLock := s.users.lock(userID)
	defer userLock.Unlock()

	query := `
	INSERT INTO pending_actions (user_id, subject, body, recipient_email, staged_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		subject = excluded.subject,
		body = excluded.body,
		recipient_email = excluded.recipient_email,
		staged_at = excluded.staged_at,
		expires_at = excluded.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		userID, d.Subject, d.Body, d.RecipientEmail, d.StagedAt.Unix(), d.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("stage draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Confirm(ctx context.Context, userID string, send func(Draft) error) error {
	userLock := s.users.lock(userID)
	defer userLock.Unlock()

	d, err := s.current(ctx, userID)
	if err != nil {
		return err
	}

	if err := send(d); err != nil {
		// Row intentionally kept; the user may retry the confirm.
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear confirmed draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Cancel(ctx context.Context, userID string) error {
	userLock := s.users.lock(userID)
	defer userLock.Unlock()

	if _, err := s.current(ctx, userID); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("cancel draft: %w", err)
	}
	return nil
}

// DeleteExpired removes drafts past their expiry. Called by the janitor.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_actions WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired drafts: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) current(ctx context.Context, userID string) (Draft, error) {
	query := `
	SELECT subject, body, recipient_email, staged_at, expires_at
	FROM pending_actions WHERE user_id = ?`

	var (
		d         Draft
		stagedAt  int64
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&d.Subject, &d.Body, &d.RecipientEmail, &stagedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNoPendingAction
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}

	d.StagedAt = time.Unix(stagedAt, 0)
	d.ExpiresAt = time.Unix(expiresAt, 0)

	if !s.now().Before(d.ExpiresAt) {
		return Draft{}, ErrNoPendingAction
	}
	return d, nil
}
