package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenonwellz/autoplybot/internal/textutil"
)

// PostgresStore persists the message log in the shared Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the messages table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages (user_id, created_at DESC);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create messages schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, userID, role, content string) error {
	query := `INSERT INTO messages (user_id, role, content) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, userID, role, textutil.StripMarkdown(content)); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) ([]Message, error) {
	query := `
	SELECT role, content, created_at
	FROM messages
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, Limit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var recent []Message
	for rows.Next() {
		m := Message{UserID: userID}
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		recent = append(recent, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Query returns newest first; callers expect oldest first.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	return recent, nil
}
