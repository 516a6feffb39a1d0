package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"moodpad/internal/document"
	"moodpad/internal/storage"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// modeOf returns the mode prefix of a storage key ("happy-editor-content" -> "happy").
func modeOf(key string) string {
	mode, _, ok := strings.Cut(key, "-")
	if !ok {
		return ""
	}
	return mode
}

// Get implements storage.Slot.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key=$1`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", key, err)
	}
	return body, nil
}

// Set implements storage.Slot. The value must be a serialized document.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	doc, err := document.Parse(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (key, mode, body, body_text, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE
		SET body=EXCLUDED.body, body_text=EXCLUDED.body_text, updated_at=NOW()
	`, key, modeOf(key), string(value), doc.Text())
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, key string) (Document, error) {
	var item Document
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT key, mode, body, body_text, updated_at
		FROM documents
		WHERE key=$1
	`, key).Scan(&item.Key, &item.Mode, &body, &item.Text, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, storage.ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", key, err)
	}
	item.Body = body
	return item, nil
}

// ListDocuments returns documents newest first, optionally limited to one mode.
func (s *PostgresStore) ListDocuments(ctx context.Context, mode string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, mode, body_text, updated_at
		FROM documents
		WHERE $1 = '' OR mode = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.Key, &item.Mode, &item.Text, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key=$1`, key); err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) RevokeRoomToken(ctx context.Context, tokenID, room string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_room_tokens (token_id, room, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO NOTHING
	`, tokenID, room, exp)
	if err != nil {
		return fmt.Errorf("revoke room token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsRoomTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_room_tokens WHERE token_id=$1 AND expires_at > NOW())
	`, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check room token: %w", err)
	}
	return revoked, nil
}
