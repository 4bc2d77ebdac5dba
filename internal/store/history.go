package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/botrelay/internal/domain"
)

// History is a history.Provider backed by SQLite.
type History struct {
	db *DB
}

// NewHistory creates a history provider using the given database.
func NewHistory(db *DB) *History {
	return &History{db: db}
}

// Load returns the thread's messages in insertion order.
func (h *History) Load(ctx context.Context, threadID string) ([]domain.ChatMessage, error) {
	rows, err := h.db.sql.QueryContext(ctx,
		`SELECT role, message, timestamp, metadata, citations, content
		 FROM messages WHERE thread_id = ? ORDER BY id`, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	msgs := []domain.ChatMessage{}
	for rows.Next() {
		var (
			msg                          domain.ChatMessage
			ts                           string
			metadata, citations, content sql.NullString
		)
		if err := rows.Scan(&msg.Role, &msg.Message, &ts, &metadata, &citations, &content); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				h.db.log.Warn().Err(err).Str("thread", threadID).Msg("bad message metadata")
			}
		}
		if citations.Valid {
			if err := json.Unmarshal([]byte(citations.String), &msg.Citations); err != nil {
				h.db.log.Warn().Err(err).Str("thread", threadID).Msg("bad message citations")
			}
		}
		if content.Valid {
			if err := json.Unmarshal([]byte(content.String), &msg.Content); err != nil {
				h.db.log.Warn().Err(err).Str("thread", threadID).Msg("bad message content")
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Append records messages at the end of the thread.
func (h *History) Append(ctx context.Context, threadID string, msgs ...domain.ChatMessage) error {
	return h.db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
			threadID, now, now,
		); err != nil {
			return fmt.Errorf("upserting thread: %w", err)
		}

		for _, m := range msgs {
			ts := m.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			metadata, err := nullJSON(m.Metadata, len(m.Metadata) > 0)
			if err != nil {
				return err
			}
			citations, err := nullJSON(m.Citations, len(m.Citations) > 0)
			if err != nil {
				return err
			}
			content, err := nullJSON(m.Content, m.Content != nil)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO messages (thread_id, role, message, timestamp, metadata, citations, content)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				threadID, m.Role, m.Message, ts.UTC().Format(time.RFC3339Nano), metadata, citations, content,
			); err != nil {
				return fmt.Errorf("inserting message: %w", err)
			}
		}
		return nil
	})
}

// Threads lists stored threads, most recently updated first.
func (h *History) Threads(ctx context.Context) ([]domain.Thread, error) {
	rows, err := h.db.sql.QueryContext(ctx,
		`SELECT t.id, t.created_at, t.updated_at, COUNT(m.id)
		 FROM threads t LEFT JOIN messages m ON m.thread_id = t.id
		 GROUP BY t.id ORDER BY t.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var out []domain.Thread
	for rows.Next() {
		var th domain.Thread
		var created, updated string
		if err := rows.Scan(&th.ID, &created, &updated, &th.MessageCount); err != nil {
			return nil, err
		}
		th.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		th.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, th)
	}
	return out, rows.Err()
}

func nullJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding message field: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
