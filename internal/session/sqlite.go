package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS conversation_messages (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		channel_id TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		timestamp  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_messages_channel
		ON conversation_messages(channel_id, timestamp, seq);
`

// SQLiteBackend is a document-style store with one row per message.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Upsert inserts doc, or updates the row with the same ID. An empty ID is
// assigned a new UUID; a zero timestamp is set to now.
func (b *SQLiteBackend) Upsert(ctx context.Context, doc MessageDocument) (MessageDocument, error) {
	if !doc.Role.Valid() {
		return MessageDocument{}, fmt.Errorf("%w: %q", ErrInvalidRole, doc.Role)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now()
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, channel_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			role       = excluded.role,
			content    = excluded.content,
			timestamp  = excluded.timestamp`,
		doc.ID, doc.ChannelID, string(doc.Role), doc.Content, doc.Timestamp.UnixNano())
	if err != nil {
		return MessageDocument{}, fmt.Errorf("upsert message: %w", err)
	}
	return doc, nil
}

// FindByChannel returns the channel's messages ordered by timestamp, with
// insertion order breaking ties.
func (b *SQLiteBackend) FindByChannel(ctx context.Context, channelID string) ([]MessageDocument, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, channel_id, role, content, timestamp
		FROM conversation_messages
		WHERE channel_id = ?
		ORDER BY timestamp, seq`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query channel %s: %w", channelID, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (b *SQLiteBackend) DeleteByChannel(ctx context.Context, channelID string) error {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

func (b *SQLiteBackend) CountByChannel(ctx context.Context, channelID string) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_messages WHERE channel_id = ?`, channelID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count channel %s: %w", channelID, err)
	}
	return n, nil
}

// LoadAll groups every stored message by channel.
func (b *SQLiteBackend) LoadAll(ctx context.Context) (map[string]schema.Messages, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, channel_id, role, content, timestamp
		FROM conversation_messages
		ORDER BY channel_id, timestamp, seq`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]schema.Messages)
	for _, d := range docs {
		out[d.ChannelID] = append(out[d.ChannelID], schema.Message{
			Role:      d.Role,
			Content:   d.Content,
			Timestamp: d.Timestamp,
		})
	}
	return out, nil
}

// SaveAll replaces the table contents with data in one transaction.
func (b *SQLiteBackend) SaveAll(ctx context.Context, data map[string]schema.Messages) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversation_messages (id, channel_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for channelID, msgs := range data {
		// Untimestamped messages inherit their predecessor's stamp so the
		// (timestamp, seq) ordering still reproduces slice order.
		var last int64
		for _, m := range msgs {
			if !m.Timestamp.IsZero() {
				last = m.Timestamp.UnixNano()
			}
			if _, err := stmt.ExecContext(ctx,
				uuid.NewString(), channelID, string(m.Role), m.Content, last); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}
	}
	return tx.Commit()
}

func scanDocuments(rows *sql.Rows) ([]MessageDocument, error) {
	var docs []MessageDocument
	for rows.Next() {
		var (
			d    MessageDocument
			role string
			ts   int64
		)
		if err := rows.Scan(&d.ID, &d.ChannelID, &role, &d.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		r, err := schema.ParseRole(role)
		if err != nil {
			return nil, err
		}
		d.Role = r
		if ts != 0 {
			d.Timestamp = time.Unix(0, ts)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
