package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/spetr/mcp-knowledge/pkg/types"
)

// InsertMessage appends a message. Messages are immutable: there is no upsert
// path. A nonexistent channel or account id fails with a constraint violation.
func (s *Store) InsertMessage(ctx context.Context, channelID, accountID int64, role, content string, replyToID *int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (channel_id, account_id, role, content, reply_to_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, channelID, accountID, role, content, replyToID).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert message", err)
	}
	return id, nil
}

// InsertMessageTx is InsertMessage inside a caller-owned transaction, used by
// the knowledge base to pair the row with its vector write.
func (s *Store) InsertMessageTx(tx *sql.Tx, channelID, accountID int64, role, content string, replyToID *int64) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		INSERT INTO messages (channel_id, account_id, role, content, reply_to_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, channelID, accountID, role, content, replyToID).Scan(&id)
	if err != nil {
		return 0, wrapErr("insert message", err)
	}
	return id, nil
}

// GetMessage returns the message with the given id, or nil if absent.
func (s *Store) GetMessage(ctx context.Context, id int64) (*types.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, account_id, role, content, reply_to_id, created_at
		FROM messages WHERE id = ?
	`, id)

	m, err := scanMessageRow(row)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListRecentMessages returns up to limit messages in the channel, newest
// first.
func (s *Store) ListRecentMessages(ctx context.Context, channelID int64, limit int) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, account_id, role, content, reply_to_id, created_at
		FROM messages
		WHERE channel_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, wrapErr("list recent messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListMessagesBetween returns messages exchanged between two accounts since
// the given time, oldest first: messages authored by a, plus replies to a
// authored by b.
func (s *Store) ListMessagesBetween(ctx context.Context, a, b int64, since time.Time, limit int) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.channel_id, m.account_id, m.role, m.content, m.reply_to_id, m.created_at
		FROM messages m
		WHERE (m.account_id = ?
			OR (m.account_id = ? AND m.reply_to_id IN (
				SELECT id FROM messages WHERE account_id = ?)))
			AND m.created_at > ?
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ?
	`, a, b, a, formatTime(since), limit)
	if err != nil {
		return nil, wrapErr("list messages between", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*types.Message, error) {
	var messages []*types.Message
	for rows.Next() {
		var m types.Message
		var replyTo sql.NullInt64
		err := rows.Scan(&m.ID, &m.ChannelID, &m.AccountID, &m.Role, &m.Content, &replyTo, &m.CreatedAt)
		if err != nil {
			return nil, wrapErr("scan message", err)
		}
		if replyTo.Valid {
			m.ReplyToID = &replyTo.Int64
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func scanMessageRow(row *sql.Row) (*types.Message, error) {
	var m types.Message
	var replyTo sql.NullInt64
	err := row.Scan(&m.ID, &m.ChannelID, &m.AccountID, &m.Role, &m.Content, &replyTo, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get message", err)
	}
	if replyTo.Valid {
		m.ReplyToID = &replyTo.Int64
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}
