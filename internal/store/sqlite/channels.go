package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spetr/mcp-knowledge/pkg/types"
)

// UpsertChannel inserts a channel or updates the existing row with the same
// external channel id. An empty name is treated as absent: on conflict the
// existing name is kept (COALESCE semantics).
func (s *Store) UpsertChannel(ctx context.Context, channelID, kind, name string) (int64, error) {
	var nameArg any
	if name != "" {
		nameArg = name
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO channels (channel_id, kind, name, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(channel_id) DO UPDATE SET
			name = COALESCE(excluded.name, name),
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, channelID, kind, nameArg).Scan(&id)
	if err != nil {
		return 0, wrapErr("upsert channel", err)
	}
	return id, nil
}

// GetChannel returns the channel with the given row id, or nil if absent.
func (s *Store) GetChannel(ctx context.Context, id int64) (*types.Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, kind, name, created_at, updated_at
		FROM channels WHERE id = ?
	`, id)
	return scanChannel(row)
}

// GetChannelByChannelID returns the channel with the given external id, or
// nil if absent.
func (s *Store) GetChannelByChannelID(ctx context.Context, channelID string) (*types.Channel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, kind, name, created_at, updated_at
		FROM channels WHERE channel_id = ?
	`, channelID)
	return scanChannel(row)
}

// ListChannelsByKind returns all channels with the given kind tag.
func (s *Store) ListChannelsByKind(ctx context.Context, kind string) ([]*types.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, kind, name, created_at, updated_at
		FROM channels WHERE kind = ?
	`, kind)
	if err != nil {
		return nil, wrapErr("list channels", err)
	}
	defer rows.Close()

	var channels []*types.Channel
	for rows.Next() {
		var c types.Channel
		var name sql.NullString
		if err := rows.Scan(&c.ID, &c.ChannelID, &c.Kind, &name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, wrapErr("list channels", err)
		}
		c.Name = name.String
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		channels = append(channels, &c)
	}
	return channels, rows.Err()
}

func scanChannel(row *sql.Row) (*types.Channel, error) {
	var c types.Channel
	var name sql.NullString
	err := row.Scan(&c.ID, &c.ChannelID, &c.Kind, &name, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get channel", err)
	}
	c.Name = name.String
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}
