package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spetr/mcp-knowledge/pkg/types"
)

// UpsertAccount inserts an account or, if the name already exists, touches
// updated_at. Either way the row id is returned: repeat senders are the
// steady state, not an error.
func (s *Store) UpsertAccount(ctx context.Context, name, source, sourceID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (name, source, source_id, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, name, source, sourceID).Scan(&id)
	if err != nil {
		return 0, wrapErr("upsert account", err)
	}
	return id, nil
}

// GetAccount returns the account with the given id, or nil if absent.
func (s *Store) GetAccount(ctx context.Context, id int64) (*types.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, source_id, created_at, updated_at
		FROM accounts WHERE id = ?
	`, id)
	return scanAccount(row)
}

// GetAccountBySource returns the account registered for (source, sourceID),
// or nil if absent.
func (s *Store) GetAccountBySource(ctx context.Context, source, sourceID string) (*types.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, source_id, created_at, updated_at
		FROM accounts WHERE source = ? AND source_id = ?
	`, source, sourceID)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*types.Account, error) {
	var a types.Account
	err := row.Scan(&a.ID, &a.Name, &a.Source, &a.SourceID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get account", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
