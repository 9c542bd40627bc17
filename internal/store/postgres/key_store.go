package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// KeyStore persists API key records. Keys are never deleted; revocation
// clears the active flag so usage history survives. Implements
// scrape.KeyStore.
type KeyStore struct {
	pool querier
}

// NewKeyStore constructs a KeyStore from an existing pool.
func NewKeyStore(pool querier) (*KeyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &KeyStore{pool: pool}, nil
}

const keyColumns = `id, prefix, hash, principal_id, name, active, rate_limit, usage_count, created_at`

// CreateKey inserts a new API key record.
func (s *KeyStore) CreateKey(ctx context.Context, key scrape.APIKey) error {
	query := `
INSERT INTO api_keys (` + keyColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := s.pool.Exec(ctx, query,
		key.ID, key.Prefix, key.Hash, key.PrincipalID, key.Name,
		key.Active, key.RateLimit, key.UsageCount, key.CreatedAt,
	); err != nil {
		return fmt.Errorf("create api key %s: %w", key.ID, err)
	}
	return nil
}

// GetByHash looks up a key by its credential hash.
func (s *KeyStore) GetByHash(ctx context.Context, hash string) (scrape.APIKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE hash = $1`, hash)
	key, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.APIKey{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.APIKey{}, fmt.Errorf("get api key by hash: %w", err)
	}
	return key, nil
}

// ListByPrincipal returns the principal's keys newest-first.
func (s *KeyStore) ListByPrincipal(ctx context.Context, principalID string) ([]scrape.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE principal_id = $1 ORDER BY created_at DESC`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys for %s: %w", principalID, err)
	}
	defer rows.Close()

	var keys []scrape.APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys for %s: %w", principalID, err)
	}
	return keys, nil
}

// Deactivate revokes the key if it belongs to the principal.
func (s *KeyStore) Deactivate(ctx context.Context, id, principalID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET active = false WHERE id = $1 AND principal_id = $2`,
		id, principalID,
	)
	if err != nil {
		return fmt.Errorf("deactivate api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.ErrNotFound
	}
	return nil
}

// IncrementUsage bumps the key's usage counter.
func (s *KeyStore) IncrementUsage(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1 WHERE id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("increment usage for api key %s: %w", id, err)
	}
	return nil
}

func scanKey(row pgx.Row) (scrape.APIKey, error) {
	var key scrape.APIKey
	if err := row.Scan(
		&key.ID, &key.Prefix, &key.Hash, &key.PrincipalID, &key.Name,
		&key.Active, &key.RateLimit, &key.UsageCount, &key.CreatedAt,
	); err != nil {
		return scrape.APIKey{}, err
	}
	return key, nil
}
