package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"huddle/internal/types"
)

// apiKeyColumns is the standard column set for API key queries. secret_hash
// is included for verification but stripped before any key leaves the service
// layer.
const apiKeyColumns = `id, name, prefix, secret_hash, created_by, created_at,
	last_used_at, revoked_at`

// APIKeyRepository provides data access for the api_keys table. Keys are
// looked up by their stored prefix; only the bcrypt hash of the secret is
// persisted.
type APIKeyRepository struct {
	db DBTX
}

// NewAPIKeyRepository creates an APIKeyRepository backed by the given
// database connection (pool or transaction).
func NewAPIKeyRepository(db DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key record. SecretHash MUST be the bcrypt hash of
// the plaintext secret; the plaintext never reaches this method.
func (r *APIKeyRepository) Create(ctx context.Context, key *types.APIKey) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, prefix, secret_hash, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID,
		key.Name,
		key.Prefix,
		key.SecretHash,
		key.CreatedBy,
		key.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create API key", err)
	}
	return nil
}

// GetByPrefix retrieves an API key by its stored lookup prefix. Returns
// ErrCodeNotFoundAPIKey when no key carries the prefix; revocation state is
// left for the caller to interpret.
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, prefix string) (*types.APIKey, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE prefix = $1`,
		prefix,
	)

	key, err := scanAPIKeyRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAPIKey, "API key not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve API key", err)
	}
	return key, nil
}

// List returns all API keys, newest first. Revoked keys are included so the
// admin surface can show the full history.
func (r *APIKeyRepository) List(ctx context.Context) ([]types.APIKey, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query API keys", err)
	}
	defer rows.Close()

	var results []types.APIKey
	for rows.Next() {
		key, scanErr := scanAPIKeyRow(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan API key row", scanErr)
		}
		results = append(results, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating API key rows", err)
	}
	return results, nil
}

// TouchLastUsed updates the last_used_at timestamp for an API key. Callers
// treat failures as cosmetic; the verification that preceded the touch stands.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update API key last_used_at", err)
	}
	return nil
}

// Revoke performs a soft revocation by setting revoked_at. Returns
// ErrCodeNotFoundAPIKey when the key does not exist or was already revoked.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to revoke API key", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAPIKey, "API key not found or already revoked", nil)
	}
	return nil
}

// scanAPIKeyRow scans an API key from a pgx.Row or pgx.Rows. Column order
// must match apiKeyColumns.
func scanAPIKeyRow(row pgx.Row) (*types.APIKey, error) {
	var key types.APIKey
	err := row.Scan(
		&key.ID,
		&key.Name,
		&key.Prefix,
		&key.SecretHash,
		&key.CreatedBy,
		&key.CreatedAt,
		&key.LastUsedAt,
		&key.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
