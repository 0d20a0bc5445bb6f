package storage

import (
	"context"

	"github.com/vetdesk/vetdesk/libs/db"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyRepository verifies back-office API keys for clinic staff endpoints
// (complete, no-show). Keys are stored bcrypt-hashed; raw keys never land in
// the database.
type APIKeyRepository struct {
	pool *db.Pool
}

func NewAPIKeyRepository(pool *db.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

func (r *APIKeyRepository) Verify(ctx context.Context, rawKey string) (bool, error) {
	if rawKey == "" {
		return false, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT key_hash
		FROM admin_api_keys
		WHERE revoked_at IS NULL
	`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return false, err
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawKey)) == nil {
			return true, nil
		}
	}
	return false, rows.Err()
}

// HashKey is used by provisioning tooling when inserting a new key.
func HashKey(rawKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
