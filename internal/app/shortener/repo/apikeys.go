package repo

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
)

// APIKeysRepo stores the single instance key; the slot column pins the table
// to one row.
type APIKeysRepo struct {
	db *pgxpool.Pool
}

func NewAPIKeysRepo(db *pgxpool.Pool) *APIKeysRepo {
	return &APIKeysRepo{db: db}
}

const apiKeyColumns = `id, name, key_hash, key_prefix, created_by, created_at, last_used_at`

func scanAPIKey(row pgx.Row) (*account.APIKey, error) {
	var k account.APIKey
	if err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedBy, &k.CreatedAt, &k.LastUsedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *APIKeysRepo) ReplaceAPIKey(ctx context.Context, k *account.APIKey) error {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	err := r.db.QueryRow(dbctx, `
INSERT INTO api_keys (slot, name, key_hash, key_prefix, created_by, created_at)
VALUES (1,$1,$2,$3,$4,$5)
ON CONFLICT (slot) DO UPDATE SET
  name=EXCLUDED.name, key_hash=EXCLUDED.key_hash, key_prefix=EXCLUDED.key_prefix,
  created_by=EXCLUDED.created_by, created_at=EXCLUDED.created_at, last_used_at=NULL
RETURNING id`, k.Name, k.KeyHash, k.KeyPrefix, k.CreatedBy, k.CreatedAt).Scan(&k.ID)
	if err != nil {
		slog.Error("replace api key failed", "err", err)
	}
	return classify(err)
}

func (r *APIKeysRepo) CurrentAPIKey(ctx context.Context) (*account.APIKey, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	k, err := scanAPIKey(r.db.QueryRow(dbctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE slot=1`))
	return k, classify(err)
}

func (r *APIKeysRepo) FindAPIKeyByHash(ctx context.Context, hash string) (*account.APIKey, error) {
	dbctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	k, err := scanAPIKey(r.db.QueryRow(dbctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=$1`, hash))
	return k, classify(err)
}

func (r *APIKeysRepo) TouchAPIKey(ctx context.Context, id int64, at time.Time) error {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.Exec(dbctx, `UPDATE api_keys SET last_used_at=$2 WHERE id=$1`, id, at)
	return classify(err)
}
