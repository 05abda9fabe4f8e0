package sqlstore

import (
	"context"
	"time"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
)

func scanUser(row rowScanner) (*account.User, error) {
	var u account.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *account.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := s.db.QueryRowContext(ctx, `INSERT INTO users (email, password_hash, role, created_at) VALUES (?,?,?,?) RETURNING id`,
		u.Email, u.PasswordHash, u.Role, u.CreatedAt.UTC()).Scan(&u.ID)
	return classify(err)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*account.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE id=?`, id))
	return u, classify(err)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*account.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE email=?`, email))
	return u, classify(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]account.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, password_hash, role, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []account.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *u)
	}
	return out, classify(rows.Err())
}

func (s *Store) DeleteUser(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, hash, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shortener.ErrNotFound
	}
	return nil
}

const apiKeyColumns = `id, name, key_hash, key_prefix, created_by, created_at, last_used_at`

func scanAPIKey(row rowScanner) (*account.APIKey, error) {
	var k account.APIKey
	if err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedBy, &k.CreatedAt, &k.LastUsedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) ReplaceAPIKey(ctx context.Context, k *account.APIKey) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := s.db.QueryRowContext(ctx, `
INSERT INTO api_keys (slot, name, key_hash, key_prefix, created_by, created_at)
VALUES (1,?,?,?,?,?)
ON CONFLICT (slot) DO UPDATE SET
  name=excluded.name, key_hash=excluded.key_hash, key_prefix=excluded.key_prefix,
  created_by=excluded.created_by, created_at=excluded.created_at, last_used_at=NULL
RETURNING id`, k.Name, k.KeyHash, k.KeyPrefix, k.CreatedBy, k.CreatedAt.UTC()).Scan(&k.ID)
	return classify(err)
}

func (s *Store) CurrentAPIKey(ctx context.Context) (*account.APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	k, err := scanAPIKey(s.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE slot=1`))
	return k, classify(err)
}

func (s *Store) FindAPIKeyByHash(ctx context.Context, hash string) (*account.APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	k, err := scanAPIKey(s.db.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash=?`, hash))
	return k, classify(err)
}

func (s *Store) TouchAPIKey(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at=? WHERE id=?`, at.UTC(), id)
	return classify(err)
}
