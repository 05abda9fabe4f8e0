package repo

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
)

type UsersRepo struct {
	db *pgxpool.Pool
}

func NewUsersRepo(db *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{db: db}
}

func scanUser(row pgx.Row) (*account.User, error) {
	var u account.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepo) InsertUser(ctx context.Context, u *account.User) error {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	err := r.db.QueryRow(dbctx, `INSERT INTO users (email, password_hash, role, created_at) VALUES ($1,$2,$3,$4) RETURNING id`,
		u.Email, u.PasswordHash, u.Role, u.CreatedAt).Scan(&u.ID)
	return classify(err)
}

func (r *UsersRepo) GetUser(ctx context.Context, id int64) (*account.User, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	u, err := scanUser(r.db.QueryRow(dbctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE id=$1`, id))
	return u, classify(err)
}

func (r *UsersRepo) FindUserByEmail(ctx context.Context, email string) (*account.User, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	u, err := scanUser(r.db.QueryRow(dbctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE email=$1 LIMIT 1`, email))
	return u, classify(err)
}

func (r *UsersRepo) ListUsers(ctx context.Context) ([]account.User, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	rows, err := r.db.Query(dbctx, `SELECT id, email, password_hash, role, created_at FROM users ORDER BY id`)
	if err != nil {
		slog.Error("list users failed", "err", err)
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

func (r *UsersRepo) DeleteUser(ctx context.Context, id int64) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	tag, err := r.db.Exec(dbctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UsersRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	tag, err := r.db.Exec(dbctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, id, hash)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}
	return nil
}
