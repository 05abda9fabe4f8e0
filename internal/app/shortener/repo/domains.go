package repo

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

type DomainsRepo struct {
	db *pgxpool.Pool
}

func NewDomainsRepo(db *pgxpool.Pool) *DomainsRepo {
	return &DomainsRepo{db: db}
}

func scanDomain(row pgx.Row) (*shortener.Domain, error) {
	var d shortener.Domain
	if err := row.Scan(&d.ID, &d.Host, &d.IsActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DomainsRepo) InsertDomain(ctx context.Context, d *shortener.Domain) error {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	err := r.db.QueryRow(dbctx, `INSERT INTO domains (host, is_active, created_at) VALUES ($1,$2,$3) RETURNING id`,
		d.Host, d.IsActive, d.CreatedAt).Scan(&d.ID)
	return classify(err)
}

func (r *DomainsRepo) GetDomain(ctx context.Context, id int64) (*shortener.Domain, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	d, err := scanDomain(r.db.QueryRow(dbctx, `SELECT id, host, is_active, created_at FROM domains WHERE id=$1`, id))
	return d, classify(err)
}

func (r *DomainsRepo) FindDomain(ctx context.Context, host string) (*shortener.Domain, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	d, err := scanDomain(r.db.QueryRow(dbctx, `SELECT id, host, is_active, created_at FROM domains WHERE host=$1`, host))
	return d, classify(err)
}

func (r *DomainsRepo) ListDomains(ctx context.Context) ([]shortener.Domain, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	rows, err := r.db.Query(dbctx, `SELECT id, host, is_active, created_at FROM domains ORDER BY host`)
	if err != nil {
		slog.Error("list domains failed", "err", err)
		return nil, classify(err)
	}
	defer rows.Close()

	var out []shortener.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *d)
	}
	return out, classify(rows.Err())
}

func (r *DomainsRepo) SetDomainActive(ctx context.Context, id int64, active bool) (*shortener.Domain, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	d, err := scanDomain(r.db.QueryRow(dbctx,
		`UPDATE domains SET is_active=$2 WHERE id=$1 RETURNING id, host, is_active, created_at`, id, active))
	return d, classify(err)
}

// DeleteDomain removes the domain and its links; click events follow the
// links through ON DELETE CASCADE.
func (r *DomainsRepo) DeleteDomain(ctx context.Context, id int64) (*shortener.Domain, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := r.db.Begin(dbctx)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback(context.Background())

	d, err := scanDomain(tx.QueryRow(dbctx,
		`SELECT id, host, is_active, created_at FROM domains WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, classify(err)
	}
	tag, err := tx.Exec(dbctx, `DELETE FROM links WHERE domain=$1`, d.Host)
	if err != nil {
		slog.Error("delete domain links failed", "err", err, "host", d.Host)
		return nil, classify(err)
	}
	if _, err := tx.Exec(dbctx, `DELETE FROM domains WHERE id=$1`, id); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(dbctx); err != nil {
		return nil, classify(err)
	}
	slog.Debug("domain links removed", "host", d.Host, "links", tag.RowsAffected())
	return d, nil
}

func (r *DomainsRepo) CountLinksByHost(ctx context.Context, host string) (int, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var n int
	err := r.db.QueryRow(dbctx, `SELECT COUNT(*) FROM links WHERE domain=$1`, host).Scan(&n)
	return n, classify(err)
}
