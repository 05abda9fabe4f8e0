package sqlstore

import (
	"context"
	"database/sql"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

func scanDomain(row rowScanner) (*shortener.Domain, error) {
	var d shortener.Domain
	if err := row.Scan(&d.ID, &d.Host, &d.IsActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) InsertDomain(ctx context.Context, d *shortener.Domain) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := s.db.QueryRowContext(ctx, `INSERT INTO domains (host, is_active, created_at) VALUES (?,?,?) RETURNING id`,
		d.Host, d.IsActive, d.CreatedAt.UTC()).Scan(&d.ID)
	return classify(err)
}

func (s *Store) GetDomain(ctx context.Context, id int64) (*shortener.Domain, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	d, err := scanDomain(s.db.QueryRowContext(ctx, `SELECT id, host, is_active, created_at FROM domains WHERE id=?`, id))
	return d, classify(err)
}

func (s *Store) FindDomain(ctx context.Context, host string) (*shortener.Domain, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	d, err := scanDomain(s.db.QueryRowContext(ctx, `SELECT id, host, is_active, created_at FROM domains WHERE host=?`, host))
	return d, classify(err)
}

func (s *Store) ListDomains(ctx context.Context) ([]shortener.Domain, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT id, host, is_active, created_at FROM domains ORDER BY host`)
	if err != nil {
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

func (s *Store) SetDomainActive(ctx context.Context, id int64, active bool) (*shortener.Domain, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	d, err := scanDomain(s.db.QueryRowContext(ctx,
		`UPDATE domains SET is_active=? WHERE id=? RETURNING id, host, is_active, created_at`, active, id))
	return d, classify(err)
}

func (s *Store) DeleteDomain(ctx context.Context, id int64) (*shortener.Domain, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var d *shortener.Domain
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		d, err = scanDomain(tx.QueryRowContext(ctx, `SELECT id, host, is_active, created_at FROM domains WHERE id=?`, id))
		if err != nil {
			return classify(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE domain=?`, d.Host); err != nil {
			return classify(err)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM domains WHERE id=?`, id)
		return classify(err)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) CountLinksByHost(ctx context.Context, host string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE domain=?`, host).Scan(&n)
	return n, classify(err)
}
