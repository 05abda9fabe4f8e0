package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

const linkColumns = `id, slug, destination_url, domain, created_at, updated_at, expires_at,
is_active, redirect_type, title, notes, click_count, last_accessed_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*shortener.Link, error) {
	var (
		l  shortener.Link
		rt int
	)
	if err := row.Scan(&l.ID, &l.Slug, &l.DestinationURL, &l.Domain, &l.CreatedAt, &l.UpdatedAt, &l.ExpiresAt,
		&l.IsActive, &rt, &l.Title, &l.Notes, &l.ClickCount, &l.LastAccessedAt, &l.Version); err != nil {
		return nil, err
	}
	l.RedirectType = shortener.RedirectType(rt)
	return &l, nil
}

func (s *Store) InsertLink(ctx context.Context, l *shortener.Link) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	// the domain check rides in the INSERT itself; SQLite serializes writers
	err := s.db.QueryRowContext(ctx, `
INSERT INTO links (slug, destination_url, domain, created_at, updated_at, expires_at, is_active, redirect_type, title, notes)
SELECT ?,?,?,?,?,?,?,?,?,?
WHERE EXISTS (SELECT 1 FROM domains WHERE host = ? AND is_active = 1)
RETURNING id, version`,
		l.Slug, l.DestinationURL, l.Domain, l.CreatedAt.UTC(), l.UpdatedAt.UTC(), utc(l.ExpiresAt), l.IsActive, int(l.RedirectType), l.Title, l.Notes,
		l.Domain,
	).Scan(&l.ID, &l.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return shortener.ErrDomainUnavailable
	}
	return classify(err)
}

func (s *Store) GetLink(ctx context.Context, id int64) (*shortener.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	l, err := scanLink(s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id=?`, id))
	return l, classify(err)
}

func (s *Store) FindLink(ctx context.Context, domain, slug string) (*shortener.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	l, err := scanLink(s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE domain=? AND slug=?`, domain, slug))
	return l, classify(err)
}

func (s *Store) SlugExists(ctx context.Context, domain, slug string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE domain=? AND slug=?)`, domain, slug).Scan(&exists)
	return exists, classify(err)
}

func (s *Store) ListLinks(ctx context.Context, f shortener.ListFilter) ([]shortener.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+linkColumns+` FROM links
WHERE (? = '' OR domain = ?)
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`, f.Domain, f.Domain, limit, f.Offset)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []shortener.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *l)
	}
	return out, classify(rows.Err())
}

func (s *Store) UpdateLink(ctx context.Context, l *shortener.Link, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := s.db.QueryRowContext(ctx, `
UPDATE links SET destination_url=?, updated_at=?, expires_at=?, is_active=?,
  redirect_type=?, title=?, notes=?, version = version + 1
WHERE id=? AND version=?
RETURNING version, click_count, last_accessed_at`,
		l.DestinationURL, l.UpdatedAt.UTC(), utc(l.ExpiresAt), l.IsActive, int(l.RedirectType), l.Title, l.Notes, l.ID, expectedVersion,
	).Scan(&l.Version, &l.ClickCount, &l.LastAccessedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return classify(err)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE id=?)`, l.ID).Scan(&exists); err != nil {
		return classify(err)
	}
	if exists {
		return shortener.ErrConcurrencyConflict
	}
	return shortener.ErrNotFound
}

func (s *Store) DeleteLink(ctx context.Context, id int64) (*shortener.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	l, err := scanLink(s.db.QueryRowContext(ctx, `DELETE FROM links WHERE id=? RETURNING `+linkColumns, id))
	return l, classify(err)
}

// EachSlug streams every (domain, slug) pair, for warming the slug filter.
func (s *Store) EachSlug(ctx context.Context, fn func(domain, slug string)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, slug FROM links`)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()
	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return classify(err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return classify(err)
	}
	// fn runs after the cursor is closed so it may use the store.
	rows.Close()
	for _, p := range pairs {
		fn(p[0], p[1])
	}
	return nil
}
