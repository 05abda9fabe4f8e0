package repo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

const linkColumns = `id, slug, destination_url, domain, created_at, updated_at, expires_at,
is_active, redirect_type, title, notes, click_count, last_accessed_at, version`

type LinksRepo struct {
	db *pgxpool.Pool
}

func NewLinksRepo(db *pgxpool.Pool) *LinksRepo {
	return &LinksRepo{db: db}
}

func scanLink(row pgx.Row) (*shortener.Link, error) {
	var (
		l  shortener.Link
		rt int16
	)
	if err := row.Scan(&l.ID, &l.Slug, &l.DestinationURL, &l.Domain, &l.CreatedAt, &l.UpdatedAt, &l.ExpiresAt,
		&l.IsActive, &rt, &l.Title, &l.Notes, &l.ClickCount, &l.LastAccessedAt, &l.Version); err != nil {
		return nil, err
	}
	l.RedirectType = shortener.RedirectType(rt)
	return &l, nil
}

func (r *LinksRepo) InsertLink(ctx context.Context, l *shortener.Link) error {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	// FOR SHARE holds the domain row until the insert commits, so DeleteDomain
	// (FOR UPDATE) and SetDomainActive either wait for this link or make the
	// SELECT come back empty.
	err := r.db.QueryRow(dbctx, `
INSERT INTO links (slug, destination_url, domain, created_at, updated_at, expires_at, is_active, redirect_type, title, notes)
SELECT $1::varchar, $2::varchar, d.host, $4::timestamptz, $5::timestamptz, $6::timestamptz, $7::boolean, $8::smallint, $9::varchar, $10::varchar
FROM domains d
WHERE d.host = $3 AND d.is_active
FOR SHARE OF d
RETURNING id, version`,
		l.Slug, l.DestinationURL, l.Domain, l.CreatedAt, l.UpdatedAt, l.ExpiresAt, l.IsActive, int16(l.RedirectType), l.Title, l.Notes,
	).Scan(&l.ID, &l.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return shortener.ErrDomainUnavailable
	}
	if err != nil {
		err = classify(err)
		if !errors.Is(err, shortener.ErrUniqueViolation) {
			slog.Error("insert link failed", "err", err, "domain", l.Domain)
		}
		return err
	}
	return nil
}

func (r *LinksRepo) GetLink(ctx context.Context, id int64) (*shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	l, err := scanLink(r.db.QueryRow(dbctx, `SELECT `+linkColumns+` FROM links WHERE id=$1`, id))
	return l, classify(err)
}

func (r *LinksRepo) FindLink(ctx context.Context, domain, slug string) (*shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	l, err := scanLink(r.db.QueryRow(dbctx, `SELECT `+linkColumns+` FROM links WHERE domain=$1 AND slug=$2`, domain, slug))
	return l, classify(err)
}

func (r *LinksRepo) SlugExists(ctx context.Context, domain, slug string) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var exists bool
	err := r.db.QueryRow(dbctx, `SELECT EXISTS(SELECT 1 FROM links WHERE domain=$1 AND slug=$2)`, domain, slug).Scan(&exists)
	return exists, classify(err)
}

func (r *LinksRepo) ListLinks(ctx context.Context, f shortener.ListFilter) ([]shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	rows, err := r.db.Query(dbctx, `
SELECT `+linkColumns+` FROM links
WHERE ($1 = '' OR domain = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, f.Domain, f.Limit, f.Offset)
	if err != nil {
		slog.Error("list links failed", "err", err)
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]shortener.Link, 0, f.Limit)
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *l)
	}
	return out, classify(rows.Err())
}

func (r *LinksRepo) UpdateLink(ctx context.Context, l *shortener.Link, expectedVersion int64) error {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	err := r.db.QueryRow(dbctx, `
UPDATE links SET destination_url=$3, updated_at=$4, expires_at=$5, is_active=$6,
  redirect_type=$7, title=$8, notes=$9, version = version + 1
WHERE id=$1 AND version=$2
RETURNING version, click_count, last_accessed_at`,
		l.ID, expectedVersion, l.DestinationURL, l.UpdatedAt, l.ExpiresAt, l.IsActive, int16(l.RedirectType), l.Title, l.Notes,
	).Scan(&l.Version, &l.ClickCount, &l.LastAccessedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		slog.Error("update link failed", "err", err, "id", l.ID)
		return classify(err)
	}

	// No row matched: either gone or someone else bumped the version.
	var exists bool
	if err := r.db.QueryRow(dbctx, `SELECT EXISTS(SELECT 1 FROM links WHERE id=$1)`, l.ID).Scan(&exists); err != nil {
		return classify(err)
	}
	if exists {
		return shortener.ErrConcurrencyConflict
	}
	return shortener.ErrNotFound
}

func (r *LinksRepo) DeleteLink(ctx context.Context, id int64) (*shortener.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	l, err := scanLink(r.db.QueryRow(dbctx, `DELETE FROM links WHERE id=$1 RETURNING `+linkColumns, id))
	return l, classify(err)
}

// EachSlug streams every (domain, slug) pair, for warming the slug filter.
func (r *LinksRepo) EachSlug(ctx context.Context, fn func(domain, slug string)) error {
	rows, err := r.db.Query(ctx, `SELECT domain, slug FROM links`)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	var domain, slug string
	_, err = pgx.ForEachRow(rows, []any{&domain, &slug}, func() error {
		fn(domain, slug)
		return nil
	})
	return classify(err)
}
