package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

type VisitsRepo struct {
	db *pgxpool.Pool
}

func NewVisitsRepo(db *pgxpool.Pool) *VisitsRepo {
	return &VisitsRepo{db: db}
}

type linkHits struct {
	n    int64
	last time.Time
}

// RecordVisits logs the batch and bumps each link's counter once with
// click_count = click_count + n, all in one transaction. Replayed event ids
// and deleted links are skipped.
func (r *VisitsRepo) RecordVisits(ctx context.Context, visits []shortener.Visit) error {
	if len(visits) == 0 {
		return nil
	}
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.Begin(dbctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(context.Background())

	hits := make(map[int64]*linkHits)
	for _, v := range visits {
		eventID := v.EventID
		if eventID == "" {
			eventID = uuid.NewString()
		}
		var linkID int64
		err := tx.QueryRow(dbctx, `
INSERT INTO click_events (event_id, link_id, clicked_at, ip, user_agent, referer)
SELECT $1::uuid, $2::bigint, $3::timestamptz, $4::text, $5::text, $6::text
WHERE EXISTS (SELECT 1 FROM links WHERE id=$2)
ON CONFLICT (event_id) DO NOTHING
RETURNING link_id`,
			eventID, v.LinkID, v.At.UTC(), clip(v.IP, 64), clip(v.UserAgent, 512), clip(v.Referer, 2048),
		).Scan(&linkID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			slog.Error("click insert failed", "err", err, "link_id", v.LinkID)
			return classify(err)
		}
		h := hits[linkID]
		if h == nil {
			h = &linkHits{}
			hits[linkID] = h
		}
		h.n++
		if v.At.After(h.last) {
			h.last = v.At.UTC()
		}
	}

	for id, h := range hits {
		if _, err := tx.Exec(dbctx, `
UPDATE links SET click_count = click_count + $2,
  last_accessed_at = GREATEST(COALESCE(last_accessed_at, $3), $3)
WHERE id=$1`, id, h.n, h.last); err != nil {
			slog.Error("click count update failed", "err", err, "link_id", id)
			return classify(err)
		}
	}

	if err := tx.Commit(dbctx); err != nil {
		return classify(err)
	}
	slog.Debug("clicks recorded", "events", len(visits), "links", len(hits))
	return nil
}

func (r *VisitsRepo) ListVisits(ctx context.Context, linkID int64, limit int, beforeID int64) ([]shortener.VisitRecord, error) {
	dbctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if beforeID == 0 {
		rows, err = r.db.Query(dbctx, `SELECT id, link_id, clicked_at, ip, user_agent, referer FROM click_events WHERE link_id=$1 ORDER BY id DESC LIMIT $2`, linkID, limit)
	} else {
		rows, err = r.db.Query(dbctx, `SELECT id, link_id, clicked_at, ip, user_agent, referer FROM click_events WHERE link_id=$1 AND id<$2 ORDER BY id DESC LIMIT $3`, linkID, beforeID, limit)
	}
	if err != nil {
		slog.Error("list visits failed", "err", err)
		return nil, classify(err)
	}
	defer rows.Close()

	var out []shortener.VisitRecord
	for rows.Next() {
		var v shortener.VisitRecord
		if err := rows.Scan(&v.ID, &v.LinkID, &v.ClickedAt, &v.IP, &v.UserAgent, &v.Referer); err != nil {
			return nil, classify(err)
		}
		out = append(out, v)
	}
	return out, classify(rows.Err())
}
