package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

type linkHits struct {
	n    int64
	last time.Time
}

// RecordVisits mirrors the PostgreSQL adapter: one transaction, replayed
// event ids and unknown links skipped, one counter statement per link.
func (s *Store) RecordVisits(ctx context.Context, visits []shortener.Visit) error {
	if len(visits) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		hits := make(map[int64]*linkHits)
		for _, v := range visits {
			eventID := v.EventID
			if eventID == "" {
				eventID = uuid.NewString()
			}
			var linkID int64
			err := tx.QueryRowContext(ctx, `
INSERT INTO click_events (event_id, link_id, clicked_at, ip, user_agent, referer)
SELECT ?, id, ?, ?, ?, ? FROM links WHERE id=?
ON CONFLICT (event_id) DO NOTHING
RETURNING link_id`,
				eventID, v.At.UTC(), v.IP, v.UserAgent, v.Referer, v.LinkID,
			).Scan(&linkID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return classify(err)
			}
			h := hits[linkID]
			if h == nil {
				h = &linkHits{}
				hits[linkID] = h
			}
			h.n++
			if at := v.At.UTC(); at.After(h.last) {
				h.last = at
			}
		}
		for id, h := range hits {
			if _, err := tx.ExecContext(ctx, `
UPDATE links SET click_count = click_count + ?,
  last_accessed_at = CASE WHEN last_accessed_at IS NULL OR last_accessed_at < ? THEN ? ELSE last_accessed_at END
WHERE id=?`, h.n, h.last, h.last, id); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

func (s *Store) ListVisits(ctx context.Context, linkID int64, limit int, beforeID int64) ([]shortener.VisitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if beforeID == 0 {
		rows, err = s.db.QueryContext(ctx, `SELECT id, link_id, clicked_at, ip, user_agent, referer FROM click_events WHERE link_id=? ORDER BY id DESC LIMIT ?`, linkID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, link_id, clicked_at, ip, user_agent, referer FROM click_events WHERE link_id=? AND id<? ORDER BY id DESC LIMIT ?`, linkID, beforeID, limit)
	}
	if err != nil {
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
