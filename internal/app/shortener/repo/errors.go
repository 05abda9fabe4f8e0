// Package repo is the PostgreSQL adapter of the shortener stores.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

const (
	pgUniqueViolation = "23505"

	queryTimeout = time.Second
	txTimeout    = 3 * time.Second
)

// classify maps driver errors onto the shortener sentinels by SQLSTATE and
// error type, never by message text.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shortener.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, shortener.ErrUniqueViolation)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", shortener.ErrTransientStore, err)
	}
	return err
}

// clip truncates s to the width of its column.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
