package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/cache"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/repo"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/repo/sqlstore"
	"github.com/emanueledeamicis/OpenShort/internal/platform/config"
	"github.com/emanueledeamicis/OpenShort/internal/platform/db"
	"github.com/emanueledeamicis/OpenShort/internal/platform/migrate"
	"github.com/emanueledeamicis/OpenShort/migrations"
)

// backend is the storage the rest of the server is wired to, whichever
// driver backs it.
type backend struct {
	links   shortener.LinkStore
	domains shortener.DomainStore
	visits  shortener.VisitStore
	users   account.UserStore
	keys    account.KeyStore
	slugs   cache.SlugSource

	ping  func(ctx context.Context) error
	close func()
}

func openBackend(cfg config.Config) (*backend, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return openSQLite(cfg)
	default:
		return openPostgres(cfg)
	}
}

func openPostgres(cfg config.Config) (*backend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pool, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	slog.Info("数据库连接成功", "driver", "postgres")

	if cfg.MigrateOnStart {
		opts := migrate.Options{FS: migrations.FS}
		if cfg.MigrationsDir != "" {
			opts = migrate.Options{Dir: cfg.MigrationsDir}
		}
		mctx, mcancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer mcancel()
		res, err := migrate.Up(mctx, pool, opts)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("migrations applied", "source", res.Source, "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
	}

	links := repo.NewLinksRepo(pool)
	users := repo.NewUsersRepo(pool)
	return &backend{
		links:   links,
		domains: repo.NewDomainsRepo(pool),
		visits:  repo.NewVisitsRepo(pool),
		users:   users,
		keys:    repo.NewAPIKeysRepo(pool),
		slugs:   links,
		ping:    pool.Ping,
		close:   pool.Close,
	}, nil
}

func openSQLite(cfg config.Config) (*backend, error) {
	store, err := sqlstore.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	slog.Info("数据库连接成功", "driver", "sqlite", "path", cfg.SQLitePath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return &backend{
		links:   store,
		domains: store,
		visits:  store,
		users:   store,
		keys:    store,
		slugs:   store,
		ping:    store.Ping,
		close: func() {
			if err := store.Close(); err != nil {
				slog.Error("sqlite close failed", "err", err)
			}
		},
	}, nil
}
