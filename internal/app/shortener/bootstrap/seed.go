// Package bootstrap seeds a fresh instance: the default domain and the first
// admin user.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
)

type Options struct {
	Domain        string
	AdminEmail    string
	AdminPassword string // empty: generated and logged once
}

// Seed is idempotent: existing domains and users are left untouched.
func Seed(ctx context.Context, domains *shortener.DomainAuthority, accounts *account.Service, opts Options) error {
	if opts.Domain != "" {
		d, err := domains.Register(ctx, opts.Domain)
		switch {
		case err == nil:
			slog.Info("seeded domain", "host", d.Host)
		case errors.Is(err, shortener.ErrConflict):
			slog.Debug("seed domain exists", "host", opts.Domain)
		default:
			return fmt.Errorf("seed domain %q: %w", opts.Domain, err)
		}
	}

	if opts.AdminEmail != "" {
		created, err := accounts.EnsureAdmin(ctx, opts.AdminEmail, opts.AdminPassword)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			slog.Info("seeded admin user", "email", opts.AdminEmail)
		}
	}
	return nil
}
