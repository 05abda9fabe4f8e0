package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DomainAuthority owns the set of hostnames links may be created under.
type DomainAuthority struct {
	store DomainStore
	inv   Invalidator
	now   Clock
}

type DomainOption func(*DomainAuthority)

func WithDomainInvalidator(inv Invalidator) DomainOption {
	return func(a *DomainAuthority) { a.inv = inv }
}

func WithDomainClock(now Clock) DomainOption {
	return func(a *DomainAuthority) { a.now = now }
}

func NewDomainAuthority(store DomainStore, opts ...DomainOption) *DomainAuthority {
	a := &DomainAuthority{store: store, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register adds an active domain. A host already present yields ErrConflict.
func (a *DomainAuthority) Register(ctx context.Context, host string) (*Domain, error) {
	host = NormalizeHost(host)
	if err := ValidateHost(host); err != nil {
		return nil, err
	}
	d := &Domain{Host: host, IsActive: true, CreatedAt: a.now().UTC()}
	if err := a.store.InsertDomain(ctx, d); err != nil {
		if errors.Is(err, ErrUniqueViolation) {
			return nil, fmt.Errorf("domain %q: %w", host, ErrConflict)
		}
		return nil, err
	}
	slog.Info("domain registered", "host", host, "id", d.ID)
	return d, nil
}

// Lookup finds a domain by host regardless of its active flag.
func (a *DomainAuthority) Lookup(ctx context.Context, host string) (*Domain, error) {
	host = NormalizeHost(host)
	if host == "" {
		return nil, ErrNotFound
	}
	return withReadRetry(ctx, func() (*Domain, error) { return a.store.FindDomain(ctx, host) })
}

func (a *DomainAuthority) Get(ctx context.Context, id int64) (*Domain, error) {
	return a.store.GetDomain(ctx, id)
}

func (a *DomainAuthority) List(ctx context.Context) ([]Domain, error) {
	return a.store.ListDomains(ctx)
}

// SetActive toggles a domain. Existing links keep their own state; cached
// records for the host are evicted either way.
func (a *DomainAuthority) SetActive(ctx context.Context, id int64, active bool) (*Domain, error) {
	d, err := a.store.SetDomainActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	if a.inv != nil {
		a.inv.InvalidateDomain(ctx, d.Host)
	}
	return d, nil
}

func (a *DomainAuthority) Deactivate(ctx context.Context, id int64) (*Domain, error) {
	return a.SetActive(ctx, id, false)
}

// Delete removes the domain together with all of its links. It returns false
// when no such domain exists.
func (a *DomainAuthority) Delete(ctx context.Context, id int64) (bool, error) {
	d, err := a.store.DeleteDomain(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if a.inv != nil {
		a.inv.InvalidateDomain(ctx, d.Host)
	}
	slog.Info("domain deleted", "host", d.Host, "id", d.ID)
	return true, nil
}

// CountLinks returns how many links live on the domain; 0 for unknown ids.
func (a *DomainAuthority) CountLinks(ctx context.Context, id int64) (int, error) {
	d, err := a.store.GetDomain(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.store.CountLinksByHost(ctx, d.Host)
}

// withReadRetry runs a read once more when the first attempt failed with
// ErrTransientStore and ctx is still alive.
func withReadRetry[T any](ctx context.Context, read func() (T, error)) (T, error) {
	v, err := read()
	if err != nil && errors.Is(err, ErrTransientStore) && ctx.Err() == nil {
		return read()
	}
	return v, err
}
