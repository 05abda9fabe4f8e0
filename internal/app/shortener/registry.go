package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Registry is the administrative side of links: create, update, delete, read.
//
// Slug uniqueness per domain rests on the store's unique constraint. Generated
// slugs are retried up to maxRetries times on ErrUniqueViolation; caller-chosen
// slugs are never retried.
type Registry struct {
	store      LinkStore
	domains    *DomainAuthority
	alloc      Allocator
	maxRetries int
	filter     SlugFilter
	inv        Invalidator
	now        Clock
}

type RegistryOption func(*Registry)

func WithMaxRetries(n int) RegistryOption {
	return func(r *Registry) { r.maxRetries = n }
}

func WithSlugFilter(f SlugFilter) RegistryOption {
	return func(r *Registry) { r.filter = f }
}

func WithInvalidator(inv Invalidator) RegistryOption {
	return func(r *Registry) { r.inv = inv }
}

func WithClock(now Clock) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(store LinkStore, domains *DomainAuthority, alloc Allocator, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:      store,
		domains:    domains,
		alloc:      alloc,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxRetries < 1 {
		r.maxRetries = 1
	}
	return r
}

// Create validates d and stores a new link.
//
// Errors: *ValidationError, ErrConflict for a taken custom slug,
// ErrAllocationExhausted when every generated slug collided, or a store error.
func (r *Registry) Create(ctx context.Context, d Draft) (*Link, error) {
	if err := ValidateDestination(d.DestinationURL); err != nil {
		return nil, err
	}
	host := NormalizeHost(d.Domain)
	if host == "" {
		return nil, invalid(ReasonDomainRequired, "domain is required")
	}
	dom, err := r.domains.Lookup(ctx, host)
	if errors.Is(err, ErrNotFound) {
		return nil, invalid(ReasonDomainUnauthorized, "domain %q is not authorized", host)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup domain: %w", err)
	}
	if !dom.IsActive {
		return nil, invalid(ReasonDomainInactive, "domain %q is not active", host)
	}

	redirect := d.RedirectType
	if redirect == 0 {
		redirect = RedirectPermanent
	}
	if !redirect.Valid() {
		return nil, invalid(ReasonInvalidRedirectType, "redirect type must be 301 or 302")
	}
	if err := checkLen("title", d.Title, MaxTitleLen); err != nil {
		return nil, err
	}
	if err := checkLen("notes", d.Notes, MaxNotesLen); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	link := &Link{
		DestinationURL: trimmed(d.DestinationURL),
		Domain:         host,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      utcPtr(d.ExpiresAt),
		IsActive:       true,
		RedirectType:   redirect,
		Title:          emptyToNil(d.Title),
		Notes:          emptyToNil(d.Notes),
	}
	if d.IsActive != nil {
		link.IsActive = *d.IsActive
	}

	if d.Slug != "" {
		err = r.createWithSlug(ctx, link, d.Slug)
	} else {
		err = r.createWithGeneratedSlug(ctx, link)
	}
	if err != nil {
		return nil, err
	}

	if r.filter != nil {
		r.filter.Add(link.Domain, link.Slug)
	}
	// 覆盖可能存在的负缓存
	if r.inv != nil {
		r.inv.InvalidateLink(ctx, link.Domain, link.Slug)
	}
	return link, nil
}

func (r *Registry) createWithSlug(ctx context.Context, link *Link, slug string) error {
	if err := ValidateSlug(slug); err != nil {
		return err
	}
	exists, err := withReadRetry(ctx, func() (bool, error) { return r.store.SlugExists(ctx, link.Domain, slug) })
	if err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	if exists {
		return fmt.Errorf("slug %q on %s: %w", slug, link.Domain, ErrConflict)
	}
	link.Slug = slug
	if err := r.store.InsertLink(ctx, link); err != nil {
		if errors.Is(err, ErrUniqueViolation) {
			return fmt.Errorf("slug %q on %s: %w", slug, link.Domain, ErrConflict)
		}
		if errors.Is(err, ErrDomainUnavailable) {
			return r.domainRejected(ctx, link.Domain)
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// domainRejected explains an insert that found no active domain row: the
// domain was deleted or deactivated after Create looked it up.
func (r *Registry) domainRejected(ctx context.Context, host string) error {
	slog.Info("domain changed during link create", "domain", host)
	dom, err := r.domains.Lookup(ctx, host)
	if err == nil && !dom.IsActive {
		return invalid(ReasonDomainInactive, "domain %q is not active", host)
	}
	return invalid(ReasonDomainUnauthorized, "domain %q is not authorized", host)
}

// createWithGeneratedSlug makes exactly maxRetries draws. A draw the filter
// reports as possibly taken counts as a collision without touching the store.
func (r *Registry) createWithGeneratedSlug(ctx context.Context, link *Link) error {
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		slug, err := r.alloc.Generate()
		if err != nil {
			return fmt.Errorf("generate slug: %w", err)
		}
		if r.filter != nil && r.filter.MightExist(link.Domain, slug) {
			metrics.SlugCollisions.Inc()
			slog.Debug("generated slug screened by filter", "domain", link.Domain, "attempt", attempt)
			continue
		}
		link.Slug = slug
		err = r.store.InsertLink(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDomainUnavailable) {
			link.Slug = ""
			return r.domainRejected(ctx, link.Domain)
		}
		if !errors.Is(err, ErrUniqueViolation) {
			return fmt.Errorf("insert link: %w", err)
		}
		metrics.SlugCollisions.Inc()
		slog.Warn("generated slug collided", "domain", link.Domain, "attempt", attempt)
	}
	link.Slug = ""
	metrics.SlugExhausted.Inc()
	slog.Error("slug allocation exhausted", "domain", link.Domain, "attempts", r.maxRetries)
	return fmt.Errorf("after %d attempts on %s: %w", r.maxRetries, link.Domain, ErrAllocationExhausted)
}

// Update applies p to the link with optimistic concurrency. The slug and
// domain of a link never change.
func (r *Registry) Update(ctx context.Context, id int64, p Patch) (*Link, error) {
	cur, err := withReadRetry(ctx, func() (*Link, error) { return r.store.GetLink(ctx, id) })
	if err != nil {
		return nil, err
	}
	expected := cur.Version
	if p.ExpectedVersion != 0 {
		if p.ExpectedVersion != cur.Version {
			return nil, fmt.Errorf("link %d at version %d, caller had %d: %w", id, cur.Version, p.ExpectedVersion, ErrConcurrencyConflict)
		}
		expected = p.ExpectedVersion
	}

	next := *cur
	if p.DestinationURL != nil {
		if err := ValidateDestination(*p.DestinationURL); err != nil {
			return nil, err
		}
		next.DestinationURL = trimmed(*p.DestinationURL)
	}
	if p.Title != nil {
		if err := checkLen("title", p.Title, MaxTitleLen); err != nil {
			return nil, err
		}
		next.Title = emptyToNil(p.Title)
	}
	if p.Notes != nil {
		if err := checkLen("notes", p.Notes, MaxNotesLen); err != nil {
			return nil, err
		}
		next.Notes = emptyToNil(p.Notes)
	}
	if p.IsActive != nil {
		next.IsActive = *p.IsActive
	}
	if p.RedirectType != nil {
		if !p.RedirectType.Valid() {
			return nil, invalid(ReasonInvalidRedirectType, "redirect type must be 301 or 302")
		}
		next.RedirectType = *p.RedirectType
	}
	switch {
	case p.ClearExpiry:
		next.ExpiresAt = nil
	case p.ExpiresAt != nil:
		next.ExpiresAt = utcPtr(p.ExpiresAt)
	}
	next.UpdatedAt = r.now().UTC()

	if err := r.store.UpdateLink(ctx, &next, expected); err != nil {
		return nil, err
	}
	if r.inv != nil {
		r.inv.InvalidateLink(ctx, next.Domain, next.Slug)
	}
	return &next, nil
}

// Delete hard-deletes a link; false when it did not exist.
func (r *Registry) Delete(ctx context.Context, id int64) (bool, error) {
	l, err := r.store.DeleteLink(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if r.inv != nil {
		r.inv.InvalidateLink(ctx, l.Domain, l.Slug)
	}
	return true, nil
}

func (r *Registry) GetByID(ctx context.Context, id int64) (*Link, error) {
	return withReadRetry(ctx, func() (*Link, error) { return r.store.GetLink(ctx, id) })
}

func (r *Registry) GetBySlug(ctx context.Context, domain, slug string) (*Link, error) {
	domain = NormalizeHost(domain)
	return withReadRetry(ctx, func() (*Link, error) { return r.store.FindLink(ctx, domain, slug) })
}

// List returns links newest first.
func (r *Registry) List(ctx context.Context, f ListFilter) ([]Link, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Domain = NormalizeHost(f.Domain)
	return withReadRetry(ctx, func() ([]Link, error) { return r.store.ListLinks(ctx, f) })
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
