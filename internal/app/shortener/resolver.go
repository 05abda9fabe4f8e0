package shortener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const DefaultResolveTimeout = 2 * time.Second

// Request is one inbound short-link hit.
type Request struct {
	Host      string
	Slug      string
	IP        string
	UserAgent string
	Referer   string
}

// Decision is a successful resolution.
type Decision struct {
	LinkID         int64
	DestinationURL string
	RedirectType   RedirectType
}

func (d Decision) Permanent() bool {
	return d.RedirectType == RedirectPermanent
}

// StatusCode is the HTTP status to redirect with.
func (d Decision) StatusCode() int {
	return int(d.RedirectType)
}

// DomainLookup is what the resolver needs from DomainAuthority.
type DomainLookup interface {
	Lookup(ctx context.Context, host string) (*Domain, error)
}

// Resolver turns (host, slug) into a redirect decision.
//
// Outcomes: a Decision, ErrBadInput for an empty slug, ErrNotFound for a
// missing, inactive or expired link, or a wrapped lookup error.
type Resolver struct {
	links         LinkLookup
	tracker       Tracker
	timeout       time.Duration
	domains       DomainLookup
	requireDomain bool
	now           Clock
}

type ResolverOption func(*Resolver)

func WithResolveTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithActiveDomainCheck makes links on inactive or removed domains resolve
// as not found.
func WithActiveDomainCheck(domains DomainLookup) ResolverOption {
	return func(r *Resolver) {
		r.domains = domains
		r.requireDomain = domains != nil
	}
}

func WithResolverClock(now Clock) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a resolver; a nil tracker disables click counting.
func NewResolver(links LinkLookup, tracker Tracker, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		links:   links,
		tracker: tracker,
		timeout: DefaultResolveTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (Decision, error) {
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		return Decision{}, ErrBadInput
	}
	host := NormalizeHost(req.Host)

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	link, err := withReadRetry(lookupCtx, func() (*Link, error) { return r.links.FindLink(lookupCtx, host, slug) })
	if errors.Is(err, ErrNotFound) {
		return Decision{}, ErrNotFound
	}
	if err != nil {
		return Decision{}, fmt.Errorf("resolve %s/%s: %w", host, slug, err)
	}

	now := r.now()
	if !link.Resolvable(now) {
		return Decision{}, ErrNotFound
	}

	if r.requireDomain {
		dom, err := r.domains.Lookup(lookupCtx, host)
		if errors.Is(err, ErrNotFound) {
			return Decision{}, ErrNotFound
		}
		if err != nil {
			return Decision{}, fmt.Errorf("resolve domain %s: %w", host, err)
		}
		if !dom.IsActive {
			return Decision{}, ErrNotFound
		}
	}

	if r.tracker != nil {
		r.tracker.Track(Visit{
			LinkID:    link.ID,
			Domain:    host,
			Slug:      slug,
			At:        now.UTC(),
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Referer:   req.Referer,
		})
	}

	return Decision{
		LinkID:         link.ID,
		DestinationURL: link.DestinationURL,
		RedirectType:   link.RedirectType,
	}, nil
}
