package shortener

import (
	"context"
	"time"
)

// LinkStore is the authoritative link table. Implementations must return
// ErrUniqueViolation for a duplicate (domain, slug), ErrNotFound for missing
// rows and wrap connection failures in ErrTransientStore.
type LinkStore interface {
	// InsertLink stores l and fills ID and Version. The domain check and the
	// write are one atomic step: when l.Domain has no active domain row the
	// link is not written and ErrDomainUnavailable is returned.
	InsertLink(ctx context.Context, l *Link) error
	GetLink(ctx context.Context, id int64) (*Link, error)
	FindLink(ctx context.Context, domain, slug string) (*Link, error)
	SlugExists(ctx context.Context, domain, slug string) (bool, error)
	ListLinks(ctx context.Context, f ListFilter) ([]Link, error)
	// UpdateLink writes the mutable fields of l when the stored version equals
	// expectedVersion, and sets l.Version to the new one. A version mismatch
	// yields ErrConcurrencyConflict.
	UpdateLink(ctx context.Context, l *Link, expectedVersion int64) error
	// DeleteLink removes the link and returns it.
	DeleteLink(ctx context.Context, id int64) (*Link, error)
}

// DomainStore is the authoritative domain table.
type DomainStore interface {
	InsertDomain(ctx context.Context, d *Domain) error
	GetDomain(ctx context.Context, id int64) (*Domain, error)
	FindDomain(ctx context.Context, host string) (*Domain, error)
	ListDomains(ctx context.Context) ([]Domain, error)
	SetDomainActive(ctx context.Context, id int64, active bool) (*Domain, error)
	// DeleteDomain removes the domain and every link on its host in one
	// transaction, returning the deleted domain.
	DeleteDomain(ctx context.Context, id int64) (*Domain, error)
	CountLinksByHost(ctx context.Context, host string) (int, error)
}

// VisitStore persists click tracking.
type VisitStore interface {
	// RecordVisits appends visits to the log and raises each link's
	// clickCount by its number of newly recorded visits with a single
	// statement per link. Visits whose EventID was already recorded, or whose
	// link no longer exists, are skipped.
	RecordVisits(ctx context.Context, visits []Visit) error
	// ListVisits pages backwards from beforeID (0 = newest).
	ListVisits(ctx context.Context, linkID int64, limit int, beforeID int64) ([]VisitRecord, error)
}

// LinkLookup is the read path of the resolver; the store itself or a cache
// in front of it.
type LinkLookup interface {
	FindLink(ctx context.Context, domain, slug string) (*Link, error)
}

// Invalidator drops cached resolution records after writes.
type Invalidator interface {
	InvalidateLink(ctx context.Context, domain, slug string)
	InvalidateDomain(ctx context.Context, host string)
}

// SlugFilter screens generated slugs before they hit the store. MightExist
// may return false positives, never false negatives for added keys.
type SlugFilter interface {
	MightExist(domain, slug string) bool
	Add(domain, slug string)
}

// Tracker records a visit without blocking the redirect.
type Tracker interface {
	Track(v Visit)
}

// Clock is injected for tests.
type Clock func() time.Time
