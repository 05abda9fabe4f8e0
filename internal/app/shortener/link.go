package shortener

import (
	"net/http"
	"time"
)

// Column limits shared by validation and both SQL schemas.
const (
	MaxSlugLen        = 50
	MaxDestinationLen = 2048
	MaxHostLen        = 255
	MaxTitleLen       = 100
	MaxNotesLen       = 500
)

type RedirectType int

const (
	RedirectPermanent RedirectType = http.StatusMovedPermanently
	RedirectTemporary RedirectType = http.StatusFound
)

func (t RedirectType) Valid() bool {
	return t == RedirectPermanent || t == RedirectTemporary
}

// Domain is a hostname permitted to own links.
type Domain struct {
	ID        int64
	Host      string
	IsActive  bool
	CreatedAt time.Time
}

// Link maps (Domain, Slug) to a destination. Version increments on every
// administrative update and backs optimistic concurrency.
type Link struct {
	ID             int64
	Slug           string
	DestinationURL string
	Domain         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      *time.Time
	IsActive       bool
	RedirectType   RedirectType
	Title          *string
	Notes          *string
	ClickCount     int64
	LastAccessedAt *time.Time
	Version        int64
}

// Resolvable reports whether the link may redirect at now. Expiry is
// exclusive: a link whose ExpiresAt equals now is already expired.
func (l *Link) Resolvable(now time.Time) bool {
	if !l.IsActive {
		return false
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return false
	}
	return true
}

// Draft is the input of Registry.Create. An empty Slug asks for a generated
// one; a nil IsActive means active.
type Draft struct {
	Slug           string
	DestinationURL string
	Domain         string
	Title          *string
	Notes          *string
	ExpiresAt      *time.Time
	IsActive       *bool
	RedirectType   RedirectType
}

// Patch lists the administrative changes to a link; nil leaves a field as is.
// ExpectedVersion, when non-zero, must equal the stored version.
type Patch struct {
	DestinationURL  *string
	Title           *string
	Notes           *string
	IsActive        *bool
	RedirectType    *RedirectType
	ExpiresAt       *time.Time
	ClearExpiry     bool
	ExpectedVersion int64
}

type ListFilter struct {
	Domain string
	Limit  int
	Offset int
}

// Visit is one successful resolution, handed to the Tracker.
type Visit struct {
	EventID   string
	LinkID    int64
	Domain    string
	Slug      string
	At        time.Time
	IP        string
	UserAgent string
	Referer   string
}

// VisitRecord is a stored visit as listed by the stats endpoint.
type VisitRecord struct {
	ID        int64
	LinkID    int64
	ClickedAt time.Time
	IP        string
	UserAgent string
	Referer   string
}
