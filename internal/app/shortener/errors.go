package shortener

import (
	"errors"
	"fmt"
)

// Outcomes shared by the registry, the resolver and the store adapters.
// Match with errors.Is; ValidationError with errors.As.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrAllocationExhausted = errors.New("slug allocation exhausted")
	ErrConcurrencyConflict = errors.New("modified concurrently")
	ErrBadInput            = errors.New("bad input")

	// ErrUniqueViolation is returned by stores when an insert hits a unique
	// constraint. Adapters derive it from driver error codes.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrDomainUnavailable is returned by LinkStore.InsertLink when no active
	// domain row exists for the link's host at write time.
	ErrDomainUnavailable = errors.New("domain missing or inactive")

	// ErrTransientStore wraps timeouts and connection failures that are worth
	// one retry.
	ErrTransientStore = errors.New("store temporarily unavailable")
)

// Reason is the machine-readable cause of a ValidationError.
type Reason string

const (
	ReasonInvalidURL          Reason = "invalid_url"
	ReasonSchemeNotAllowed    Reason = "scheme_not_allowed"
	ReasonDomainRequired      Reason = "domain_required"
	ReasonDomainUnauthorized  Reason = "domain_unauthorized"
	ReasonDomainInactive      Reason = "domain_inactive"
	ReasonInvalidSlug         Reason = "invalid_slug"
	ReasonInvalidRedirectType Reason = "invalid_redirect_type"
	ReasonFieldTooLong        Reason = "field_too_long"
	ReasonInvalidDomain       Reason = "invalid_domain"
)

type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(reason Reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
