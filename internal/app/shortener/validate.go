package shortener

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// blockedSchemes can execute in the browser that follows the redirect.
var blockedSchemes = map[string]struct{}{
	"javascript": {},
	"vbscript":   {},
	"data":       {},
}

// ValidateDestination accepts any absolute URI except script-capable schemes.
// http and https additionally need a host.
func ValidateDestination(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid(ReasonInvalidURL, "destination url is required")
	}
	if len(raw) > MaxDestinationLen {
		return invalid(ReasonFieldTooLong, "destination url exceeds %d characters", MaxDestinationLen)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid(ReasonInvalidURL, "destination url is malformed")
	}
	scheme := strings.ToLower(u.Scheme)
	if _, blocked := blockedSchemes[scheme]; blocked {
		return invalid(ReasonSchemeNotAllowed, "scheme %q is not allowed", scheme)
	}
	if !u.IsAbs() {
		return invalid(ReasonInvalidURL, "destination url must be absolute")
	}
	if (scheme == "http" || scheme == "https") && u.Hostname() == "" {
		return invalid(ReasonInvalidURL, "destination url has no host")
	}
	return nil
}

var slugRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedSlugs collide with routes served on the redirect host.
var reservedSlugs = map[string]struct{}{
	"api":     {},
	"healthz": {},
}

// ValidateSlug checks a caller-chosen slug.
func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > MaxSlugLen || !slugRe.MatchString(slug) {
		return invalid(ReasonInvalidSlug, "slug must be 1-%d characters of letters, digits, '-' or '_'", MaxSlugLen)
	}
	if _, ok := reservedSlugs[strings.ToLower(slug)]; ok {
		return invalid(ReasonInvalidSlug, "slug %q is reserved", slug)
	}
	return nil
}

// NormalizeHost lowercases and trims a hostname so registration, link
// creation and request matching compare the same form.
func NormalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// ValidateHost checks an already normalized host.
func ValidateHost(host string) error {
	if host == "" {
		return invalid(ReasonDomainRequired, "domain is required")
	}
	if len(host) > MaxHostLen {
		return invalid(ReasonFieldTooLong, "domain exceeds %d characters", MaxHostLen)
	}
	if strings.ContainsAny(host, " \t/\\?#@") {
		return invalid(ReasonInvalidDomain, "domain %q is not a hostname", host)
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return invalid(ReasonInvalidDomain, "domain %q must not carry a port", host)
	}
	return nil
}

func checkLen(field string, v *string, max int) error {
	if v != nil && utf8.RuneCountInString(*v) > max {
		return invalid(ReasonFieldTooLong, "%s exceeds %d characters", field, max)
	}
	return nil
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
