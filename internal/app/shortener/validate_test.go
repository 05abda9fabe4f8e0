package shortener

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	ve, ok := IsValidation(err)
	require.True(t, ok, "want ValidationError, got %v", err)
	return ve.Reason
}

func TestValidateDestination(t *testing.T) {
	ok := []string{
		"https://example.com/page",
		"http://example.com",
		"  https://example.com/padded  ",
		"mailto:someone@example.com",
		"ftp://files.example.com/a.txt",
	}
	for _, raw := range ok {
		assert.NoError(t, ValidateDestination(raw), raw)
	}

	cases := []struct {
		raw    string
		reason Reason
	}{
		{"", ReasonInvalidURL},
		{"   ", ReasonInvalidURL},
		{"example.com/page", ReasonInvalidURL},
		{"/relative", ReasonInvalidURL},
		{"https://", ReasonInvalidURL},
		{"javascript:alert(1)", ReasonSchemeNotAllowed},
		{"JavaScript:alert(1)", ReasonSchemeNotAllowed},
		{"JAVASCRIPT:alert(1)", ReasonSchemeNotAllowed},
		{"jAvAsCrIpT:alert(1)", ReasonSchemeNotAllowed},
		{"vbscript:msgbox(1)", ReasonSchemeNotAllowed},
		{"VBScript:msgbox(1)", ReasonSchemeNotAllowed},
		{"data:text/html,<script>alert(1)</script>", ReasonSchemeNotAllowed},
		{"DATA:text/html;base64,PHNjcmlwdD4=", ReasonSchemeNotAllowed},
		{"https://example.com/" + strings.Repeat("a", MaxDestinationLen), ReasonFieldTooLong},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.reason, reasonOf(t, ValidateDestination(tc.raw)), tc.raw)
	}
}

func TestValidateSlug(t *testing.T) {
	for _, s := range []string{"a", "promo-2024", "Under_score", strings.Repeat("x", MaxSlugLen)} {
		assert.NoError(t, ValidateSlug(s), s)
	}
	for _, s := range []string{"", "has space", "slash/y", "dot.ted", "ünï", strings.Repeat("x", MaxSlugLen+1), "api", "API", "healthz"} {
		assert.Equal(t, ReasonInvalidSlug, reasonOf(t, ValidateSlug(s)), s)
	}
}

func TestNormalizeAndValidateHost(t *testing.T) {
	assert.Equal(t, "short.ly", NormalizeHost("  Short.LY. "))

	assert.NoError(t, ValidateHost("short.ly"))
	assert.NoError(t, ValidateHost("localhost"))
	assert.NoError(t, ValidateHost("::1"))

	assert.Equal(t, ReasonDomainRequired, reasonOf(t, ValidateHost("")))
	assert.Equal(t, ReasonInvalidDomain, reasonOf(t, ValidateHost("short.ly:8080")))
	assert.Equal(t, ReasonInvalidDomain, reasonOf(t, ValidateHost("short.ly/path")))
	assert.Equal(t, ReasonFieldTooLong, reasonOf(t, ValidateHost(strings.Repeat("a", MaxHostLen+1))))
}
