package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256_SignVerify(t *testing.T) {
	ts, err := NewHS256Service("secret", "openshort", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := ts.Sign("42", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	c, err := ts.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.UserID != "42" || c.Role != RoleAdmin {
		t.Fatalf("claims = %+v", c)
	}
}

func TestHS256_RejectsForeignTokens(t *testing.T) {
	ts, _ := NewHS256Service("secret", "openshort", time.Hour)
	other, _ := NewHS256Service("other-secret", "openshort", time.Hour)
	wrongIss, _ := NewHS256Service("secret", "someone-else", time.Hour)

	for name, signer := range map[string]TokenService{"secret": other, "issuer": wrongIss} {
		tok, err := signer.Sign("1", RoleUser)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ts.Verify(tok); err == nil {
			t.Fatalf("%s: expected verify failure", name)
		}
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "iss": "openshort", "exp": time.Now().Add(time.Hour).Unix()})
	s, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.Verify(s); err == nil {
		t.Fatal("alg none must be rejected")
	}
}

func TestHS256_ExpiryWithLeeway(t *testing.T) {
	svc, err := NewHS256Service("secret", "openshort", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	h := svc.(*hs256Service)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	h.now = func() time.Time { return now }

	tok, err := h.Sign("1", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	c, err := h.Verify(tok)
	if err != nil {
		t.Fatalf("fresh token: %v", err)
	}
	if !c.ExpiresAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("ExpiresAt = %v, want %v", c.ExpiresAt, start.Add(time.Minute))
	}

	now = start.Add(time.Minute + 3*time.Second)
	if _, err := h.Verify(tok); err != nil {
		t.Fatalf("within leeway: %v", err)
	}
	now = start.Add(time.Minute + 10*time.Second)
	if _, err := h.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: err = %v, want ErrInvalidToken", err)
	}
}

func TestHS256_RolesAndSubjects(t *testing.T) {
	ts, _ := NewHS256Service("secret", "openshort", time.Hour)
	if _, err := ts.Sign("1", "root"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("sign unknown role: err = %v", err)
	}
	if _, err := ts.Sign("alice", RoleUser); err == nil {
		t.Fatal("non-numeric subject must be refused")
	}

	// a token minted with the right secret but a role the API never issues
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "iss": "openshort", "role": "superuser", "exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := forged.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.Verify(s); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unknown role: err = %v, want ErrInvalidToken", err)
	}

	for role, want := range map[string]bool{RoleAdmin: true, RoleUser: true, "": false, "Admin": false} {
		if got := ValidRole(role); got != want {
			t.Errorf("ValidRole(%q) = %v, want %v", role, got, want)
		}
	}
}

func TestNewHS256Service_Validation(t *testing.T) {
	if _, err := NewHS256Service("", "iss", time.Hour); err == nil {
		t.Fatal("empty secret")
	}
	if _, err := NewHS256Service("s", "", time.Hour); err == nil {
		t.Fatal("empty issuer")
	}
	if _, err := NewHS256Service("s", "iss", 0); err == nil {
		t.Fatal("zero ttl")
	}
}

func TestHS256_ErrorsWrapInvalidToken(t *testing.T) {
	ts, _ := NewHS256Service("secret", "openshort", time.Hour)
	_, err := ts.Verify("not-a-jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
