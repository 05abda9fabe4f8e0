package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownRole is returned for roles outside RoleAdmin and RoleUser.
	ErrUnknownRole = errors.New("unknown role")
)

// Claims is what a verified session token carries. UserID is the decimal
// users.id.
type Claims struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Sign(userID string, role string) (string, error)
	Verify(token string) (Claims, error)
}

// ValidRole reports whether role is one the API authorizes against.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

func checkRole(role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return nil
}

// NewHS256Service signs session tokens with a shared secret. Tokens expire
// after ttl; clock skew up to leeway is tolerated on verification.
func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if issuer == "" {
		return nil, errors.New("jwt issuer is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be > 0")
	}
	return &hs256Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		leeway: 5 * time.Second,
		now:    time.Now,
	}, nil
}
