package auth

import "context"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity is the authenticated caller. APIKeyID is set when the request
// authenticated with an API key instead of a JWT.
type Identity struct {
	UserID   string
	Role     string
	APIKeyID int64
}

func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	v := ctx.Value(identityKey{})
	id, ok := v.(Identity)
	return id, ok
}
