// Package account holds the admin users, JWT login and the single API key of
// an OpenShort instance.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("email is not valid")
	ErrWeakPassword       = errors.New("password must be 8-72 characters")
	ErrPasswordMismatch   = errors.New("new password and confirmation do not match")
	ErrDeleteSelf         = errors.New("cannot delete the signed-in user")
	ErrInvalidAPIKey      = errors.New("invalid api key")
)

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// APIKey is the stored form of the instance API key. The plaintext is never
// persisted; KeyPrefix is its display form ("os_xxxxxxxx...").
type APIKey struct {
	ID         int64
	Name       string
	KeyHash    string
	KeyPrefix  string
	CreatedBy  int64
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// UserStore returns shortener.ErrNotFound for missing rows and
// shortener.ErrUniqueViolation for a duplicate email.
type UserStore interface {
	InsertUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// KeyStore holds at most one API key.
type KeyStore interface {
	// ReplaceAPIKey supersedes any existing key with k in one statement and
	// fills k.ID.
	ReplaceAPIKey(ctx context.Context, k *APIKey) error
	CurrentAPIKey(ctx context.Context) (*APIKey, error)
	FindAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, id int64, at time.Time) error
}
