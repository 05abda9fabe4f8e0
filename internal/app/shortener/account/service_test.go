package account

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/auth"
)

type memAccounts struct {
	mu      sync.Mutex
	users   map[int64]*User
	key     *APIKey
	nextID  int64
	touches int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{users: make(map[int64]*User)}
}

func (m *memAccounts) InsertUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.users {
		if cur.Email == u.Email {
			return shortener.ErrUniqueViolation
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memAccounts) GetUser(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shortener.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memAccounts) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shortener.ErrNotFound
}

func (m *memAccounts) ListUsers(context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memAccounts) DeleteUser(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	delete(m.users, id)
	return ok, nil
}

func (m *memAccounts) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return shortener.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memAccounts) ReplaceAPIKey(_ context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	k.ID = m.nextID
	cp := *k
	m.key = &cp
	return nil
}

func (m *memAccounts) CurrentAPIKey(context.Context) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == nil {
		return nil, shortener.ErrNotFound
	}
	cp := *m.key
	return &cp, nil
}

func (m *memAccounts) FindAPIKeyByHash(_ context.Context, hash string) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == nil || m.key.KeyHash != hash {
		return nil, shortener.ErrNotFound
	}
	cp := *m.key
	return &cp, nil
}

func (m *memAccounts) TouchAPIKey(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != nil && m.key.ID == id {
		m.key.LastUsedAt = &at
		m.touches++
	}
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memAccounts, auth.TokenService) {
	t.Helper()
	ts, err := auth.NewHS256Service("test-secret", "openshort", time.Hour)
	require.NoError(t, err)
	store := newMemAccounts()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewService(store, store, ts, "key-secret", opts...), store, ts
}

func TestLogin(t *testing.T) {
	svc, _, ts := newTestService(t)
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, " Admin@Example.com ", "correct-horse", "")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", u.Email)
	assert.Equal(t, auth.RoleAdmin, u.Role)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)

	token, got, err := svc.Login(ctx, "ADMIN@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	claims, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(u.ID, 10), claims.UserID)
	assert.Equal(t, auth.RoleAdmin, claims.Role)

	_, _, err = svc.Login(ctx, "admin@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUser_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "not-an-email", "long-enough", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.CreateUser(ctx, "Name <a@b.co>", "long-enough", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = svc.CreateUser(ctx, "a@b.co", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = svc.CreateUser(ctx, "a@b.co", strings.Repeat("x", 73), "")
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = svc.CreateUser(ctx, "a@b.co", "long-enough", "root")
	assert.ErrorIs(t, err, auth.ErrUnknownRole)

	_, err = svc.CreateUser(ctx, "a@b.co", "long-enough", "")
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "A@B.CO", "long-enough", "")
	assert.ErrorIs(t, err, shortener.ErrConflict)
}

func TestRegister_CreatesPlainUser(t *testing.T) {
	svc, _, ts := newTestService(t)
	token, u, err := svc.Register(context.Background(), "new@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, u.Role)
	claims, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, claims.Role)
}

func TestDeleteUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a, err := svc.CreateUser(ctx, "a@example.com", "password1", "")
	require.NoError(t, err)
	b, err := svc.CreateUser(ctx, "b@example.com", "password1", "")
	require.NoError(t, err)

	_, err = svc.DeleteUser(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, ErrDeleteSelf)

	ok, err := svc.DeleteUser(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.DeleteUser(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, "a@example.com", "password1", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "password1", "password2", "password3"), ErrPasswordMismatch)
	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "password1", "short", "short"), ErrWeakPassword)
	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "wrong-one", "password2", "password2"), ErrInvalidCredentials)
	assert.ErrorIs(t, svc.ChangePassword(ctx, 999, "password1", "password2", "password2"), shortener.ErrNotFound)

	require.NoError(t, svc.ChangePassword(ctx, u.ID, "password1", "password2", "password2"))
	_, _, err = svc.Login(ctx, "a@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "a@example.com", "password2")
	assert.NoError(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "admin@openshort.local", "")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin@openshort.local", "whatever1")
	require.NoError(t, err)
	assert.False(t, created)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, auth.RoleAdmin, users[0].Role)
}

func TestAPIKeyLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	cur, err := svc.CurrentAPIKey(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	plain, k, err := svc.GenerateAPIKey(ctx, 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plain, "os_"))
	assert.Len(t, plain, 3+32)
	assert.Equal(t, plain[:11]+"...", k.KeyPrefix)
	assert.NotContains(t, k.KeyHash, plain)
	assert.Len(t, k.KeyHash, 64)

	id, err := svc.VerifyAPIKey(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, "7", id.UserID)
	assert.Equal(t, auth.RoleAdmin, id.Role)
	assert.Equal(t, k.ID, id.APIKeyID)
	assert.Equal(t, 1, store.touches)

	// within the throttle window no second write
	_, err = svc.VerifyAPIKey(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, 1, store.touches)

	next, _, err := svc.GenerateAPIKey(ctx, 7)
	require.NoError(t, err)
	assert.NotEqual(t, plain, next)

	_, err = svc.VerifyAPIKey(ctx, plain)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
	_, err = svc.VerifyAPIKey(ctx, next)
	assert.NoError(t, err)

	for _, bad := range []string{"", "sk_" + next[3:], next + "x", "os_" + strings.Repeat("a", 300)} {
		_, err = svc.VerifyAPIKey(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidAPIKey, bad)
	}
}

func TestAPIKeyHashDependsOnSecret(t *testing.T) {
	store := newMemAccounts()
	ts, _ := auth.NewHS256Service("s", "openshort", time.Hour)
	a := NewService(store, store, ts, "one")
	b := NewService(store, store, ts, "two")

	plain, _, err := a.GenerateAPIKey(context.Background(), 1)
	require.NoError(t, err)
	_, err = b.VerifyAPIKey(context.Background(), plain)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}
