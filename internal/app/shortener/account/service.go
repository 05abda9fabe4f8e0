package account

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/auth"
)

const (
	APIKeyPrefix    = "os_"
	apiKeyRandomLen = 32
	apiKeyShownLen  = 11
	apiKeyName      = "Default API Key"

	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything longer

	// lastUsedEvery throttles the lastUsedAt write on the hot auth path.
	lastUsedEvery = time.Minute
)

// dummyHash keeps Login timing flat for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("openshort-timing-pad"), bcrypt.DefaultCost)

type Service struct {
	users     UserStore
	keys      KeyStore
	tokens    auth.TokenService
	keySecret []byte
	random    io.Reader
	cost      int
	now       shortener.Clock
}

type Option func(*Service)

// WithRandom replaces crypto/rand for API key generation.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithClock(now shortener.Clock) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the account logic. keySecret keys the HMAC that API keys
// are stored under.
func NewService(users UserStore, keys KeyStore, tokens auth.TokenService, keySecret string, opts ...Option) *Service {
	s := &Service{
		users:     users,
		keys:      keys,
		tokens:    tokens,
		keySecret: []byte(keySecret),
		random:    rand.Reader,
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the credentials and signs a JWT for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = normalizeEmail(email)
	u, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, shortener.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.tokens.Sign(strconv.FormatInt(u.ID, 10), u.Role)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, u, nil
}

// Register creates a non-admin user and signs it in.
func (s *Service) Register(ctx context.Context, email, password string) (string, *User, error) {
	u, err := s.CreateUser(ctx, email, password, auth.RoleUser)
	if err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Sign(strconv.FormatInt(u.ID, 10), u.Role)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, u, nil
}

// CreateUser validates and stores a user. A taken email yields
// shortener.ErrConflict.
func (s *Service) CreateUser(ctx context.Context, email, password, role string) (*User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if role == "" {
		role = auth.RoleAdmin
	}
	if !auth.ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", auth.ErrUnknownRole, role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	u := &User{Email: email, PasswordHash: string(hash), Role: role, CreatedAt: s.now().UTC()}
	if err := s.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, shortener.ErrUniqueViolation) {
			return nil, fmt.Errorf("email %q: %w", email, shortener.ErrConflict)
		}
		return nil, err
	}
	slog.Info("user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.ListUsers(ctx)
}

// DeleteUser removes id on behalf of actorID; false when it did not exist.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) (bool, error) {
	if actorID == id {
		return false, ErrDeleteSelf
	}
	return s.users.DeleteUser(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next, confirm string) error {
	if next != confirm {
		return ErrPasswordMismatch
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		slog.Warn("password change rejected", "user_id", userID)
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}
	slog.Info("password changed", "user_id", userID)
	return nil
}

// EnsureAdmin creates the admin user unless the email already exists. An
// empty password is replaced with a random one that is logged once.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	_, err := s.users.FindUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, shortener.ErrNotFound) {
		return false, err
	}
	generated := password == ""
	if generated {
		if password, err = s.randomString(16); err != nil {
			return false, err
		}
	}
	if _, err := s.CreateUser(ctx, email, password, auth.RoleAdmin); err != nil {
		if errors.Is(err, shortener.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	if generated {
		slog.Warn("seeded admin with generated password; change it after first login", "email", email, "password", password)
	}
	return true, nil
}

// GenerateAPIKey replaces the instance key and returns the plaintext, which
// is not retrievable afterwards.
func (s *Service) GenerateAPIKey(ctx context.Context, userID int64) (string, *APIKey, error) {
	secret, err := s.randomString(apiKeyRandomLen)
	if err != nil {
		return "", nil, err
	}
	plain := APIKeyPrefix + secret
	k := &APIKey{
		Name:      apiKeyName,
		KeyHash:   s.hashKey(plain),
		KeyPrefix: plain[:apiKeyShownLen] + "...",
		CreatedBy: userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.keys.ReplaceAPIKey(ctx, k); err != nil {
		return "", nil, err
	}
	slog.Info("api key generated", "user_id", userID, "prefix", k.KeyPrefix)
	return plain, k, nil
}

// CurrentAPIKey returns nil without error when no key exists.
func (s *Service) CurrentAPIKey(ctx context.Context) (*APIKey, error) {
	k, err := s.keys.CurrentAPIKey(ctx)
	if errors.Is(err, shortener.ErrNotFound) {
		return nil, nil
	}
	return k, err
}

// VerifyAPIKey resolves a plaintext key to an admin identity acting as the
// user that generated it.
func (s *Service) VerifyAPIKey(ctx context.Context, key string) (auth.Identity, error) {
	if !strings.HasPrefix(key, APIKeyPrefix) || len(key) > 256 {
		return auth.Identity{}, ErrInvalidAPIKey
	}
	k, err := s.keys.FindAPIKeyByHash(ctx, s.hashKey(key))
	if errors.Is(err, shortener.ErrNotFound) {
		return auth.Identity{}, ErrInvalidAPIKey
	}
	if err != nil {
		return auth.Identity{}, err
	}
	now := s.now().UTC()
	if k.LastUsedAt == nil || now.Sub(*k.LastUsedAt) >= lastUsedEvery {
		if err := s.keys.TouchAPIKey(ctx, k.ID, now); err != nil {
			slog.Warn("api key touch failed", "err", err)
		}
	}
	return auth.Identity{
		UserID:   strconv.FormatInt(k.CreatedBy, 10),
		Role:     auth.RoleAdmin,
		APIKeyID: k.ID,
	}, nil
}

func (s *Service) hashKey(plain string) string {
	mac := hmac.New(sha256.New, s.keySecret)
	mac.Write([]byte(plain))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) randomString(n int) (string, error) {
	gen, err := shortener.NewSlugAllocator(n, shortener.WithAlphabet(shortener.AlphabetMixed), shortener.WithRandom(s.random))
	if err != nil {
		return "", err
	}
	return gen.Generate()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" || len(email) > 255 {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func validatePassword(p string) error {
	if len(p) < minPasswordLen || len(p) > maxPasswordLen {
		return ErrWeakPassword
	}
	return nil
}
