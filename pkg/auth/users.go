package auth

import (
	"context"
	"sync"

	apperrors "github.com/nightwatch-siem/nightwatch/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// User is the auth subsystem's view of an account: username, disabled flag,
// granted scopes, and a bcrypt credential hash (spec §3 "User / token").
type User struct {
	Username     string
	TenantID     string
	Disabled     bool
	Scopes       []string
	PasswordHash string
}

func (u *User) HasScope(scope string) bool {
	for _, s := range u.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// UserStore looks up accounts for the login flow. A real deployment backs
// this with Postgres (pkg/repository.UserRepository); this package ships an
// in-memory default seeded with a single admin account, grounded on the
// original implementation's fake_users_db (spec §9).
type UserStore interface {
	GetUser(ctx context.Context, username string) (*User, error)
}

// MemoryUserStore is the default UserStore: one seed admin account with
// full scopes, matching the original implementation's mock user table.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryUserStore seeds a single "admin" account with password "admin"
// and scopes logs:write, logs:read, admin — the original fake_users_db.
func NewMemoryUserStore() *MemoryUserStore {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		panic("auth: failed to hash seed password: " + err.Error())
	}
	return &MemoryUserStore{
		users: map[string]*User{
			"admin": {
				Username:     "admin",
				TenantID:     "default",
				Disabled:     false,
				Scopes:       []string{"logs:write", "logs:read", "admin"},
				PasswordHash: string(hash),
			},
		},
	}
}

func (s *MemoryUserStore) GetUser(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, apperrors.Unauthorized("invalid username or password")
	}
	return u, nil
}

// Put adds or replaces a user. Exposed for tests and for seeding additional
// accounts without standing up Postgres.
func (s *MemoryUserStore) Put(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

// VerifyPassword does a constant-time bcrypt comparison (spec §4.1).
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword is used by stores that provision new accounts.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
