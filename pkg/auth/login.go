package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/nightwatch-siem/nightwatch/pkg/errors"
	"github.com/nightwatch-siem/nightwatch/pkg/repository"
)

const (
	maxFailedLogins  = 5
	lockoutWindow    = 15 * time.Minute
	failedLoginPfx   = "failed_login"
)

// LoginService implements spec §4.1's login flow: bcrypt credential check,
// a per-username failed-attempt counter in Redis with a 15-minute TTL, and
// token minting on success.
type LoginService struct {
	users  UserStore
	cache  *repository.RedisCache
	tokens *TokenIssuer
}

func NewLoginService(users UserStore, cache *repository.RedisCache, tokens *TokenIssuer) *LoginService {
	return &LoginService{users: users, cache: cache, tokens: tokens}
}

// TokenResponse is the `/token` endpoint's success body (spec §6).
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func failedLoginKey(username string) string {
	return fmt.Sprintf("%s:%s", failedLoginPfx, username)
}

// Login validates (username, password) against the store, enforcing the
// five-failures-per-15-minutes lockout before even checking the password
// again, and on success clears the counter and mints a token bound to
// clientIP with the issuer's configured lifetime.
func (s *LoginService) Login(ctx context.Context, username, password, clientIP string) (*TokenResponse, error) {
	key := failedLoginKey(username)

	count, err := s.currentFailures(ctx, key)
	if err != nil {
		return nil, apperrors.ServiceUnavailable("rate-limit cache unavailable")
	}
	if count >= maxFailedLogins {
		ttl, _ := s.cache.TTL(ctx, key)
		return nil, apperrors.RateLimited("too many failed login attempts", int(ttl.Seconds()))
	}

	user, err := s.users.GetUser(ctx, username)
	if err != nil || user.Disabled || !VerifyPassword(user.PasswordHash, password) {
		if incErr := s.recordFailure(ctx, key); incErr != nil {
			return nil, incErr
		}
		return nil, apperrors.Unauthorized("invalid username or password")
	}

	_ = s.cache.Delete(ctx, key)

	token, expiresIn, err := s.tokens.Issue(user.Username, user.TenantID, user.Scopes, clientIP)
	if err != nil {
		return nil, apperrors.Internal("failed to issue token")
	}
	return &TokenResponse{AccessToken: token, TokenType: "bearer", ExpiresIn: expiresIn}, nil
}

// currentFailures peeks the counter without creating it, so a username that
// has never failed leaves no key behind.
func (s *LoginService) currentFailures(ctx context.Context, key string) (int64, error) {
	val, err := s.cache.GetString(ctx, key)
	if err != nil {
		return 0, nil // key not found
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *LoginService) recordFailure(ctx context.Context, key string) error {
	n, err := s.cache.Increment(ctx, key, 1)
	if err != nil {
		return apperrors.ServiceUnavailable("rate-limit cache unavailable")
	}
	if n == 1 {
		_ = s.cache.Expire(ctx, key, lockoutWindow)
	}
	return nil
}
