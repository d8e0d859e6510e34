// Package session holds the single authoritative copy of credential state:
// access and refresh tokens, the current user profile, and the derived
// authentication flag. Every other layer reads it; only SetCredentials and
// Logout mutate it.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stitchline/portal-client/users"
)

// Persisted storage keys. Tokens and the theme preference survive
// restarts; the user profile is in-memory only and is re-fetched.
const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	themeKey        = "theme"
)

// Credentials is a partial update: nil fields are left untouched, so a
// profile-only update never erases tokens.
type Credentials struct {
	User    *users.Profile
	Access  *string
	Refresh *string
}

// Snapshot is an immutable view of the session at one point in time.
type Snapshot struct {
	AccessToken   string
	RefreshToken  string
	User          *users.Profile
	Authenticated bool
}

type Store struct {
	mu           sync.RWMutex
	storage      Storage
	log          zerolog.Logger
	accessToken  string
	refreshToken string
	user         *users.Profile
	theme        string
}

type StoreOption func(*Store)

func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates a Store hydrated synchronously from storage, so the
// authentication flag is correct before anything else runs.
func NewStore(storage Storage, options ...StoreOption) (*Store, error) {
	store := &Store{
		storage: storage,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(store)
	}

	var err error
	if store.accessToken, err = storage.Get(accessTokenKey); err != nil {
		return nil, err
	}
	if store.refreshToken, err = storage.Get(refreshTokenKey); err != nil {
		return nil, err
	}
	if store.theme, err = storage.Get(themeKey); err != nil {
		return nil, err
	}
	return store, nil
}

// SetCredentials merges the non-nil fields into the session. Token writes
// are persisted synchronously with the state change.
func (s *Store) SetCredentials(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.User != nil {
		s.user = c.User
	}
	if c.Access != nil {
		s.accessToken = *c.Access
		s.persist(accessTokenKey, *c.Access)
	}
	if c.Refresh != nil {
		s.refreshToken = *c.Refresh
		s.persist(refreshTokenKey, *c.Refresh)
	}
}

// Logout clears all credential state and removes the persisted tokens.
// Calling it on an already logged-out store is a no-op.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken == "" && s.refreshToken == "" && s.user == nil {
		return
	}

	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
	s.remove(accessTokenKey)
	s.remove(refreshTokenKey)
	s.log.Debug().Msg("session cleared")
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// IsAuthenticated is true iff an access token is present. The profile may
// lag token presence until the first /users/me/ fetch completes.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken != ""
}

func (s *Store) CurrentUser() *users.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		AccessToken:   s.accessToken,
		RefreshToken:  s.refreshToken,
		User:          s.user,
		Authenticated: s.accessToken != "",
	}
}

// AccessTokenExpiry returns the exp claim of the current access token.
// The signature is not verified; the client only schedules refreshes from
// it, the backend remains the authority. Returns the zero time when there
// is no token or it carries no parseable expiry.
func (s *Store) AccessTokenExpiry() time.Time {
	token := s.AccessToken()
	if token == "" {
		return time.Time{}
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (s *Store) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *Store) SetTheme(theme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
	s.persist(themeKey, theme)
}

func (s *Store) persist(key, value string) {
	if err := s.storage.Set(key, value); err != nil {
		s.log.Err(err).Str("key", key).Msg("failed to persist session value")
	}
}

func (s *Store) remove(key string) {
	if err := s.storage.Delete(key); err != nil {
		s.log.Err(err).Str("key", key).Msg("failed to remove session value")
	}
}
