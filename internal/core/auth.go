package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/valter-silva-au/tasker/internal/apiclient"
	"github.com/valter-silva-au/tasker/pkg/models"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
)

// AuthSnapshot is a copy of the auth state handed to subscribers.
type AuthSnapshot struct {
	State models.AuthState
	User  *models.User
}

// AuthStore owns the session credential. It is the only writer of the
// persisted token.
type AuthStore struct {
	client APIClient
	creds  CredentialStore
	deps

	// write serializes credential persistence with the state transition
	// that follows it, so the stored token and the state never disagree.
	write sync.Mutex

	mu    sync.Mutex
	state models.AuthState
	token string
	user  *models.User

	listeners listenerSet[AuthSnapshot]
}

// NewAuthStore creates an AuthStore whose initial state follows the presence
// of a persisted credential. A credential that cannot be read leaves the
// store logged out and the error is returned alongside the store.
func NewAuthStore(client APIClient, creds CredentialStore, opts ...Option) (*AuthStore, error) {
	s := &AuthStore{
		client: client,
		creds:  creds,
		deps:   newDeps(opts),
		state:  models.LoggedOut,
	}
	token, err := creds.Load()
	if err != nil {
		return s, fmt.Errorf("restoring session: %w", err)
	}
	if token != "" {
		s.state = models.LoggedIn
		s.token = token
	}
	return s, nil
}

// Login exchanges credentials for a session token. On any failure the store
// stays as it was and nothing is persisted.
func (s *AuthStore) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := ValidateLogin(email, password); err != nil {
		return err
	}

	var resp models.LoginResponse
	err := s.client.Post(ctx, loginPath, models.LoginRequest{Email: email, Password: password}, &resp)
	if err == nil && resp.Token == "" {
		err = ErrMissingToken
	}
	if err != nil {
		emit(s.events, s.logger, "auth.login_failed", map[string]any{"email": email, "error": err.Error()})
		return fmt.Errorf("logging in: %w", err)
	}

	user, ok := resp.ToUser()
	if !ok || user.Email == "" {
		user.Email = email
	}

	s.write.Lock()
	defer s.write.Unlock()
	if err := s.creds.Save(resp.Token); err != nil {
		return fmt.Errorf("logging in: persisting credential: %w", err)
	}

	s.mu.Lock()
	s.state = models.LoggedIn
	s.token = resp.Token
	s.user = &user
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("logged in", "email", email)
	emit(s.events, s.logger, "auth.login", map[string]any{"email": email})
	s.listeners.notify(snap)
	return nil
}

// Register creates an account. It does not log in.
func (s *AuthStore) Register(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := ValidateRegistration(username, email, password); err != nil {
		return err
	}
	req := models.RegisterRequest{Username: username, Email: email, Password: password}
	if err := s.client.Post(ctx, registerPath, req, nil); err != nil {
		return fmt.Errorf("registering %s: %w", email, err)
	}
	emit(s.events, s.logger, "auth.register", map[string]any{"email": email, "username": username})
	return nil
}

// Logout clears the persisted credential and the in-memory session. It never
// calls the remote API. The state is logged out afterwards even when the
// credential file could not be removed; that error is returned.
func (s *AuthStore) Logout() error {
	s.write.Lock()
	defer s.write.Unlock()
	clearErr := s.creds.Clear()

	s.mu.Lock()
	wasLoggedIn := s.state == models.LoggedIn
	s.state = models.LoggedOut
	s.token = ""
	s.user = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if wasLoggedIn {
		emit(s.events, s.logger, "auth.logout", map[string]any{})
	}
	s.listeners.notify(snap)
	if clearErr != nil {
		return fmt.Errorf("logging out: %w", clearErr)
	}
	return nil
}

// State returns the current auth state.
func (s *AuthStore) State() models.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated reports whether a non-empty token is held.
func (s *AuthStore) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// User returns the user recorded at login in this process, if any. It is
// not reconstructed from a persisted token.
func (s *AuthStore) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Token returns the in-memory session token.
func (s *AuthStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// RequireAuth returns ErrNotAuthenticated when no token is held.
func (s *AuthStore) RequireAuth() error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Subscribe registers fn to be called after every state change. fn runs
// while the store holds its writer lock and must not call Login or Logout.
func (s *AuthStore) Subscribe(fn func(AuthSnapshot)) (unsubscribe func()) {
	return s.listeners.add(fn)
}

func (s *AuthStore) snapshotLocked() AuthSnapshot {
	snap := AuthSnapshot{State: s.state}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// IsAuthFailure reports whether err means the session is missing or was
// rejected by the server.
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	return apiclient.IsUnauthorized(err)
}
