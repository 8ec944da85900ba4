// Package session owns the signed-in user's token: it persists it across restarts and
// tells the rest of the client when a session starts or ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"cvrd/client/internal/api"
	"cvrd/client/internal/auth"
	"cvrd/client/internal/cache"
	"cvrd/client/internal/prefs"
)

var (
	ErrNoSession          = errors.New("no session")
	ErrInvalidCredentials = errors.New("email and password are required")
)

// Backend is the slice of the API client the session needs.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (api.AuthResponse, error)
	Signup(ctx context.Context, req api.SignupRequest) (api.AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (api.User, error)
	SetToken(token string)
}

// Listener is called with the new token when a session starts and with "" when it ends.
type Listener func(token string)

type Manager struct {
	prefs   *prefs.Store
	backend Backend
	cache   *cache.Cache

	mu        sync.RWMutex
	token     string
	user      api.User
	listeners []Listener
}

func New(p *prefs.Store, backend Backend, c *cache.Cache) *Manager {
	return &Manager{prefs: p, backend: backend, cache: c}
}

func (m *Manager) OnChange(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) User() (api.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user, m.token != ""
}

func (m *Manager) Login(ctx context.Context, email, password string) (api.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return api.User{}, ErrInvalidCredentials
	}
	resp, err := m.backend.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		return api.User{}, fmt.Errorf("login: %w", err)
	}
	return m.start(ctx, resp)
}

func (m *Manager) Signup(ctx context.Context, req api.SignupRequest) (api.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return api.User{}, ErrInvalidCredentials
	}
	resp, err := m.backend.Signup(ctx, req)
	if err != nil {
		return api.User{}, fmt.Errorf("signup: %w", err)
	}
	return m.start(ctx, resp)
}

// Restore resumes the session persisted by a previous run. Tokens that are expired or that
// the backend rejects are forgotten; a network failure keeps the token for the next try.
// Tokens are opaque to the client: only a readable JWT that has already expired is dropped
// without asking the backend.
func (m *Manager) Restore(ctx context.Context) (api.User, error) {
	token := prefs.Get(ctx, m.prefs, prefs.KeySessionToken, "")
	if token == "" {
		return api.User{}, ErrNoSession
	}
	if _, err := auth.ParseClaims(token); errors.Is(err, auth.ErrExpiredToken) {
		log.Printf("session: discard stored token %s: %v", auth.HashToken(token), err)
		m.prefs.Remove(ctx, prefs.KeySessionToken)
		return api.User{}, fmt.Errorf("restore session: %w", err)
	}
	user, err := m.backend.ValidateToken(ctx, token)
	if err != nil {
		if api.IsUnauthorized(err) {
			log.Printf("session: stored token %s rejected by backend", auth.HashToken(token))
			m.prefs.Remove(ctx, prefs.KeySessionToken)
		}
		return api.User{}, fmt.Errorf("validate token: %w", err)
	}
	return m.start(ctx, api.AuthResponse{Token: token, User: user})
}

func (m *Manager) start(ctx context.Context, resp api.AuthResponse) (api.User, error) {
	if strings.TrimSpace(resp.Token) == "" {
		return api.User{}, fmt.Errorf("start session: %w", auth.ErrInvalidToken)
	}
	m.backend.SetToken(resp.Token)
	if !m.prefs.Set(ctx, prefs.KeySessionToken, resp.Token) {
		log.Printf("session: token %s not persisted, session will not survive restart", auth.HashToken(resp.Token))
	}

	m.mu.Lock()
	m.token = resp.Token
	m.user = resp.User
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	log.Printf("session: started for user %s", resp.User.ID)
	for _, fn := range listeners {
		fn(resp.Token)
	}
	return resp.User, nil
}

// Logout forgets the token, drops every cached server resource and notifies listeners so
// the realtime channel is torn down.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.token = ""
	m.user = api.User{}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.backend.SetToken("")
	m.prefs.Remove(ctx, prefs.KeySessionToken)
	if m.cache != nil {
		m.cache.Clear()
	}
	log.Printf("session: ended")
	for _, fn := range listeners {
		fn("")
	}
}
