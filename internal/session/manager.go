// Package session owns the authentication token lifecycle: login, logout,
// persistence and forced expiry after the backend rejects the credentials.
package session

import (
	"encoding/base64"
	"net/http"
	"sync"

	"chemviz/internal/config"
)

// TokenKey is the storage key the token is persisted under.
const TokenKey = "auth"

// Reason says why a session ended.
type Reason int

const (
	ReasonLogout Reason = iota
	ReasonExpired
)

func (r Reason) String() string {
	if r == ReasonExpired {
		return "expired"
	}
	return "logout"
}

// Hook runs after the token has been cleared.
type Hook func(Reason)

// Manager gates the rest of the client. It never caches the header: every
// call re-reads storage so a logout is visible to the next request.
type Manager struct {
	store Storage

	mu            sync.Mutex
	authenticated bool
	onLogin       []func()
	onLogout      []Hook
}

// NewManager restores the authenticated state from a previously persisted token.
func NewManager(store Storage) *Manager {
	m := &Manager{store: store}
	if token, ok, err := store.Get(TokenKey); err != nil {
		config.Logger.Warnf("session: could not read persisted token: %v", err)
	} else {
		m.authenticated = ok && token != ""
	}
	return m
}

// EncodeCredentials builds the Basic token for username and password.
func EncodeCredentials(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// OnLogin registers fn to run after every successful Login.
func (m *Manager) OnLogin(fn func()) {
	m.mu.Lock()
	m.onLogin = append(m.onLogin, fn)
	m.mu.Unlock()
}

// OnLogout registers fn to run after Logout or Expire.
func (m *Manager) OnLogout(fn Hook) {
	m.mu.Lock()
	m.onLogout = append(m.onLogout, fn)
	m.mu.Unlock()
}

// Login stores the credentials and flips to authenticated. The backend is not
// contacted; bad credentials surface as a 401 on the first request.
// A storage error is returned but the in-memory state still becomes
// authenticated for this process.
func (m *Manager) Login(username, password string) error {
	token := EncodeCredentials(username, password)
	err := m.store.Set(TokenKey, token)
	if err != nil {
		config.Logger.Errorf("session: persist token: %v", err)
	}

	m.mu.Lock()
	m.authenticated = true
	hooks := append([]func(){}, m.onLogin...)
	m.mu.Unlock()

	config.Logger.Infof("🔓 Login: %s", username)
	for _, fn := range hooks {
		fn()
	}
	return err
}

// Logout clears the token and notifies hooks.
func (m *Manager) Logout() error {
	return m.end(ReasonLogout)
}

// Expire ends the session after an authorization failure.
func (m *Manager) Expire() {
	m.end(ReasonExpired)
}

func (m *Manager) end(reason Reason) error {
	err := m.store.Delete(TokenKey)
	if err != nil {
		config.Logger.Errorf("session: delete token: %v", err)
	}

	m.mu.Lock()
	m.authenticated = false
	hooks := append([]Hook{}, m.onLogout...)
	m.mu.Unlock()

	if reason == ReasonExpired {
		config.Logger.Warn("🔒 Session expired, credentials rejected by backend")
	} else {
		config.Logger.Info("🔒 Logout")
	}
	for _, fn := range hooks {
		fn(reason)
	}
	return err
}

// Authenticated reports whether a token is present.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// AuthHeader returns the Authorization header for the persisted token, or an
// empty header when there is none.
func (m *Manager) AuthHeader() http.Header {
	h := make(http.Header)
	if !m.Authenticated() {
		return h
	}
	token, ok, err := m.store.Get(TokenKey)
	if err != nil {
		config.Logger.Warnf("session: read token: %v", err)
		return h
	}
	if ok && token != "" {
		h.Set("Authorization", "Basic "+token)
	}
	return h
}
