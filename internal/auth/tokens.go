package auth

import (
	"net/http"
	"sync"
)

// HeaderAuthorization is the header carrying the bearer token
const HeaderAuthorization = "Authorization"

// Session is the current access/refresh token pair
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Manager holds at most one session per client. Setting a new pair replaces
// the old one as a unit; readers never observe a mix of the two.
type Manager struct {
	mu      sync.RWMutex
	session *Session
}

// NewManager creates a manager with no session
func NewManager() *Manager {
	return &Manager{}
}

// SetTokens replaces the current session
func (m *Manager) SetTokens(access, refresh string) {
	s := &Session{AccessToken: access, RefreshToken: refresh}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
}

// ClearTokens drops the current session
func (m *Manager) ClearTokens() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

// Tokens returns a copy of the current session and whether one is set
func (m *Manager) Tokens() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Authenticated reports whether an access token is set
func (m *Manager) Authenticated() bool {
	s, ok := m.Tokens()
	return ok && s.AccessToken != ""
}

// Attach sets the bearer header on h when an access token is present. When
// none is set, any Authorization header already in h is left untouched.
func (m *Manager) Attach(h http.Header) http.Header {
	if h == nil {
		h = make(http.Header)
	}
	if s, ok := m.Tokens(); ok && s.AccessToken != "" {
		h.Set(HeaderAuthorization, "Bearer "+s.AccessToken)
	}
	return h
}
