package molekule

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/purehome/internal/authstate"
	"github.com/joshp123/purehome/internal/cognito"
)

const tokenExpiryMargin = 5 * time.Minute

// CredentialProvider exchanges account credentials for tokens.
type CredentialProvider interface {
	Authenticate(ctx context.Context) (cognito.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (cognito.Credentials, error)
}

// sessionManager owns the HTTP session and the cached token. Session
// lifecycle and authentication run under independent locks so a slow
// token exchange never blocks a session teardown.
type sessionManager struct {
	provider  CredentialProvider
	store     *authstate.Store
	transport http.RoundTripper
	timeout   time.Duration
	log       *zap.SugaredLogger

	sessMu  sync.Mutex
	session *http.Client

	authMu       sync.Mutex
	token        string
	expiresAt    time.Time
	refreshToken string
}

func newSessionManager(provider CredentialProvider, store *authstate.Store, transport http.RoundTripper, timeout time.Duration, log *zap.SugaredLogger) *sessionManager {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &sessionManager{
		provider:  provider,
		store:     store,
		transport: transport,
		timeout:   timeout,
		log:       log,
	}
}

// Session returns the current HTTP client, creating one if needed.
// Clients are only ever replaced wholesale, never mutated.
func (m *sessionManager) Session() *http.Client {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()

	if m.session == nil {
		m.session = &http.Client{
			Transport: m.transport,
			Timeout:   m.timeout,
		}
	}
	return m.session
}

// DropSession discards the current client so the next call builds a
// fresh one. Used after transport-level failures.
func (m *sessionManager) DropSession() {
	m.sessMu.Lock()
	defer m.sessMu.Unlock()
	m.closeSessionLocked()
}

func (m *sessionManager) closeSessionLocked() {
	if m.session == nil {
		return
	}
	// http.Client forwards to any transport exposing
	// CloseIdleConnections, wrapped ones included.
	m.session.CloseIdleConnections()
	m.session = nil
}

// EnsureTokenValid returns a token with at least the expiry margin of
// lifetime left, refreshing or re-authenticating as needed.
func (m *sessionManager) EnsureTokenValid(ctx context.Context) (string, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if m.token != "" && time.Now().Before(m.expiresAt.Add(-tokenExpiryMargin)) {
		return m.token, nil
	}

	if m.refreshToken == "" && m.store != nil {
		stored, err := m.store.Load(ctx)
		if err != nil {
			m.log.Warnw("could not load persisted auth state", "error", err)
		} else {
			m.refreshToken = stored
		}
	}

	if m.refreshToken != "" {
		creds, err := m.provider.Refresh(ctx, m.refreshToken)
		if err == nil {
			authstate.ObserveRefresh("molekule", true)
			m.adoptCredentials(ctx, creds)
			return m.token, nil
		}
		authstate.ObserveRefresh("molekule", false)
		m.log.Warnw("token refresh failed, falling back to full login", "error", err)
	}

	return m.authenticateLocked(ctx)
}

// ForceAuthenticate performs a full login unconditionally. Called
// when the API rejects a token the manager still considered valid.
func (m *sessionManager) ForceAuthenticate(ctx context.Context) (string, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()
	return m.authenticateLocked(ctx)
}

func (m *sessionManager) authenticateLocked(ctx context.Context) (string, error) {
	creds, err := m.provider.Authenticate(ctx)
	if err != nil {
		authstate.ObserveLogin("molekule", false)
		authstate.SetTokenValid("molekule", false)
		m.token = ""
		return "", &AuthError{Op: "login", Err: err}
	}
	authstate.ObserveLogin("molekule", true)
	m.adoptCredentials(ctx, creds)
	return m.token, nil
}

func (m *sessionManager) adoptCredentials(ctx context.Context, creds cognito.Credentials) {
	m.token = creds.Token
	m.expiresAt = creds.ExpiresAt
	authstate.SetTokenValid("molekule", true)

	if creds.RefreshToken != "" && creds.RefreshToken != m.refreshToken {
		m.refreshToken = creds.RefreshToken
		if m.store != nil {
			if err := m.store.Save(ctx, creds.RefreshToken); err != nil {
				m.log.Warnw("could not persist auth state", "error", err)
			}
		}
	}
}

// Close tears down the session and forgets cached tokens.
func (m *sessionManager) Close() {
	m.sessMu.Lock()
	m.closeSessionLocked()
	m.sessMu.Unlock()

	m.authMu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.authMu.Unlock()
}
