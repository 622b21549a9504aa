package molekule

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/joshp123/purehome/internal/logging"
)

func newTestSessionManager(provider CredentialProvider) *sessionManager {
	log := logging.Get(logging.InfoLevel).Named("molekule-test")
	return newSessionManager(provider, nil, nil, 5*time.Second, log)
}

func TestEnsureTokenValidCachesToken(t *testing.T) {
	provider := &fakeProvider{}
	manager := newTestSessionManager(provider)

	first, err := manager.EnsureTokenValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureTokenValid: %v", err)
	}
	second, err := manager.EnsureTokenValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureTokenValid: %v", err)
	}

	if first != second {
		t.Errorf("token changed between calls: %q vs %q", first, second)
	}
	if provider.loginCount() != 1 {
		t.Errorf("logins = %d, want 1 while token is fresh", provider.loginCount())
	}
}

func TestEnsureTokenValidRenewsNearExpiry(t *testing.T) {
	provider := &fakeProvider{}
	manager := newTestSessionManager(provider)

	if _, err := manager.EnsureTokenValid(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Inside the expiry margin the token no longer counts as valid.
	manager.authMu.Lock()
	manager.expiresAt = time.Now().Add(tokenExpiryMargin - time.Minute)
	manager.authMu.Unlock()

	if _, err := manager.EnsureTokenValid(context.Background()); err != nil {
		t.Fatal(err)
	}
	if provider.loginCount() != 2 {
		t.Errorf("logins = %d, want renewal inside the margin", provider.loginCount())
	}
}

func TestForceAuthenticateReplacesToken(t *testing.T) {
	provider := &fakeProvider{}
	manager := newTestSessionManager(provider)

	first, err := manager.EnsureTokenValid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := manager.ForceAuthenticate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("forced authentication must mint a new token")
	}
}

func TestConcurrentFirstCallersShareOneSession(t *testing.T) {
	provider := &fakeProvider{}
	manager := newTestSessionManager(provider)

	const callers = 16
	sessions := make(chan *http.Client, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.EnsureTokenValid(context.Background()); err != nil {
				t.Errorf("EnsureTokenValid: %v", err)
			}
			sessions <- manager.Session()
		}()
	}
	wg.Wait()
	close(sessions)

	first := <-sessions
	for session := range sessions {
		if session != first {
			t.Error("concurrent callers must share a single session")
		}
	}
	if provider.loginCount() != 1 {
		t.Errorf("logins = %d, want 1 across concurrent first callers", provider.loginCount())
	}
}

func TestDropSessionRebuildsClient(t *testing.T) {
	manager := newTestSessionManager(&fakeProvider{})

	first := manager.Session()
	if manager.Session() != first {
		t.Error("session must be reused while healthy")
	}

	manager.DropSession()
	if manager.Session() == first {
		t.Error("dropped session must be replaced, not reused")
	}
}
