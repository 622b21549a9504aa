package rate

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGuardDisabledWithoutLimits(t *testing.T) {
	guard := newGuard(Provider("demo"))

	decision := guard.ShouldCall(time.Now())
	if decision.Allowed {
		t.Fatal("guard without limits should block")
	}
	if decision.Reason != "disabled" {
		t.Fatalf("reason = %q, want disabled", decision.Reason)
	}
}

func TestGuardConsumesBudget(t *testing.T) {
	guard := newGuard(Provider("demo").MaxRequestsPer(Minute, 2))

	now := time.Now()
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("first call blocked: %s", d.Reason)
	}
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("second call blocked: %s", d.Reason)
	}
	if d := guard.ShouldCall(now); d.Allowed {
		t.Fatal("third call should exceed the minute budget")
	}
}

func TestGuardHonorsRetryAfter(t *testing.T) {
	guard := newGuard(Provider("demo").MaxRequestsPer(Minute, 100).ReadHeaders(StandardHeaders()))

	headers := http.Header{}
	headers.Set("Retry-After", "120")
	guard.RecordResponse(http.StatusTooManyRequests, headers)

	decision := guard.ShouldCall(time.Now())
	if decision.Allowed {
		t.Fatal("call during cooldown should be blocked")
	}
	if decision.Reason != "cooldown" {
		t.Fatalf("reason = %q, want cooldown", decision.Reason)
	}
}

type closeRecordingTransport struct {
	http.RoundTripper
	closed int
}

func (c *closeRecordingTransport) CloseIdleConnections() {
	c.closed++
}

func TestWrapTransportForwardsCloseIdleConnections(t *testing.T) {
	base := &closeRecordingTransport{RoundTripper: http.DefaultTransport}
	transport := WrapTransport(Provider("demo").MaxRequestsPer(Minute, 1), base)

	// http.Client.CloseIdleConnections only reaches the pool when the
	// wrapper exposes the method.
	client := &http.Client{Transport: transport}
	client.CloseIdleConnections()

	if base.closed != 1 {
		t.Fatalf("base CloseIdleConnections calls = %d, want 1", base.closed)
	}
}

func TestWrapTransportSurvivesClientRebuild(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := WrapTransport(Provider("demo").MaxRequestsPer(Minute, 1), nil)

	first := &http.Client{Transport: transport}
	if _, err := first.Get(srv.URL); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// A fresh client over the same transport shares the budget.
	second := &http.Client{Transport: transport}
	if _, err := second.Get(srv.URL); err == nil {
		t.Fatal("expected rate limit error on rebuilt client")
	}
	if calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", calls)
	}
}
