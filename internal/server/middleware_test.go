package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yhlin/etfwatch/internal/common"
)

func okProbe(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func testAuthConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Auth.Password = "test-password"
	cfg.Auth.JWTSecret = "test-jwt-secret"
	cfg.Auth.SchedulerToken = "test-scheduler-token"
	return cfg
}

// --- Auth middleware ---

func TestAuthMiddleware_PublicPathsOpen(t *testing.T) {
	cfg := testAuthConfig()
	for _, path := range []string{"/api/health", "/api/version", "/api/auth/login"} {
		called := false
		handler := authMiddleware(cfg)(okProbe(&called))

		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if !called {
			t.Errorf("%s should be reachable without a token", path)
		}
	}
}

func TestAuthMiddleware_ProtectedRequiresToken(t *testing.T) {
	cfg := testAuthConfig()
	called := false
	handler := authMiddleware(cfg)(okProbe(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("handler should not run without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestAuthMiddleware_ValidTokenPasses(t *testing.T) {
	cfg := testAuthConfig()
	token, _, err := signSessionToken(&cfg.Auth)
	if err != nil {
		t.Fatalf("signSessionToken failed: %v", err)
	}

	called := false
	handler := authMiddleware(cfg)(okProbe(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Errorf("expected handler to run with valid token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddleware_InvalidTokenRejected(t *testing.T) {
	cfg := testAuthConfig()
	called := false
	handler := authMiddleware(cfg)(okProbe(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("handler should not run with a garbage token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_SchedulerTokenOnAdminPath(t *testing.T) {
	cfg := testAuthConfig()
	called := false
	handler := authMiddleware(cfg)(okProbe(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/ingest/holdings", nil)
	req.Header.Set("X-Scheduler-Token", "test-scheduler-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Errorf("expected scheduler token to pass on admin path, got %d", rec.Code)
	}
}

func TestAuthMiddleware_WrongSchedulerTokenRejected(t *testing.T) {
	cfg := testAuthConfig()
	called := false
	handler := authMiddleware(cfg)(okProbe(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/ingest/holdings", nil)
	req.Header.Set("X-Scheduler-Token", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("handler should not run with a wrong scheduler token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_SchedulerTokenIgnoredOffAdminPaths(t *testing.T) {
	cfg := testAuthConfig()
	called := false
	handler := authMiddleware(cfg)(okProbe(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	req.Header.Set("X-Scheduler-Token", "test-scheduler-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("scheduler token should not grant access outside /api/admin/")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// --- CORS ---

func TestCORSMiddleware_Preflight(t *testing.T) {
	called := false
	handler := corsMiddleware(okProbe(&called))

	req := httptest.NewRequest(http.MethodOptions, "/api/funds", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("preflight should short-circuit before the handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS origin header")
	}
}

// --- Correlation ID ---

func TestCorrelationIDMiddleware_HonorsRequestID(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "req-42" {
		t.Errorf("expected correlation ID req-42, got %q", got)
	}
}

func TestCorrelationIDMiddleware_GeneratesWhenAbsent(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); len(got) != 8 {
		t.Errorf("expected generated 8-char correlation ID, got %q", got)
	}
}

// --- Recovery ---

func TestRecoveryMiddleware_CatchesPanic(t *testing.T) {
	logger := common.NewSilentLogger()
	handler := recoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}
}

// --- Full stack through the server handler ---

func TestMiddlewareStack_EndToEnd(t *testing.T) {
	srv := newTestServer(t, "", "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Health is public.
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("expected correlation ID on response")
	}

	// Fund list requires a session.
	resp, err = http.Get(ts.URL + "/api/funds")
	if err != nil {
		t.Fatalf("funds request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("funds without token: expected 401, got %d", resp.StatusCode)
	}

	// With a token it opens up.
	token := loginToken(t, srv)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/funds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized funds request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("funds with token: expected 200, got %d", resp.StatusCode)
	}
}

// --- Rate limiter ---

func TestIPLimiter_EnforcesBurst(t *testing.T) {
	// One request per hour with a burst of 2: the third immediate
	// request must be rejected.
	l := newIPLimiter(1, time.Hour, 2)

	if !l.Allow("1.2.3.4") || !l.Allow("1.2.3.4") {
		t.Fatal("burst requests should be allowed")
	}
	if l.Allow("1.2.3.4") {
		t.Error("third request should exceed the burst")
	}

	// Another client has its own bucket.
	if !l.Allow("5.6.7.8") {
		t.Error("separate client should have a fresh bucket")
	}
}

func TestIPLimiter_PruneDropsStaleBuckets(t *testing.T) {
	l := newIPLimiter(100, time.Hour, 10)
	l.Allow("1.2.3.4")
	l.buckets["1.2.3.4"].lastSeen = time.Now().Add(-4 * time.Hour)
	l.Allow("5.6.7.8")

	l.mu.Lock()
	l.prune()
	l.mu.Unlock()

	if _, ok := l.buckets["1.2.3.4"]; ok {
		t.Error("stale bucket should be pruned")
	}
	if _, ok := l.buckets["5.6.7.8"]; !ok {
		t.Error("fresh bucket should survive pruning")
	}
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	logger := common.NewSilentLogger()
	l := newIPLimiter(1, time.Hour, 1)
	called := 0
	handler := rateLimitMiddleware(l, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
	if called != 1 {
		t.Errorf("handler ran %d times, want 1", called)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		xff        string
		want       string
	}{
		{"10.0.0.1:5000", "", "10.0.0.1"},
		{"10.0.0.1:5000", "203.0.113.7", "203.0.113.7"},
		{"10.0.0.1:5000", "203.0.113.7, 70.41.3.18", "203.0.113.7"},
		{"bad-addr", "", "bad-addr"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(remote=%q, xff=%q) = %q, want %q", tt.remoteAddr, tt.xff, got, tt.want)
		}
	}
}
