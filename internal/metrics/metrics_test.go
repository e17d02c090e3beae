package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/metrics", "/metrics"},
		{"/api/boards", "/api/boards"},
		{"/api/boards/b1", "/api/boards/:id"},
		{"/api/boards/b1/blocks/h1/checks", "/api/boards/:id/blocks/:id/checks"},
		{"/api/boards/b1/members/u1", "/api/boards/:id/members/:id"},
		{"/api/boards/b1/blocks/img/images/usr_1/img/abc", "/api/boards/:id/blocks/:id/images/:key"},
	}
	for _, tt := range tests {
		if got := CanonicalPath(tt.in); got != tt.want {
			t.Errorf("CanonicalPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInstrumentHandlerCountsRequests(t *testing.T) {
	m := New()
	h := m.InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/boards/b1", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/boards/:id", "418")); got != 1 {
		t.Fatalf("expected one request counted, got %v", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.RecordCheck("daily-habit-tracker", true)
	m.RecordReconcile(false)
	m.RecordBilling("checkout", errors.New("down"))

	if testutil.ToFloat64(m.checks.WithLabelValues("daily-habit-tracker", "true")) != 1 {
		t.Error("check not counted")
	}
	if testutil.ToFloat64(m.reconciles.WithLabelValues("false")) != 1 {
		t.Error("reconcile not counted")
	}
	if testutil.ToFloat64(m.billing.WithLabelValues("checkout", "error")) != 1 {
		t.Error("billing error not counted")
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "lifeblocks_blocks_checks_total") {
		t.Fatal("expected checks metric in exposition")
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	rejected := 0
	rl := NewRateLimiter(1, 2, func(r *http.Request) string { return r.Header.Get("X-User") }).
		OnReject(func() { rejected++ })
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
		req.Header.Set("X-User", "u1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
	if rejected != 1 {
		t.Fatalf("expected one rejection, got %d", rejected)
	}

	// Separate bucket for another caller
	req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	req.Header.Set("X-User", "u2")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected u2 allowed, got %d", rr.Code)
	}
}

func TestRateLimiterAnonymousKeyIgnoresPort(t *testing.T) {
	rl := NewRateLimiter(1, 1, func(*http.Request) string { return "" })
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for _, addr := range []string{"203.0.113.7:40001", "203.0.113.7:40002", "198.51.100.2:40003"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected the second port of one host to share its bucket, got %v", codes)
	}
	if codes[2] != http.StatusOK {
		t.Fatalf("expected another host allowed, got %d", codes[2])
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(1, 1, nil)
	rl.now = func() time.Time { return now }
	rl.Allow("old")
	now = now.Add(time.Hour)
	rl.Allow("fresh")
	rl.Cleanup(time.Minute)

	if _, ok := rl.limiters["old"]; ok {
		t.Error("expected idle bucket removed")
	}
	if _, ok := rl.limiters["fresh"]; !ok {
		t.Error("expected fresh bucket kept")
	}
}
