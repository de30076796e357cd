package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func rateLimitedRequest(t *testing.T, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		rec := rateLimitedRequest(t, handler, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExhaustedBucketReturns429(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		rec := rateLimitedRequest(t, handler, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := rateLimitedRequest(t, handler, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("expected success=false, got %v", resp["success"])
	}

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After is not an integer: %q", rec.Header().Get("Retry-After"))
	}
	if retryAfter < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", retryAfter)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}
}

func TestRateLimit_BucketsAreIsolatedPerIP(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	if rec := rateLimitedRequest(t, handler, "10.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("first caller: expected 200, got %d", rec.Code)
	}
	if rec := rateLimitedRequest(t, handler, "10.0.0.1:1235"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first caller again: expected 429, got %d", rec.Code)
	}
	// A different IP gets its own bucket.
	if rec := rateLimitedRequest(t, handler, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Fatalf("second caller: expected 200, got %d", rec.Code)
	}
}

func TestIPLimiter_RefillsOverTime(t *testing.T) {
	l := newIPLimiter(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 1})

	allowed, _ := l.take("10.0.0.9")
	if !allowed {
		t.Fatal("expected first take to succeed")
	}
	allowed, _ = l.take("10.0.0.9")
	if allowed {
		t.Fatal("expected second take to be denied")
	}

	// Backdate the bucket so the next take sees a full refill window.
	l.mu.Lock()
	l.buckets["10.0.0.9"].lastSeen = time.Now().Add(-time.Second)
	l.mu.Unlock()

	allowed, _ = l.take("10.0.0.9")
	if !allowed {
		t.Fatal("expected take to succeed after refill")
	}
}

func TestIPLimiter_ZeroRateReportsRetryAfterOne(t *testing.T) {
	l := newIPLimiter(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})
	l.take("10.0.0.3")
	allowed, retryAfter := l.take("10.0.0.3")
	if allowed {
		t.Fatal("expected denial with empty bucket")
	}
	if retryAfter != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", retryAfter)
	}
}

func TestIPLimiter_SweepEvictsIdleBuckets(t *testing.T) {
	l := newIPLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	l.take("10.0.0.4")
	l.take("10.0.0.5")

	l.mu.Lock()
	l.buckets["10.0.0.4"].lastSeen = time.Now().Add(-time.Hour)
	l.sweep(time.Now())
	_, staleKept := l.buckets["10.0.0.4"]
	_, freshKept := l.buckets["10.0.0.5"]
	l.mu.Unlock()

	if staleKept {
		t.Error("expected idle bucket to be evicted")
	}
	if !freshKept {
		t.Error("expected recently used bucket to survive the sweep")
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("expected RequestsPerSecond 100, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("expected BurstSize 200, got %d", cfg.BurstSize)
	}
}
