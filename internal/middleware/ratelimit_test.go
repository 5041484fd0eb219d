package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fakeClockLimiter() (*RateLimiter, *time.Time) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := fakeClockLimiter()

	for i := 0; i < 5; i++ {
		if !rl.Allow("key", 5, time.Minute) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("key", 5, time.Minute) {
		t.Error("6th request should be denied")
	}
	if !rl.Allow("other", 5, time.Minute) {
		t.Error("keys should be counted separately")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl, now := fakeClockLimiter()

	for i := 0; i < 3; i++ {
		rl.Allow("key", 3, time.Minute)
	}
	if rl.Allow("key", 3, time.Minute) {
		t.Error("should be blocked within window")
	}

	*now = now.Add(2 * time.Minute)
	if !rl.Allow("key", 3, time.Minute) {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiterExceededAndReset(t *testing.T) {
	rl, now := fakeClockLimiter()

	rl.Allow("pin", 2, time.Minute)
	if rl.Exceeded("pin", 2) {
		t.Error("one failure should not exceed a limit of 2")
	}
	rl.Allow("pin", 2, time.Minute)
	if !rl.Exceeded("pin", 2) {
		t.Error("two failures should exceed a limit of 2")
	}

	rl.Reset("pin")
	if rl.Exceeded("pin", 2) {
		t.Error("reset should clear the key")
	}

	rl.Allow("pin", 1, time.Minute)
	*now = now.Add(2 * time.Minute)
	if rl.Exceeded("pin", 1) {
		t.Error("expired window should not count")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, now := fakeClockLimiter()

	rl.Allow("expired", 5, time.Second)
	*now = now.Add(time.Minute)
	rl.Allow("active", 5, time.Hour)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["expired"]; ok {
		t.Error("expired entry should have been cleaned up")
	}
	if _, ok := rl.entries["active"]; !ok {
		t.Error("active entry should still exist")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := fakeClockLimiter()
	keyFunc := func(r *http.Request) string { return "test" }

	handler := RateLimit(rl, keyFunc, 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}
