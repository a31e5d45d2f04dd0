// Package middleware provides HTTP middleware for the plugin host API.
// This file tests the rate limiting functionality to ensure it correctly
// prevents brute force attacks while allowing legitimate traffic.
//
// Tests validate:
// - Requests are allowed up to the configured burst
// - Requests are blocked once the burst is exhausted
// - The limiter refills over time and distinguishes keys by client IP
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/run_tool", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/run_tool", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_AllowsUpToBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	r := newTestRouter(rl)

	for i := 0; i < 3; i++ {
		if code := doRequest(r, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	r := newTestRouter(rl)

	for i := 0; i < 2; i++ {
		doRequest(r, "10.0.0.2")
	}
	if code := doRequest(r, "10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once burst is exhausted, got %d", code)
	}
}

func TestRateLimiter_PerKeyIsolation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	r := newTestRouter(rl)

	if code := doRequest(r, "10.0.0.3"); code != http.StatusOK {
		t.Fatalf("first caller should succeed, got %d", code)
	}
	if code := doRequest(r, "10.0.0.4"); code != http.StatusOK {
		t.Errorf("a distinct IP should have its own bucket, got %d", code)
	}
	if code := doRequest(r, "10.0.0.3"); code != http.StatusTooManyRequests {
		t.Errorf("first caller should now be limited, got %d", code)
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(50, 1) // 50/s refill, so ~20ms per token
	r := newTestRouter(rl)

	doRequest(r, "10.0.0.5")
	if code := doRequest(r, "10.0.0.5"); code != http.StatusTooManyRequests {
		t.Fatalf("expected immediate second request to be limited, got %d", code)
	}

	time.Sleep(40 * time.Millisecond)
	if code := doRequest(r, "10.0.0.5"); code != http.StatusOK {
		t.Errorf("expected request to succeed after refill, got %d", code)
	}
}

func newStrictTestRouter(requestsPerMinute int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	rl := &RateLimiter{}
	r := gin.New()
	r.Use(rl.StrictMiddleware(requestsPerMinute))
	r.POST("/install", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doPost(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/install", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

// StrictMiddleware's first cut built a fresh limiter inside the handler
// closure on every call, so state never accumulated across requests and
// the limit never actually tripped. This pins the fix: the same caller
// sharing one persistent bucket across calls.
func TestStrictMiddleware_AccumulatesStateAcrossRequests(t *testing.T) {
	r := newStrictTestRouter(2)

	for i := 0; i < 2; i++ {
		if code := doPost(r, "10.0.1.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := doPost(r, "10.0.1.1"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the per-minute budget is exhausted, got %d", code)
	}
}

func TestStrictMiddleware_PerKeyIsolation(t *testing.T) {
	r := newStrictTestRouter(1)

	if code := doPost(r, "10.0.1.2"); code != http.StatusOK {
		t.Fatalf("first caller should succeed, got %d", code)
	}
	if code := doPost(r, "10.0.1.3"); code != http.StatusOK {
		t.Errorf("a distinct IP should have its own bucket, got %d", code)
	}
	if code := doPost(r, "10.0.1.2"); code != http.StatusTooManyRequests {
		t.Errorf("first caller should now be limited, got %d", code)
	}
}
