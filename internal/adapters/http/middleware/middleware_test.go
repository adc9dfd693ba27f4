package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestRateLimiter_Allow verifies bucket exhaustion and refill.
func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2023, 8, 10, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("third request within interval allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other client affected by exhausted bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("request after refill rejected")
	}
}

// TestRateLimiter_SteadyTrafficBelowLimit verifies partial intervals are not discarded.
func TestRateLimiter_SteadyTrafficBelowLimit(t *testing.T) {
	now := time.Date(2023, 8, 10, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("1.2.3.4") {
			allowed++
		}
		now = now.Add(900 * time.Millisecond)
	}
	if allowed != 10 {
		t.Errorf("allowed %d of 10 requests at 1.1 req/s under a 2 req/s limit", allowed)
	}
}

// TestRateLimiter_Sweep verifies idle clients are forgotten.
func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2023, 8, 10, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(visitorTTL / 2)
	rl.Allow("active")
	now = now.Add(visitorTTL/2 + time.Second)

	if got := rl.Sweep(); got != 1 {
		t.Errorf("Sweep() = %d, want 1", got)
	}
	if _, ok := rl.visitors["active"]; !ok {
		t.Error("active client swept")
	}
}

// TestRateLimit_KeysByHost verifies the port does not split a client's bucket.
func TestRateLimit_KeysByHost(t *testing.T) {
	handler := RateLimit(NewRateLimiter(1, time.Hour))(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5001"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

// TestSecurityHeaders verifies the headers are set on every response.
func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(okHandler)).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	for _, h := range []string{"Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options", "Referrer-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

// TestCSRF verifies form posts need a token while JSON requests are exempt.
func TestCSRF(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	handler := CSRF(key, false, nil)(http.HandlerFunc(okHandler))

	form := httptest.NewRequest("POST", "/", strings.NewReader("a=b"))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, form)
	if rr.Code != http.StatusForbidden {
		t.Errorf("form without token: status = %d, want 403", rr.Code)
	}

	js := httptest.NewRequest("POST", "/", strings.NewReader("{}"))
	js.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, js)
	if rr.Code != http.StatusOK {
		t.Errorf("json request: status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("safe method: status = %d, want 200", rr.Code)
	}
}

// TestChain_Order verifies the last middleware listed runs first.
func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(okHandler), mark("inner"), mark("outer"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("order = %v, want [outer inner]", order)
	}
}
