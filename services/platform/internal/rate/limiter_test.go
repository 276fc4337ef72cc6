package rate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func newLimitedRouter(l Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", Middleware(l, "login", func() time.Time { return time.Unix(0, 0) }, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareLimitsByClientIP(t *testing.T) {
	r := newLimitedRouter(NewMemory(1, time.Minute))

	do := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", w.Code)
	}
	w := do("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", w.Header().Get("Retry-After"))
	}
	if w := do("10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("expected other ip allowed, got %d", w.Code)
	}
}

func TestMiddlewareFailsOpen(t *testing.T) {
	r := newLimitedRouter(failingLimiter{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected limiter error to fail open, got %d", w.Code)
	}
}
