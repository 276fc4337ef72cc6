package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReadinessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := NewManager(false)
	var dbErr error
	m.AddCheck("store", func(context.Context) error { return dbErr })

	r := gin.New()
	r.GET("/readyz", ReadinessHandler(m))

	do := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return w.Code
	}

	if code := do(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", code)
	}

	m.SetReady(true)
	if code := do(); code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", code)
	}

	dbErr = errors.New("connection refused")
	if code := do(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on failing check, got %d", code)
	}
}

func TestProbeCollectsEveryFailure(t *testing.T) {
	m := NewManager(true)
	m.AddCheck("store", func(context.Context) error { return errors.New("down") })
	m.AddCheck("cache", func(context.Context) error { return nil })
	m.AddCheck("broker", func(context.Context) error { return errors.New("no leader") })

	failed := m.Probe(context.Background())
	if len(failed) != 2 || failed["store"] != "down" || failed["broker"] != "no leader" {
		t.Fatalf("unexpected failures: %v", failed)
	}
}
