package httpmiddleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AfshinJalili/sentinel/libs/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	if generated == "" || w.Body.String() != generated {
		t.Fatalf("expected generated request id in header and context, got %q / %q", generated, w.Body.String())
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected inbound request id to be kept")
	}
}

func TestLoggerRecordsMetricsWithoutQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	m := metrics.NewHTTP(prometheus.NewRegistry())

	r := gin.New()
	r.Use(RequestID(), Logger(logger, m))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42?name=secret", nil))

	if got := testutil.ToFloat64(m.RequestCount.WithLabelValues(http.MethodGet, "/items/:id", "204")); got != 1 {
		t.Fatalf("expected 1 request counted, got %v", got)
	}
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("access log leaked query string: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"path":"/items/:id"`) {
		t.Fatalf("expected route template in log, got %s", buf.String())
	}
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("expected error code in body, got %s", w.Body.String())
	}
}
