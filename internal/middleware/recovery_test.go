package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/livenex/internal/metrics"
)

type httpStatusCollector struct {
	metrics.Nop
	statuses []int
}

func (c *httpStatusCollector) RecordHTTPStatus(code int) { c.statuses = append(c.statuses, code) }

func TestRecoveryMiddleware_RecordsInternalErrorStatus(t *testing.T) {
	collector := &httpStatusCollector{}
	h := NewRecoveryMiddleware(slog.New(slog.DiscardHandler), collector)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user/me", nil))

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusInternalServerError {
		t.Errorf("recorded statuses = %v, want [500]", collector.statuses)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("panic value must not leak into the response")
	}
}

func TestRecoveryMiddleware_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := chimw.RequestID(NewRecoveryMiddleware(logger, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"request_id":"req-123"`) {
		t.Errorf("expected request_id in log, got %s", buf.String())
	}
}
