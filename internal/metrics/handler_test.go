package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return w.Code, string(body)
}

// TestHandler_ExposesCleanupCounter はワーカーが記録した削除件数がスクレイプ結果に含まれることを検証する。
func TestHandler_ExposesCleanupCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCleanupDeleted("unpaid_orders", 3)

	code, body := scrape(t, Handler(reg), "/anything")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if !strings.Contains(body, `livenex_cleanup_deleted_total{target="unpaid_orders"} 3`) {
		t.Errorf("body should contain cleanup counter, got:\n%s", body)
	}
}

// TestSetupMetricsRoute_OnlyServesMetricsPath はワーカー用muxが/metrics以外を404にすることを検証する。
func TestSetupMetricsRoute_OnlyServesMetricsPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordPaymentConfirmed()

	mux := SetupMetricsRoute(reg)

	code, body := scrape(t, mux, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want %d", code, http.StatusOK)
	}
	if !strings.Contains(body, "livenex_payment_confirmed_total 1") {
		t.Errorf("body should contain payment counter, got:\n%s", body)
	}

	if code, _ := scrape(t, mux, "/health"); code != http.StatusNotFound {
		t.Errorf("/health status = %d, want %d", code, http.StatusNotFound)
	}
}
