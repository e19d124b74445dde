package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordLogin_SplitsByResult はログイン成功・失敗が別系列で数えられることを検証する。
func TestRecordLogin_SplitsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin("local", true)
	c.RecordLogin("local", true)
	c.RecordLogin("local", false)

	if v := findMetric(t, reg, "livenex_login_total", map[string]string{"method": "local", "result": "success"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("success = %v, want 2", v)
	}
	if v := findMetric(t, reg, "livenex_login_total", map[string]string{"method": "local", "result": "failure"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("failure = %v, want 1", v)
	}
}

func TestRecordOAuthFailure_LabelsProviderAndReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOAuthFailure("google", "state_mismatch")

	m := findMetric(t, reg, "livenex_oauth_failure_total", map[string]string{"provider": "google", "reason": "state_mismatch"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("oauth_failure_total = %v, want 1", v)
	}
}

func TestRecordIdentityLinked_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIdentityLinked("twitch", "attach")

	m := findMetric(t, reg, "livenex_identity_link_total", map[string]string{"provider": "twitch", "outcome": "attach"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("identity_link_total = %v, want 1", v)
	}
}

func TestRecordSessionRejected_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionRejected("signature_invalid")

	m := findMetric(t, reg, "livenex_session_rejected_total", map[string]string{"kind": "signature_invalid"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("session_rejected_total = %v, want 1", v)
	}
}

func TestRecordPaymentConfirmed_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPaymentConfirmed()

	if v := findMetric(t, reg, "livenex_payment_confirmed_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("payment_confirmed_total = %v, want 1", v)
	}
}

// TestRecordHTTPStatus_LabelsByCode はステータスコードごとにラベルが付くことを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	if v := findMetric(t, reg, "livenex_http_status_total", map[string]string{"status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("status 200 = %v, want 2", v)
	}
	if v := findMetric(t, reg, "livenex_http_status_total", map[string]string{"status_code": "401"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("status 401 = %v, want 1", v)
	}
}

func TestRecordProviderLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderLatency("facebook", 250*time.Millisecond)

	h := findMetric(t, reg, "livenex_provider_exchange_seconds", map[string]string{"provider": "facebook"}).GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() != 0.25 {
		t.Errorf("sample sum = %v, want 0.25", h.GetSampleSum())
	}
}

func TestRecordCleanupDeleted_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCleanupDeleted("revoked_sessions", 3)
	c.RecordCleanupDeleted("revoked_sessions", 4)

	m := findMetric(t, reg, "livenex_cleanup_deleted_total", map[string]string{"target": "revoked_sessions"})
	if v := m.GetCounter().GetValue(); v != 7 {
		t.Errorf("cleanup_deleted_total = %v, want 7", v)
	}
}

// TestNewCollector_DoubleRegister_Panics は同一レジストリへの二重登録でpanicすることを検証する。
func TestNewCollector_DoubleRegister_Panics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}
