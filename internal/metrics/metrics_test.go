// ABOUTME: Tests for pipeline metrics
// ABOUTME: Tests registration, nil safety and exposition
package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if pb.Counter != nil {
		return pb.GetCounter().GetValue()
	}
	return pb.GetGauge().GetValue()
}

func TestNewIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration
	a := New()
	b := New()

	a.MessagesReceived.Inc()

	if got := value(t, a.MessagesReceived); got != 1 {
		t.Errorf("a.MessagesReceived = %v, want 1", got)
	}
	if got := value(t, b.MessagesReceived); got != 0 {
		t.Errorf("b.MessagesReceived = %v, want 0", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.SetState("running", []string{"idle", "running"})
	m.ObserveSegment(10)
	m.SetLead(0.2)

	if m.Registry() != nil {
		t.Error("nil metrics returned a registry")
	}
}

func TestSetState(t *testing.T) {
	m := New()
	all := []string{"idle", "prepared", "running"}
	m.SetState("prepared", all)

	if got := value(t, m.SessionState.WithLabelValues("prepared")); got != 1 {
		t.Errorf("prepared = %v, want 1", got)
	}
	if got := value(t, m.SessionState.WithLabelValues("idle")); got != 0 {
		t.Errorf("idle = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSegment(2048)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "streamtap_segments_emitted_total 1") {
		t.Errorf("exposition missing segment counter:\n%s", body)
	}
}
