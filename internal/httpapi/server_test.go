// ABOUTME: Tests for the HTTP API
// ABOUTME: Tests segment download, status and metrics routes
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/streamtap/internal/metrics"
	"github.com/harperreed/streamtap/pkg/audio/output"
	"github.com/harperreed/streamtap/pkg/ingest"
	"github.com/harperreed/streamtap/pkg/session"
)

type staticSource struct {
	s *session.Session
}

func (src staticSource) Current() *session.Session { return src.s }

type nopTransport struct{}

func (nopTransport) Close() error { return nil }

// recordingSession returns a running session that has emitted at least one segment
func recordingSession(t *testing.T) *session.Session {
	t.Helper()

	s := session.New(session.Config{
		Output:            func() (output.Output, error) { return output.NewSilent(5 * time.Millisecond), nil },
		RecorderCodec:     "pcm",
		RecorderTimeslice: 20 * time.Millisecond,
		Dial: func(ctx context.Context, cfg ingest.Config, handler ingest.Handler) (session.Transport, error) {
			return nopTransport{}, nil
		},
	})
	t.Cleanup(func() { _ = s.Stop() })

	if err := s.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := s.Connect(context.Background(), "ws://example"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for s.LatestSegment() == nil {
		if time.Now().After(deadline) {
			t.Fatal("no segment recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return s
}

func TestLatestSegmentWithoutSession(t *testing.T) {
	srv := New(Config{Source: staticSource{}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/latest", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLatestSegmentBeforeRecording(t *testing.T) {
	s := session.New(session.Config{})
	srv := New(Config{Source: staticSource{s}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/latest", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLatestSegmentDownload(t *testing.T) {
	s := recordingSession(t)
	srv := New(Config{Source: staticSource{s}, Prefix: "visit"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/latest", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, "attachment;") || !strings.Contains(disposition, "visit-") {
		t.Errorf("Content-Disposition = %q", disposition)
	}
	if rec.Header().Get("Content-Type") == "" {
		t.Error("missing Content-Type")
	}
	if rec.Body.Len() == 0 {
		t.Error("empty segment body")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name       string
		source     SessionSource
		wantActive bool
	}{
		{"no session", staticSource{}, false},
		{"idle session", staticSource{session.New(session.Config{})}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Config{Source: tt.source})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body statusResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Active != tt.wantActive {
				t.Errorf("Active = %v, want %v", body.Active, tt.wantActive)
			}
		})
	}
}

func TestStatusReportsSegment(t *testing.T) {
	s := recordingSession(t)
	srv := New(Config{Source: staticSource{s}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Session == nil || body.Session.State != "connected" {
		t.Errorf("Session = %+v, want connected", body.Session)
	}
	if body.Latest == nil || body.Latest.Bytes == 0 {
		t.Errorf("Latest = %+v, want a non-empty segment", body.Latest)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.SessionsStarted.Inc()
	srv := httptest.NewServer(New(Config{Metrics: m}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "streamtap_sessions_started_total 1") {
		t.Errorf("metrics body missing sessions counter:\n%s", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := New(Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
