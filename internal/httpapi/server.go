// ABOUTME: HTTP API for the running player
// ABOUTME: Serves the latest recorded segment, session status and metrics
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/harperreed/streamtap/internal/metrics"
	"github.com/harperreed/streamtap/pkg/session"
	"go.uber.org/zap"
)

// SessionSource returns the live session, or nil
type SessionSource interface {
	Current() *session.Session
}

// Config configures the API server
type Config struct {
	Address string
	Prefix  string // segment filename prefix
	Source  SessionSource
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
}

// Server serves the player API
type Server struct {
	cfg    Config
	logger *zap.SugaredLogger
	mux    *http.ServeMux
}

// statusResponse is the /status body
type statusResponse struct {
	Active  bool           `json:"active"`
	Session *session.Stats `json:"session,omitempty"`
	Latest  *segmentInfo   `json:"latest_segment,omitempty"`
}

type segmentInfo struct {
	Index     int       `json:"index"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Bytes     int       `json:"bytes"`
	Duration  string    `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates the API server
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "recording"
	}

	s := &Server{cfg: cfg, logger: cfg.Logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /segments/latest", s.handleLatestSegment)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.Handle("GET /metrics", cfg.Metrics.Handler())
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx ends
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http api listening", "address", s.cfg.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) current() *session.Session {
	if s.cfg.Source == nil {
		return nil
	}
	return s.cfg.Source.Current()
}

func (s *Server) handleLatestSegment(w http.ResponseWriter, r *http.Request) {
	sess := s.current()
	if sess == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}

	seg := sess.LatestSegment()
	if seg == nil {
		http.Error(w, "no segment recorded yet", http.StatusNotFound)
		return
	}
	data := seg.Bytes()
	if data == nil {
		http.Error(w, "segment superseded", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", seg.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", seg.Filename(s.cfg.Prefix)))
	if _, err := w.Write(data); err != nil {
		s.logger.Debugw("segment download interrupted", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}

	if sess := s.current(); sess != nil {
		stats := sess.Stats()
		resp.Active = sess.State() != session.Stopped
		resp.Session = &stats

		if seg := sess.LatestSegment(); seg != nil {
			resp.Latest = &segmentInfo{
				Index:     seg.Index,
				Filename:  seg.Filename(s.cfg.Prefix),
				MimeType:  seg.MimeType,
				Bytes:     seg.Size(),
				Duration:  seg.Duration.String(),
				CreatedAt: seg.CreatedAt,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debugw("status write failed", "error", err)
	}
}
