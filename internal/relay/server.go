// ABOUTME: Development relay standing in for the meeting-bot service
// ABOUTME: Serves bot-control routes and streams PCM16 chunks over websocket
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/streamtap/internal/discovery"
	"github.com/harperreed/streamtap/internal/version"
	"github.com/harperreed/streamtap/pkg/audio"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Shape modes for audio records
const (
	ShapesAlternate = "alternate"
	ShapesFlat      = "flat"
	ShapesNested    = "nested"
)

const writeDeadline = 10 * time.Second

// Config holds relay configuration
type Config struct {
	Address   string
	Name      string
	AudioFile string  // WAV, MP3 or FLAC; empty streams a tone
	ToneHz    float64 // tone frequency when AudioFile is empty
	Format    audio.Format
	Chunk     time.Duration // audio per record, default 100ms
	Heartbeat time.Duration // default 5s; negative disables
	Shapes    string        // alternate, flat or nested
	Admit     time.Duration // waiting-room delay for new bots
	Advertise bool          // announce over mDNS
	Logger    *zap.SugaredLogger

	// OpenSource overrides how each stream gets its audio
	OpenSource func() (Source, error)
}

// Server is the relay
type Server struct {
	config   Config
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	bots     *registry
	source   string

	started   time.Time
	closing   chan struct{}
	closeOnce sync.Once
	streams   sync.WaitGroup
}

// BotInfo describes one bot for status displays
type BotInfo struct {
	BotID   string
	Name    string
	Status  string
	Streams int
}

// Status is a point-in-time view of the relay
type Status struct {
	Name    string
	Address string
	Source  string
	Uptime  time.Duration
	Bots    []BotInfo
}

// New creates a relay
func New(config Config) (*Server, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat()
	}
	if err := config.Format.Validate(); err != nil {
		return nil, err
	}
	if config.Chunk <= 0 {
		config.Chunk = defaultChunkMs * time.Millisecond
	}
	if config.Heartbeat == 0 {
		config.Heartbeat = 5 * time.Second
	}
	switch config.Shapes {
	case "":
		config.Shapes = ShapesAlternate
	case ShapesAlternate, ShapesFlat, ShapesNested:
	default:
		return nil, fmt.Errorf("unknown shape mode %q", config.Shapes)
	}
	if config.Name == "" {
		config.Name = "streamtap-relay"
	}
	if config.ToneHz <= 0 {
		config.ToneHz = 440
	}
	source := "custom"
	if config.OpenSource == nil {
		source = config.AudioFile
		if source == "" {
			source = fmt.Sprintf("Test Tone %.0fHz", config.ToneHz)
		}
		file, hz, rate := config.AudioFile, config.ToneHz, config.Format.SampleRate
		config.OpenSource = func() (Source, error) {
			if file == "" {
				return NewToneSource(hz, rate), nil
			}
			return OpenSource(file, hz)
		}
	}

	// Local development tool: accept any origin
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	s := &Server{
		config:   config,
		logger:   config.Logger,
		upgrader: upgrader,
		mux:      http.NewServeMux(),
		bots:     newRegistry(config.Admit),
		source:   source,
		started:  time.Now(),
		closing:  make(chan struct{}),
	}

	s.mux.HandleFunc("GET /telehealth/health", s.handleHealth)
	s.mux.HandleFunc("POST /telehealth/bot", s.handleCreateBot)
	s.mux.HandleFunc("GET /telehealth/bot/{id}", s.handleBotStatus)
	s.mux.HandleFunc("DELETE /telehealth/bot/{id}", s.handleEndBot)
	s.mux.HandleFunc("GET /stream", s.handleStream)
	return s, nil
}

// Handler returns the relay routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx ends, then closes open streams
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	httpServer := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Infow("relay listening", "address", ln.Addr().String(), "format", s.config.Format.SampleRate)
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.config.Advertise {
		mdns := discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        ln.Addr().(*net.TCPAddr).Port,
			Logger:      s.logger,
		})
		if err := mdns.Advertise(); err != nil {
			s.logger.Warnw("mDNS advertisement failed", "error", err)
		} else {
			defer mdns.Stop()
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		s.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("relay shutdown error", "error", err)
		}
		s.streams.Wait()
		return nil
	})

	return g.Wait()
}

// Status reports the relay and its bots
func (s *Server) Status() Status {
	st := Status{
		Name:    s.config.Name,
		Address: s.config.Address,
		Source:  s.source,
		Uptime:  time.Since(s.started),
	}
	for _, b := range s.bots.list() {
		st.Bots = append(st.Bots, BotInfo{
			BotID:   b.BotID,
			Name:    b.Name,
			Status:  string(b.Status),
			Streams: b.streams,
		})
	}
	return st
}

// Close ends all open streams
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"name":    s.config.Name,
		"version": version.Version,
	})
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MeetingURL string `json:"meetingUrl"`
		BotName    string `json:"botName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MeetingURL == "" {
		http.Error(w, "meetingUrl is required", http.StatusBadRequest)
		return
	}

	b := s.bots.create(req.MeetingURL, req.BotName)
	s.logger.Infow("bot created", "bot_id", b.BotID, "id", b.ID, "meeting_url", req.MeetingURL, "name", req.BotName)
	writeData(w, http.StatusCreated, map[string]string{"botId": b.BotID, "id": b.ID})
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bots.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown bot", http.StatusNotFound)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"status":    b.Status,
		"timestamp": b.Updated.UnixMilli(),
	})
}

func (s *Server) handleEndBot(w http.ResponseWriter, r *http.Request) {
	if !s.bots.end(r.PathValue("id")) {
		http.Error(w, "unknown bot", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("botId")
	if botID == "" {
		http.Error(w, "botId is required", http.StatusBadRequest)
		return
	}
	if _, ok := s.bots.get(botID); !ok {
		http.Error(w, "unknown bot", http.StatusNotFound)
		return
	}

	src, err := s.config.OpenSource()
	if err != nil {
		s.logger.Errorw("failed to open audio source", "error", err)
		http.Error(w, "audio source unavailable", http.StatusInternalServerError)
		return
	}
	defer src.Close()

	streamer, err := NewStreamer(src, s.config.Format, s.config.Chunk)
	if err != nil {
		s.logger.Errorw("failed to create streamer", "error", err)
		http.Error(w, "audio source unavailable", http.StatusInternalServerError)
		return
	}

	select {
	case <-s.closing:
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	s.streams.Add(1)
	defer s.streams.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	if !s.bots.streamStarted(botID) {
		s.closeWith(conn, websocket.ClosePolicyViolation, "bot has left the call")
		return
	}
	defer s.bots.streamEnded(botID)

	logger := s.logger.With("bot_id", botID, "remote", r.RemoteAddr)
	logger.Infow("stream opened", "source", src.Name(), "chunk", s.config.Chunk)

	reason := s.stream(conn, botID, streamer)
	logger.Infow("stream closed", "reason", reason, "chunks", streamer.Produced())
}

// stream writes records until the peer leaves, the bot ends or the relay closes
func (s *Server) stream(conn *websocket.Conn, botID string, streamer *Streamer) string {
	// Drain reads so close frames from the peer are processed
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	start := map[string]any{
		"type":       "stream_start",
		"botId":      botID,
		"sampleRate": s.config.Format.SampleRate,
		"channels":   1,
		"chunkMs":    s.config.Chunk.Milliseconds(),
	}
	if err := s.writeJSON(conn, start); err != nil {
		return "write failed: " + err.Error()
	}

	chunks := time.NewTicker(s.config.Chunk)
	defer chunks.Stop()

	var heartbeat <-chan time.Time
	if s.config.Heartbeat > 0 {
		hb := time.NewTicker(s.config.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	var seq int64
	for {
		select {
		case <-peerGone:
			return "peer closed"

		case <-s.closing:
			s.closeWith(conn, websocket.CloseGoingAway, "relay shutting down")
			return "relay shutting down"

		case now := <-heartbeat:
			if err := s.writeJSON(conn, map[string]any{"type": "heartbeat", "timestamp": now.UnixMilli()}); err != nil {
				return "write failed: " + err.Error()
			}

		case <-chunks.C:
			if b, ok := s.bots.get(botID); !ok || b.Status.Terminal() {
				s.closeWith(conn, websocket.CloseNormalClosure, "call ended")
				return "call ended"
			}

			pcm, err := streamer.Next()
			if err != nil {
				s.closeWith(conn, websocket.CloseInternalServerErr, "source failed")
				return "source failed: " + err.Error()
			}

			if err := s.writeJSON(conn, s.record(seq, pcm)); err != nil {
				return "write failed: " + err.Error()
			}
			seq++
		}
	}
}

// record wraps one chunk in the flat or nested shape
func (s *Server) record(seq int64, pcm []byte) any {
	payload := base64.StdEncoding.EncodeToString(pcm)

	nested := s.config.Shapes == ShapesNested || (s.config.Shapes == ShapesAlternate && seq%2 == 1)
	if nested {
		return map[string]any{
			"event": "audio_mixed_raw.data",
			"msg": map[string]any{
				"data": map[string]any{
					"data": map[string]any{
						"buffer": payload,
					},
				},
			},
		}
	}
	return map[string]any{
		"type":         "pcm_chunk",
		"seq":          seq,
		"bufferBase64": payload,
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
