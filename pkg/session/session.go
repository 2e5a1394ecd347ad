// ABOUTME: Session state machine and pipeline wiring
// ABOUTME: Builds the audio graph on Prepare, streams on Connect, releases on Stop
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/streamtap/internal/metrics"
	"github.com/harperreed/streamtap/pkg/analyzer"
	"github.com/harperreed/streamtap/pkg/audio"
	"github.com/harperreed/streamtap/pkg/audio/decode"
	"github.com/harperreed/streamtap/pkg/audio/output"
	"github.com/harperreed/streamtap/pkg/bus"
	"github.com/harperreed/streamtap/pkg/ingest"
	"github.com/harperreed/streamtap/pkg/playback"
	"github.com/harperreed/streamtap/pkg/recorder"
	"github.com/harperreed/streamtap/pkg/waveform"
	"go.uber.org/zap"
)

// Transport is an open inbound stream
type Transport interface {
	Close() error
}

// DialFunc opens the inbound stream and delivers records to handler
type DialFunc func(ctx context.Context, cfg ingest.Config, handler ingest.Handler) (Transport, error)

// Config configures a session
type Config struct {
	Format audio.Format

	// Output builds the device sink on Prepare; nil uses a silent output
	Output func() (output.Output, error)
	Volume float64

	Analyzer        analyzer.Config
	WaveformSeconds float64
	WaveformFPS     int

	RecorderCodec     string
	RecorderTimeslice time.Duration
	RecorderBitrate   int

	// OnSegment is called for every recorded segment
	OnSegment func(seg *recorder.Segment)

	// OnPCM is called with every decoded buffer
	OnPCM func(buf audio.Buffer)

	// OnStop is called once when the session stops; reason is nil for a
	// requested stop and the transport error for a lost connection
	OnStop func(reason error)

	// Header is sent with the websocket handshake
	Header http.Header

	Dial    DialFunc
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
}

// Stats is a point-in-time view of the pipeline
type Stats struct {
	ID        string
	State     string
	Received  int64
	Ignored   int64
	Malformed int64
	Dropped   int64
	Decoded   int64
	Segments  int64
	Cursor    time.Duration
	Lead      time.Duration
	Playback  playback.Stats
	Recorder  recorder.Stats
}

// Session is one stream's pipeline
type Session struct {
	id     string
	cfg    Config
	logger *zap.SugaredLogger

	// mu guards resources and transitions. Handlers and pulls hold the read
	// lock; Stop takes the write lock so no handler runs on released resources.
	mu    sync.RWMutex
	state atomic.Int32

	decoder   *decode.PCM16Decoder
	timeline  *playback.Timeline
	scheduler *playback.Scheduler
	analyzer  *analyzer.Analyzer
	ring      *waveform.Ring
	renderer  *waveform.Renderer
	recorder  *recorder.Recorder
	bus       *bus.Bus
	transport Transport
	tapped    bool

	seq       atomic.Uint64
	received  atomic.Int64
	ignored   atomic.Int64
	malformed atomic.Int64
	dropped   atomic.Int64
	decoded   atomic.Int64
	segments  atomic.Int64
}

// New creates an idle session
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Format.SampleRate == 0 {
		cfg.Format = audio.DefaultFormat()
	}
	if cfg.Analyzer.Size == 0 {
		cfg.Analyzer = analyzer.DefaultConfig()
	}
	if cfg.WaveformSeconds <= 0 {
		cfg.WaveformSeconds = 2
	}
	if cfg.WaveformFPS <= 0 {
		cfg.WaveformFPS = 30
	}
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, c ingest.Config, h ingest.Handler) (Transport, error) {
			return ingest.Dial(ctx, c, h)
		}
	}

	id := uuid.New().String()
	s := &Session{
		id:     id,
		cfg:    cfg,
		logger: cfg.Logger.With("session_id", id),
	}
	s.setState(Idle)
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	s.cfg.Metrics.SetState(state.String(), stateNames())
}

// Prepare builds the local audio resources and starts the recorder. It must
// be called from an explicit caller action before Connect. Preparing an
// already prepared session is a no-op; preparing a stopped one builds fresh
// resources.
func (s *Session) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case Prepared:
		return nil
	case Idle, Stopped:
	default:
		return fmt.Errorf("%w: cannot prepare while %s", ErrInvalidState, s.State())
	}

	if err := s.build(); err != nil {
		return err
	}

	s.setState(Prepared)
	if m := s.cfg.Metrics; m != nil {
		m.SessionsStarted.Inc()
	}
	s.logger.Infow("session prepared",
		"sample_rate", s.cfg.Format.SampleRate,
		"recorder", s.recorder.MimeType())
	return nil
}

// build constructs the graph bottom-up: decoder, timeline and scheduler,
// analyzer and ring, recorder, then the bus with the device attached
func (s *Session) build() (err error) {
	decoder, err := decode.NewPCM16(s.cfg.Format)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	timeline := playback.NewTimeline()
	scheduler := playback.NewScheduler(timeline, s.cfg.Format.SampleRate, s.logger)

	an, err := analyzer.New(s.cfg.Analyzer)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	ring := waveform.NewRing(waveform.CapacityFor(s.cfg.Format.SampleRate, s.cfg.WaveformSeconds))

	rec, err := recorder.Start(recorder.Config{
		Format:    s.cfg.Format,
		Codec:     s.cfg.RecorderCodec,
		Timeslice: s.cfg.RecorderTimeslice,
		Bitrate:   s.cfg.RecorderBitrate,
		Logger:    s.logger,
		OnSegment: s.handleSegment,
		OnError:   s.handleEncoderError,
	})
	if err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	b := bus.New(timeline, bus.Config{Format: s.cfg.Format, Gain: s.cfg.Volume, Logger: s.logger})

	defer func() {
		if err != nil {
			_ = b.Teardown()
			_ = rec.Stop()
			_ = timeline.Close()
		}
	}()

	var out output.Output
	if s.cfg.Output != nil {
		out, err = s.cfg.Output()
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
	} else {
		out = output.NewSilent(0)
	}

	if err = b.AttachOutput(out); err != nil {
		return err
	}

	s.decoder = decoder
	s.timeline = timeline
	s.scheduler = scheduler
	s.analyzer = an
	s.ring = ring
	s.renderer = waveform.NewRenderer(ring, s.cfg.WaveformFPS)
	s.recorder = rec
	s.bus = b
	s.tapped = false
	s.seq.Store(0)
	for _, c := range []*atomic.Int64{&s.received, &s.ignored, &s.malformed, &s.dropped, &s.decoded, &s.segments} {
		c.Store(0)
	}
	return nil
}

// Connect wires the analyzer and encoder taps and opens the transport
func (s *Session) Connect(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	switch s.State() {
	case Prepared:
	case Idle, Stopped:
		s.mu.Unlock()
		return ErrNotPrepared
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot connect while %s", ErrInvalidState, s.State())
	}

	if !s.tapped {
		if err := s.bus.AttachAnalyzer(s.analyzer); err != nil {
			s.mu.Unlock()
			return err
		}
		if err := s.bus.AttachEncoderSink(s.recorder); err != nil {
			s.mu.Unlock()
			return err
		}
		s.tapped = true
	}
	s.setState(Connected)
	s.mu.Unlock()

	// Dial without the lock so display pulls keep flowing
	transport, err := s.cfg.Dial(ctx, ingest.Config{
		Endpoint: endpoint,
		Header:   s.cfg.Header,
		Logger:   s.logger,
		OnClose:  s.handleTransportClose,
	}, s)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.State() == Connected {
			s.setState(Prepared)
		}
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	if s.State() == Stopped {
		// Stopped while dialing
		_ = transport.Close()
		return fmt.Errorf("%w: stopped while connecting", ErrInvalidState)
	}

	s.transport = transport
	s.logger.Infow("session connected", "endpoint", endpoint)
	return nil
}

// HandleMessage runs one transport record through the pipeline:
// parse, decode, waveform ring, playback scheduler. It is a no-op unless the
// session is connected or running.
func (s *Session) HandleMessage(data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.State()
	if state != Connected && state != Running {
		return
	}

	s.received.Add(1)
	m := s.cfg.Metrics
	if m != nil {
		m.MessagesReceived.Inc()
	}

	msg, err := ingest.Parse(data)
	if err != nil {
		s.malformed.Add(1)
		if m != nil {
			m.MessagesMalformed.Inc()
		}
		s.logger.Debugw("dropping malformed record", "error", err, "bytes", len(data))
		return
	}
	if !msg.HasPayload() {
		s.ignored.Add(1)
		if m != nil {
			m.MessagesIgnored.Inc()
		}
		return
	}

	samples, err := s.decoder.DecodeBase64(msg.Payload)
	if err != nil || len(samples) == 0 {
		s.dropped.Add(1)
		if m != nil {
			m.ChunksDropped.Inc()
		}
		if err != nil {
			s.logger.Debugw("dropping undecodable chunk", "error", err, "shape", msg.Shape.String())
		}
		return
	}

	s.state.CompareAndSwap(int32(Connected), int32(Running))

	buf := audio.Buffer{
		Seq:     s.seq.Add(1) - 1,
		Samples: samples,
		Format:  s.cfg.Format,
	}
	s.decoded.Add(1)
	if m != nil {
		m.ChunksDecoded.Inc()
	}

	s.ring.Push(samples)

	sub, err := s.scheduler.Submit(buf)
	if m != nil {
		if err != nil {
			m.SubmissionFailures.Inc()
		} else if !sub.Skipped {
			m.Submissions.Inc()
		}
		if sub.CatchUp {
			m.CatchUps.Inc()
		}
		m.SetLead(s.scheduler.Lead().Seconds())
	}

	if s.cfg.OnPCM != nil {
		s.cfg.OnPCM(buf)
	}
}

func (s *Session) handleSegment(seg *recorder.Segment) {
	s.segments.Add(1)
	s.cfg.Metrics.ObserveSegment(seg.Size())
	if s.cfg.OnSegment != nil {
		s.cfg.OnSegment(seg)
	}
}

func (s *Session) handleEncoderError(index int, err error) {
	if m := s.cfg.Metrics; m != nil {
		m.EncoderErrors.Inc()
	}
}

func (s *Session) handleTransportClose(err error) {
	if err == nil {
		return
	}
	s.logger.Warnw("transport lost, stopping session", "error", err)
	_ = s.stop(err)
}

// Stop releases every resource that exists. Calling it again, or on a
// session that never prepared, is a no-op.
func (s *Session) Stop() error {
	return s.stop(nil)
}

func (s *Session) stop(reason error) error {
	s.mu.Lock()
	if s.State() == Stopped {
		s.mu.Unlock()
		return nil
	}

	transport, b, rec, timeline := s.transport, s.bus, s.recorder, s.timeline
	s.transport = nil
	s.bus = nil
	s.recorder = nil
	s.timeline = nil
	s.scheduler = nil
	s.decoder = nil
	s.analyzer = nil
	s.ring = nil
	s.renderer = nil
	s.setState(Stopped)
	s.mu.Unlock()

	// Handlers now see Stopped and return before touching resources
	var errs []error
	if transport != nil {
		if err := transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	if b != nil {
		if err := b.Teardown(); err != nil {
			errs = append(errs, err)
		}
	}
	if rec != nil {
		if err := rec.Stop(); err != nil && !errors.Is(err, recorder.ErrStopped) {
			errs = append(errs, fmt.Errorf("stop recorder: %w", err))
		}
		rec.ClearLatest()
	}
	if timeline != nil {
		_ = timeline.Close()
	}

	if m := s.cfg.Metrics; m != nil {
		m.SessionsStopped.Inc()
	}
	s.logger.Infow("session stopped",
		"received", s.received.Load(),
		"decoded", s.decoded.Load(),
		"segments", s.segments.Load(),
		"reason", reason)

	if s.cfg.OnStop != nil {
		s.cfg.OnStop(reason)
	}
	return errors.Join(errs...)
}

// Frequency returns the analyzer magnitudes; all zero when there is no signal
func (s *Session) Frequency() []uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.analyzer == nil {
		return make([]uint8, s.cfg.Analyzer.Size/2)
	}
	return s.analyzer.Frequency()
}

// Waveform renders the waveform history into width x height
func (s *Session) Waveform(width, height int) waveform.Drawable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ring == nil {
		return waveform.Drawable{Width: width, Height: height, CenterY: float64(height) / 2}
	}
	return s.ring.Render(width, height)
}

// WaveformFrame renders only when a frame is due at the configured FPS
func (s *Session) WaveformFrame(now time.Time, width, height int) (waveform.Drawable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.renderer == nil {
		return waveform.Drawable{Width: width, Height: height, CenterY: float64(height) / 2}, true
	}
	return s.renderer.Frame(now, width, height)
}

// LatestSegment returns the most recent recorded segment, or nil
func (s *Session) LatestSegment() *recorder.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.recorder == nil {
		return nil
	}
	return s.recorder.Latest()
}

// SegmentCount returns the number of segments recorded since Prepare or Clear
func (s *Session) SegmentCount() int64 {
	return s.segments.Load()
}

// Clear resets the waveform history, segment count and latest segment
func (s *Session) Clear() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ring != nil {
		s.ring.Clear()
	}
	if s.recorder != nil {
		s.recorder.ClearLatest()
	}
	s.segments.Store(0)
}

// SetVolume sets the audible gain, 0..1
func (s *Session) SetVolume(volume float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.bus != nil {
		s.bus.SetGain(volume)
	}
}

// Stats returns pipeline statistics
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		ID:        s.id,
		State:     s.State().String(),
		Received:  s.received.Load(),
		Ignored:   s.ignored.Load(),
		Malformed: s.malformed.Load(),
		Dropped:   s.dropped.Load(),
		Decoded:   s.decoded.Load(),
		Segments:  s.segments.Load(),
	}
	if s.scheduler != nil {
		st.Playback = s.scheduler.Stats()
		st.Cursor = s.scheduler.Cursor()
		st.Lead = s.scheduler.Lead()
	}
	if s.recorder != nil {
		st.Recorder = s.recorder.Stats()
	}
	return st
}

// RingFilled returns the number of samples in the waveform history
func (s *Session) RingFilled() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ring == nil {
		return 0
	}
	return s.ring.Filled()
}
