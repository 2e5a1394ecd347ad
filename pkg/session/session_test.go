// ABOUTME: Tests for the session state machine
// ABOUTME: Tests transitions, message flow, teardown and the controller
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/streamtap/pkg/audio"
	"github.com/harperreed/streamtap/pkg/audio/output"
	"github.com/harperreed/streamtap/pkg/ingest"
)

type nullOutput struct {
	mu     sync.Mutex
	opened bool
	closed bool
}

func (o *nullOutput) Open(format audio.Format, src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = true
	return nil
}

func (o *nullOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

type fakeTransport struct {
	handler ingest.Handler
	onClose func(error)
	closed  int
}

func (t *fakeTransport) Close() error {
	t.closed++
	return nil
}

type harness struct {
	out       *nullOutput
	transport *fakeTransport
	stops     []error
	pcm       []audio.Buffer
}

func newTestSession(t *testing.T) (*Session, *harness) {
	t.Helper()
	h := &harness{out: &nullOutput{}}

	s := New(Config{
		Format:        audio.DefaultFormat(),
		Output:        func() (output.Output, error) { return h.out, nil },
		Volume:        1,
		RecorderCodec: "pcm",
		OnStop:        func(reason error) { h.stops = append(h.stops, reason) },
		OnPCM:         func(buf audio.Buffer) { h.pcm = append(h.pcm, buf) },
		Dial: func(ctx context.Context, cfg ingest.Config, handler ingest.Handler) (Transport, error) {
			h.transport = &fakeTransport{handler: handler, onClose: cfg.OnClose}
			return h.transport, nil
		},
	})
	t.Cleanup(func() { _ = s.Stop() })
	return s, h
}

func flat(samples int) []byte {
	data, _ := json.Marshal(map[string]string{
		"bufferBase64": base64.StdEncoding.EncodeToString(make([]byte, samples*2)),
	})
	return data
}

func nested(samples int) []byte {
	payload := base64.StdEncoding.EncodeToString(make([]byte, samples*2))
	return []byte(`{"msg":{"data":{"data":{"buffer":"` + payload + `"}}}}`)
}

func TestConnectBeforePrepare(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.Connect(context.Background(), "ws://example"); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("Connect() = %v, want ErrNotPrepared", err)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want idle", s.State())
	}
}

func TestLifecycle(t *testing.T) {
	s, h := newTestSession(t)

	if err := s.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := s.Prepare(); err != nil {
		t.Errorf("second Prepare: %v", err)
	}
	if s.State() != Prepared || !h.out.opened {
		t.Fatalf("State() = %v, output opened = %v", s.State(), h.out.opened)
	}

	if err := s.Connect(context.Background(), "ws://example"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.State() != Connected {
		t.Errorf("State() = %v, want connected", s.State())
	}
	if err := s.Connect(context.Background(), "ws://example"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Connect = %v, want ErrInvalidState", err)
	}
	if err := s.Prepare(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Prepare while connected = %v, want ErrInvalidState", err)
	}

	h.transport.handler.HandleMessage(flat(1600))
	if s.State() != Running {
		t.Errorf("State() = %v, want running after first chunk", s.State())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if h.transport.closed != 1 || !h.out.closed {
		t.Errorf("transport closed %d times, output closed = %v", h.transport.closed, h.out.closed)
	}

	if err := s.Connect(context.Background(), "ws://example"); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("Connect after Stop = %v, want ErrNotPrepared", err)
	}
}

func TestStopTwice(t *testing.T) {
	s, h := newTestSession(t)
	_ = s.Prepare()
	_ = s.Connect(context.Background(), "ws://example")

	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if h.transport.closed != 1 {
		t.Errorf("transport closed %d times, want 1", h.transport.closed)
	}
	if len(h.stops) != 1 || h.stops[0] != nil {
		t.Errorf("OnStop calls = %v, want one nil reason", h.stops)
	}
}

func TestStopFromIdle(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.Stop(); err != nil {
		t.Errorf("Stop from idle: %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
}

func TestPrepareAfterStopBuildsFreshResources(t *testing.T) {
	s, h := newTestSession(t)
	_ = s.Prepare()
	_ = s.Connect(context.Background(), "ws://example")
	h.transport.handler.HandleMessage(flat(1600))
	_ = s.Stop()

	if err := s.Prepare(); err != nil {
		t.Fatalf("Prepare after Stop: %v", err)
	}
	if s.RingFilled() != 0 || s.Stats().Decoded != 0 {
		t.Error("Prepare after Stop reused old state")
	}
}

func TestMessageFlow(t *testing.T) {
	s, h := newTestSession(t)
	_ = s.Prepare()
	_ = s.Connect(context.Background(), "ws://example")

	// Three 100ms chunks in both shapes with no delay
	h.transport.handler.HandleMessage(flat(1600))
	h.transport.handler.HandleMessage(nested(1600))
	h.transport.handler.HandleMessage(flat(1600))

	stats := s.Stats()
	if stats.Decoded != 3 || stats.Playback.Submitted != 3 {
		t.Errorf("Stats() = %+v, want 3 decoded and submitted", stats)
	}
	if stats.Cursor != 300*time.Millisecond {
		t.Errorf("Cursor = %v, want 300ms", stats.Cursor)
	}
	if s.RingFilled() != 4800 {
		t.Errorf("RingFilled() = %d, want 4800", s.RingFilled())
	}
	if len(h.pcm) != 3 || h.pcm[2].Seq != 2 {
		t.Errorf("OnPCM saw %d buffers", len(h.pcm))
	}
}

func TestIgnoredAndMalformedRecords(t *testing.T) {
	s, h := newTestSession(t)
	_ = s.Prepare()
	_ = s.Connect(context.Background(), "ws://example")
	h.transport.handler.HandleMessage(flat(100))
	before := s.RingFilled()

	h.transport.handler.HandleMessage([]byte(`{"type":"heartbeat"}`))
	h.transport.handler.HandleMessage([]byte(`not json`))
	h.transport.handler.HandleMessage([]byte(`{"bufferBase64":"!!!"}`))
	h.transport.handler.HandleMessage([]byte(`{"bufferBase64":"AA=="}`)) // one byte

	if s.RingFilled() != before {
		t.Errorf("RingFilled() = %d, want unchanged %d", s.RingFilled(), before)
	}
	stats := s.Stats()
	if stats.Ignored != 1 || stats.Malformed != 1 || stats.Dropped != 2 {
		t.Errorf("Stats() = %+v, want 1 ignored, 1 malformed, 2 dropped", stats)
	}
	if stats.Received != 5 {
		t.Errorf("Received = %d, want 5", stats.Received)
	}
}

func TestHandleMessageAfterStop(t *testing.T) {
	s, h := newTestSession(t)
	_ = s.Prepare()
	_ = s.Connect(context.Background(), "ws://example")
	_ = s.Stop()

	h.transport.handler.HandleMessage(flat(1600))

	if s.Stats().Received != 0 {
		t.Error("message handled after Stop")
	}
}

func TestTransportLossStopsSession(t *testing.T) {
	s, h := newTestSession(t)
	_ = s.Prepare()
	_ = s.Connect(context.Background(), "ws://example")

	lost := errors.New("connection reset")
	h.transport.onClose(lost)

	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if len(h.stops) != 1 || !errors.Is(h.stops[0], lost) {
		t.Errorf("OnStop reasons = %v, want transport error", h.stops)
	}
}

func TestPullsWithoutSignal(t *testing.T) {
	s, _ := newTestSession(t)

	freq := s.Frequency()
	if len(freq) != 128 {
		t.Fatalf("len(Frequency()) = %d, want 128", len(freq))
	}
	for _, v := range freq {
		if v != 0 {
			t.Fatal("Frequency() not zero before Prepare")
		}
	}
	if d := s.Waveform(80, 20); !d.Empty() || d.CenterY != 10 {
		t.Errorf("Waveform() = %+v, want center line only", d)
	}

	_ = s.Prepare()
	for _, v := range s.Frequency() {
		if v != 0 {
			t.Fatal("Frequency() not zero before any signal")
		}
	}
	if !s.Waveform(80, 20).Empty() {
		t.Error("Waveform() not empty before any signal")
	}
	if s.LatestSegment() != nil {
		t.Error("LatestSegment() not nil before recording")
	}
}

func TestClear(t *testing.T) {
	s, h := newTestSession(t)
	_ = s.Prepare()
	_ = s.Connect(context.Background(), "ws://example")
	h.transport.handler.HandleMessage(flat(1600))

	s.Clear()

	if s.RingFilled() != 0 || s.SegmentCount() != 0 {
		t.Error("Clear() did not reset history")
	}
}

func TestControllerReplacesSession(t *testing.T) {
	var transports []*fakeTransport
	c := NewController(Config{
		Output:        func() (output.Output, error) { return &nullOutput{}, nil },
		RecorderCodec: "pcm",
		Dial: func(ctx context.Context, cfg ingest.Config, handler ingest.Handler) (Transport, error) {
			tr := &fakeTransport{handler: handler}
			transports = append(transports, tr)
			return tr, nil
		},
	})

	first, err := c.Start(context.Background(), "ws://one")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := c.Start(context.Background(), "ws://two")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if first.State() != Stopped {
		t.Errorf("first session state = %v, want stopped", first.State())
	}
	if transports[0].closed != 1 {
		t.Error("first transport not closed")
	}
	if c.Current() != second || second.State() != Connected {
		t.Errorf("Current() state = %v", c.Current().State())
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.Current() != nil || second.State() != Stopped {
		t.Error("Stop left a live session")
	}
}

func TestControllerStartDialFailure(t *testing.T) {
	c := NewController(Config{
		Output:        func() (output.Output, error) { return &nullOutput{}, nil },
		RecorderCodec: "pcm",
		Dial: func(ctx context.Context, cfg ingest.Config, handler ingest.Handler) (Transport, error) {
			return nil, errors.New("refused")
		},
	})

	if _, err := c.Start(context.Background(), "ws://nowhere"); err == nil {
		t.Fatal("expected dial error")
	}
	if s := c.Current(); s == nil || s.State() != Stopped {
		t.Error("failed start left a live session")
	}
}

func TestEndToEndOverWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Let Connect return before the stream ends
		time.Sleep(50 * time.Millisecond)
		_ = conn.WriteMessage(websocket.TextMessage, flat(1600))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		_ = conn.WriteMessage(websocket.TextMessage, nested(1600))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	stopped := make(chan error, 1)
	s := New(Config{
		Output:        func() (output.Output, error) { return &nullOutput{}, nil },
		RecorderCodec: "pcm",
		OnStop:        func(reason error) { stopped <- reason },
	})
	if err := s.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case reason := <-stopped:
		if reason == nil {
			t.Error("expected transport close reason")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop on server close")
	}

	stats := s.Stats()
	if stats.Decoded != 2 || stats.Ignored != 1 {
		t.Errorf("Stats() = %+v, want 2 decoded and 1 ignored", stats)
	}
}

func TestStopDuringTrafficAndPulls(t *testing.T) {
	var stops atomic.Int32
	s := New(Config{
		Format:        audio.DefaultFormat(),
		Output:        func() (output.Output, error) { return output.NewSilent(time.Millisecond), nil },
		Volume:        1,
		RecorderCodec: "pcm",
		OnStop:        func(error) { stops.Add(1) },
		Dial: func(ctx context.Context, cfg ingest.Config, handler ingest.Handler) (Transport, error) {
			return &fakeTransport{handler: handler, onClose: cfg.OnClose}, nil
		},
	})
	t.Cleanup(func() { _ = s.Stop() })

	if err := s.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := s.Connect(context.Background(), "ws://example"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	quit := make(chan struct{})
	var traffic sync.WaitGroup

	// One ordered message handler, as the transport delivers
	traffic.Add(1)
	go func() {
		defer traffic.Done()
		for i := 0; ; i++ {
			select {
			case <-quit:
				return
			default:
			}
			if i%2 == 0 {
				s.HandleMessage(flat(160))
			} else {
				s.HandleMessage(nested(160))
			}
		}
	}()

	// Display loops pulling drawable state
	for i := 0; i < 2; i++ {
		traffic.Add(1)
		go func() {
			defer traffic.Done()
			for {
				select {
				case <-quit:
					return
				default:
				}
				_ = s.Frequency()
				_ = s.Waveform(80, 20)
				_, _ = s.WaveformFrame(time.Now(), 80, 20)
				_ = s.LatestSegment()
				_ = s.Stats()
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)

	errs := make(chan error, 2)
	var stoppers sync.WaitGroup
	for i := 0; i < 2; i++ {
		stoppers.Add(1)
		go func() {
			defer stoppers.Done()
			errs <- s.Stop()
		}()
	}
	stoppers.Wait()
	close(errs)

	// Traffic keeps arriving after teardown
	time.Sleep(20 * time.Millisecond)
	close(quit)
	traffic.Wait()

	for err := range errs {
		if err != nil {
			t.Errorf("Stop: %v", err)
		}
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if got := stops.Load(); got != 1 {
		t.Errorf("OnStop called %d times, want 1", got)
	}
	if s.Stats().Decoded == 0 {
		t.Error("no messages decoded before Stop")
	}
	for i, v := range s.Frequency() {
		if v != 0 {
			t.Fatalf("Frequency()[%d] = %d after Stop, want idle zeros", i, v)
		}
	}
	if d := s.Waveform(80, 20); !d.Empty() {
		t.Error("Waveform() after Stop should draw only the center line")
	}
}
