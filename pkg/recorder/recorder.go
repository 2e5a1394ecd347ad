// ABOUTME: Timeslice recorder fed by the audio bus
// ABOUTME: Encodes captured audio on its own goroutine and keeps the latest segment
package recorder

import (
	"errors"
	"sync"
	"time"

	"github.com/harperreed/streamtap/pkg/audio"
	"go.uber.org/zap"
)

// ErrStopped is returned when stopping an already stopped recorder
var ErrStopped = errors.New("recorder stopped")

const (
	DefaultTimeslice = time.Second
	DefaultBitrate   = 128000
	DefaultQueueSize = 64
)

// Config configures a recorder
type Config struct {
	Format    audio.Format  // input stream format
	Codec     string        // "opus" (preferred) or "pcm"
	Timeslice time.Duration // captured audio per segment
	Bitrate   int
	QueueSize int // capture blocks buffered between the tap and the encoder
	Logger    *zap.SugaredLogger

	// OnSegment is called from the recorder goroutine for every new segment
	OnSegment func(seg *Segment)

	// OnError is called when a timeslice could not be encoded
	OnError func(index int, err error)
}

// Stats tracks recorder metrics
type Stats struct {
	Segments      int64
	EncoderErrors int64
	FrameErrors   int64
	DroppedBlocks int64
}

// Recorder captures samples and emits a segment per timeslice
type Recorder struct {
	cfg       Config
	container container
	logger    *zap.SugaredLogger
	blocks    chan []float32
	done      chan struct{}
	slice     int

	mu      sync.Mutex
	stopped bool
	latest  *Segment
	next    int
	stats   Stats
}

// Start constructs the codec (falling back to PCM/WAV when Opus is
// unavailable) and starts the encoding goroutine
func Start(cfg Config) (*Recorder, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = DefaultTimeslice
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = DefaultBitrate
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Codec == "" {
		cfg.Codec = "opus"
	}

	c, err := newContainer(cfg)
	if err != nil {
		return nil, err
	}

	slice := int(cfg.Format.DurationToFrames(cfg.Timeslice))
	if slice < 1 {
		slice = 1
	}

	r := &Recorder{
		cfg:       cfg,
		container: c,
		logger:    cfg.Logger,
		blocks:    make(chan []float32, cfg.QueueSize),
		done:      make(chan struct{}),
		slice:     slice,
	}

	r.logger.Infow("recorder started",
		"mime_type", c.mimeType(),
		"timeslice", cfg.Timeslice,
		"sample_rate", cfg.Format.SampleRate)

	go r.run()
	return r, nil
}

func newContainer(cfg Config) (container, error) {
	if cfg.Codec == "opus" {
		c, err := newWebMContainer(cfg.Format, cfg.Bitrate, cfg.Logger)
		if err == nil {
			return c, nil
		}
		cfg.Logger.Warnw("opus encoder unavailable, falling back to wav",
			"sample_rate", cfg.Format.SampleRate,
			"error", err)
	}
	return newWAVContainer(cfg.Format)
}

// MimeType returns the container type segments are written in
func (r *Recorder) MimeType() string {
	return r.container.mimeType()
}

// Write queues a copy of samples for encoding. It is the bus tap entry point
// and never blocks; blocks are dropped when the encoder falls behind.
func (r *Recorder) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	block := make([]float32, len(samples))
	copy(block, samples)

	select {
	case r.blocks <- block:
	default:
		r.stats.DroppedBlocks++
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	pending := make([]float32, 0, r.slice)
	for block := range r.blocks {
		for len(block) > 0 {
			take := min(len(block), r.slice-len(pending))
			pending = append(pending, block[:take]...)
			block = block[take:]

			if len(pending) == r.slice {
				r.emit(pending)
				pending = pending[:0]
			}
		}
	}

	if len(pending) > 0 {
		r.emit(pending)
	}
}

func (r *Recorder) emit(samples []float32) {
	data, err := r.container.encode(samples)

	r.mu.Lock()
	index := r.next
	r.next++
	if wc, ok := r.container.(*webmContainer); ok {
		r.stats.FrameErrors = wc.frameErrors
	}

	if err != nil {
		r.stats.EncoderErrors++
		r.mu.Unlock()
		r.logger.Warnw("segment encode failed, continuing", "index", index, "error", err)
		if r.cfg.OnError != nil {
			r.cfg.OnError(index, err)
		}
		return
	}

	seg := &Segment{
		Index:     index,
		MimeType:  r.container.mimeType(),
		Duration:  r.cfg.Format.FramesToDuration(int64(len(samples))),
		CreatedAt: time.Now(),
		ext:       r.container.ext(),
		data:      data,
	}
	previous := r.latest
	r.latest = seg
	r.stats.Segments++
	r.mu.Unlock()

	if previous != nil {
		previous.Release()
	}

	r.logger.Debugw("segment emitted", "index", index, "bytes", len(data), "duration", seg.Duration)

	if r.cfg.OnSegment != nil {
		r.cfg.OnSegment(seg)
	}
}

// Latest returns the most recent segment, or nil
func (r *Recorder) Latest() *Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// ClearLatest releases and forgets the latest segment
func (r *Recorder) ClearLatest() {
	r.mu.Lock()
	latest := r.latest
	r.latest = nil
	r.mu.Unlock()

	if latest != nil {
		latest.Release()
	}
}

// Stats returns recorder statistics
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Stop flushes the final partial slice, waits for encoding to finish and
// releases the codec. The latest segment stays available until released.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	r.stopped = true
	close(r.blocks)
	r.mu.Unlock()

	<-r.done

	if err := r.container.close(); err != nil {
		return err
	}
	r.logger.Infow("recorder stopped", "segments", r.Stats().Segments)
	return nil
}
