// ABOUTME: Audio bus implementation
// ABOUTME: Pull-rendered fan-out with an audible branch and a silent tap branch
package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/harperreed/streamtap/pkg/audio"
	"github.com/harperreed/streamtap/pkg/audio/output"
	"go.uber.org/zap"
)

// ErrTornDown is returned when attaching to a bus after Teardown
var ErrTornDown = errors.New("bus torn down")

// SilentBranch is the name of the zero-gain branch carrying the taps
const SilentBranch = "silent"

// Source renders the next block of the playback signal
type Source interface {
	Render(dst []float32)
}

// Sink receives a copy of the signal. Write must not retain samples.
type Sink interface {
	Write(samples []float32)
}

// Config configures a bus
type Config struct {
	Format audio.Format
	Gain   float64 // audible branch gain, 0..1
	Logger *zap.SugaredLogger
}

// BranchInfo describes one branch for inspection
type BranchInfo struct {
	Name string
	Gain float64
	Taps []string
}

type tap struct {
	name string
	sink Sink
}

// Bus fans the rendered signal out to the device and taps
type Bus struct {
	mu       sync.Mutex
	source   Source
	format   audio.Format
	gain     float32
	output   output.Output
	taps     []*tap
	detach   []func() error
	torn     bool
	rendered int64
	scratch  []float32
	logger   *zap.SugaredLogger
}

// New creates a bus rendering from source
func New(source Source, cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	b := &Bus{
		source: source,
		format: cfg.Format,
		logger: cfg.Logger,
	}
	b.SetGain(cfg.Gain)
	return b
}

// AttachOutput opens out with the bus as its PCM source
func (b *Bus) AttachOutput(out output.Output) error {
	b.mu.Lock()
	if b.torn {
		b.mu.Unlock()
		return ErrTornDown
	}
	if b.output != nil {
		b.mu.Unlock()
		return fmt.Errorf("output already attached")
	}
	b.output = out
	b.mu.Unlock()

	// Open outside the lock: the device may start pulling immediately
	if err := out.Open(b.format, b); err != nil {
		b.mu.Lock()
		b.output = nil
		b.mu.Unlock()
		return fmt.Errorf("failed to open output: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.detach = append(b.detach, func() error {
		if err := out.Close(); err != nil && !errors.Is(err, output.ErrNotOpen) {
			return fmt.Errorf("close output: %w", err)
		}
		return nil
	})
	b.logger.Debugw("bus output attached", "sample_rate", b.format.SampleRate)
	return nil
}

// AttachAnalyzer hangs an analysis tap on the silent branch
func (b *Bus) AttachAnalyzer(sink Sink) error {
	return b.attachTap("analyzer", sink)
}

// AttachEncoderSink hangs a recording tap on the silent branch
func (b *Bus) AttachEncoderSink(sink Sink) error {
	return b.attachTap("encoder", sink)
}

func (b *Bus) attachTap(name string, sink Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.torn {
		return ErrTornDown
	}

	t := &tap{name: name, sink: sink}
	b.taps = append(b.taps, t)
	b.detach = append(b.detach, func() error {
		b.removeTap(t)
		return nil
	})
	b.logger.Debugw("bus tap attached", "tap", name, "branch", SilentBranch)
	return nil
}

func (b *Bus) removeTap(t *tap) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.taps {
		if existing == t {
			b.taps = append(b.taps[:i], b.taps[i+1:]...)
			return
		}
	}
}

// Read renders the next block as PCM16 little-endian bytes. It never blocks
// on the playback source; gaps render as silence.
func (b *Bus) Read(p []byte) (int, error) {
	frames := len(p) / 2
	if frames == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.torn {
		return 0, io.EOF
	}

	if cap(b.scratch) < frames {
		b.scratch = make([]float32, frames)
	}
	block := b.scratch[:frames]
	b.source.Render(block)

	for _, t := range b.taps {
		t.sink.Write(block)
	}

	for i, s := range block {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(audio.SampleToInt16(s*b.gain)))
	}

	b.rendered += int64(frames)
	return frames * 2, nil
}

// SetGain sets the audible branch gain, clamped to 0..1
func (b *Bus) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}

	b.mu.Lock()
	b.gain = float32(gain)
	b.mu.Unlock()
}

// Gain returns the audible branch gain
func (b *Bus) Gain() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.gain)
}

// Branches describes the audible and silent branches
func (b *Bus) Branches() []BranchInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, len(b.taps))
	for i, t := range b.taps {
		names[i] = t.name
	}

	return []BranchInfo{
		{Name: "audible", Gain: float64(b.gain)},
		{Name: SilentBranch, Gain: 0, Taps: names},
	}
}

// Rendered returns the number of frames pulled by the device
func (b *Bus) Rendered() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rendered
}

// Teardown detaches everything in reverse order of attachment. Calling it
// again is a no-op.
func (b *Bus) Teardown() error {
	b.mu.Lock()
	if b.torn {
		b.mu.Unlock()
		return nil
	}
	b.torn = true
	detach := b.detach
	b.detach = nil
	b.mu.Unlock()

	// Run without the lock: closing a device may wait for an in-flight Read
	var errs []error
	for i := len(detach) - 1; i >= 0; i-- {
		if err := detach[i](); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	b.output = nil
	b.mu.Unlock()

	b.logger.Debugw("bus torn down", "detached", len(detach))
	return errors.Join(errs...)
}
