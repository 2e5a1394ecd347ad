// ABOUTME: Frequency analyzer over a sliding sample window
// ABOUTME: Produces smoothed 0-255 magnitudes per FFT bin for spectrum displays
package analyzer

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	DefaultSize        = 256
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0

	minSize = 32
	maxSize = 32768
)

// Config configures an analyzer
type Config struct {
	Size        int     // window size, power of two
	Smoothing   float64 // weight of the previous value, 0..1
	MinDecibels float64 // maps to 0
	MaxDecibels float64 // maps to 255
}

// DefaultConfig returns the analyzer defaults
func DefaultConfig() Config {
	return Config{
		Size:        DefaultSize,
		Smoothing:   DefaultSmoothing,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
	}
}

// Validate checks the config
func (c Config) Validate() error {
	if c.Size < minSize || c.Size > maxSize || c.Size&(c.Size-1) != 0 {
		return fmt.Errorf("analyzer size must be a power of two in [%d, %d], got %d", minSize, maxSize, c.Size)
	}
	if c.Smoothing < 0 || c.Smoothing > 1 {
		return fmt.Errorf("analyzer smoothing must be in [0, 1], got %v", c.Smoothing)
	}
	if c.MinDecibels >= c.MaxDecibels {
		return errors.New("analyzer min decibels must be below max decibels")
	}
	return nil
}

// Analyzer computes a smoothed magnitude spectrum of the most recent samples
type Analyzer struct {
	mu  sync.Mutex
	cfg Config
	fft *fourier.FFT

	window    []float32 // circular, cursor marks the oldest sample
	cursor    int
	connected bool
	fresh     bool

	seq      []float64
	coeffs   []complex128
	smoothed []float64
	bytes    []uint8
}

// New creates an analyzer
func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bins := cfg.Size / 2
	return &Analyzer{
		cfg:      cfg,
		fft:      fourier.NewFFT(cfg.Size),
		window:   make([]float32, cfg.Size),
		seq:      make([]float64, cfg.Size),
		coeffs:   make([]complex128, cfg.Size/2+1),
		smoothed: make([]float64, bins),
		bytes:    make([]uint8, bins),
	}, nil
}

// Size returns the window size
func (a *Analyzer) Size() int {
	return a.cfg.Size
}

// Bins returns the number of frequency bins (half the window size)
func (a *Analyzer) Bins() int {
	return a.cfg.Size / 2
}

// Write slides samples into the window. It is the bus tap entry point.
func (a *Analyzer) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(samples) > len(a.window) {
		samples = samples[len(samples)-len(a.window):]
	}
	for _, s := range samples {
		a.window[a.cursor] = s
		a.cursor = (a.cursor + 1) % len(a.window)
	}
	a.connected = true
	a.fresh = true
}

// Connected reports whether any signal has reached the analyzer
func (a *Analyzer) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Frequency returns the current magnitudes, one byte per bin. It is all zero
// before any signal and unchanged when no samples arrived since the last call.
func (a *Analyzer) Frequency() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fresh {
		a.update()
		a.fresh = false
	}

	out := make([]uint8, len(a.bytes))
	copy(out, a.bytes)
	return out
}

func (a *Analyzer) update() {
	n := len(a.window)
	for i := 0; i < n; i++ {
		a.seq[i] = float64(a.window[(a.cursor+i)%n])
	}
	window.Blackman(a.seq)
	a.fft.Coefficients(a.coeffs, a.seq)

	tau := a.cfg.Smoothing
	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(n)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		a.bytes[k] = toByte(a.smoothed[k], a.cfg.MinDecibels, span)
	}
}

func toByte(mag, minDB, span float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - minDB) / span
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// Reset clears the window and smoothing state
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.window)
	clear(a.smoothed)
	clear(a.bytes)
	a.cursor = 0
	a.connected = false
	a.fresh = false
}
