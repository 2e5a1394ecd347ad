// ABOUTME: Test tone generator for the relay
// ABOUTME: Generates a mono sine wave at any rate
package relay

import (
	"fmt"
	"math"
	"sync"
)

// ToneSource generates a sine tone
type ToneSource struct {
	mu          sync.Mutex
	sampleIndex uint64
	frequency   float64
	sampleRate  int
}

// NewToneSource creates a tone generator; frequency defaults to 440Hz
func NewToneSource(frequency float64, sampleRate int) *ToneSource {
	if frequency <= 0 {
		frequency = 440.0
	}
	return &ToneSource{frequency: frequency, sampleRate: sampleRate}
}

func (s *ToneSource) Read(samples []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range samples {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*s.frequency*t))
	}
	s.sampleIndex += uint64(len(samples))
	return len(samples), nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }
func (s *ToneSource) Channels() int   { return 1 }
func (s *ToneSource) Name() string    { return fmt.Sprintf("Test Tone %.0fHz", s.frequency) }
func (s *ToneSource) Close() error    { return nil }
