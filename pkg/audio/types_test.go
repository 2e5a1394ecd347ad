// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion and frame/duration arithmetic
package audio

import (
	"testing"
	"time"
)

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected float32
	}{
		{"zero", 0, 0},
		{"half", 16384, 0.5},
		{"negative half", -16384, -0.5},
		{"min", -32768, -1},
		{"max", 32767, 32767.0 / 32768.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleFromInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestSampleToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"min", -1, -32768},
		{"clip high", 1.5, 32767},
		{"clip low", -1.5, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SampleToInt16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestRoundTripInt16(t *testing.T) {
	for _, s := range []int16{-32768, -12345, -1, 0, 1, 12345, 32767} {
		if got := SampleToInt16(SampleFromInt16(s)); got != s {
			t.Errorf("round trip of %d gave %d", s, got)
		}
	}
}

func TestBufferDuration(t *testing.T) {
	buf := Buffer{Samples: make([]float32, 1600), Format: DefaultFormat()}

	if buf.Frames() != 1600 {
		t.Errorf("expected 1600 frames, got %d", buf.Frames())
	}
	if buf.Duration() != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", buf.Duration())
	}
}

func TestDurationToFrames(t *testing.T) {
	f := DefaultFormat()
	if got := f.DurationToFrames(300 * time.Millisecond); got != 4800 {
		t.Errorf("expected 4800 frames, got %d", got)
	}
	if got := f.FramesToDuration(4800); got != 300*time.Millisecond {
		t.Errorf("expected 300ms, got %v", got)
	}
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"default", DefaultFormat(), false},
		{"stereo", Format{Codec: "pcm", SampleRate: 16000, Channels: 2, BitDepth: 16}, true},
		{"24 bit", Format{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 24}, true},
		{"zero rate", Format{Codec: "pcm", Channels: 1, BitDepth: 16}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
