// ABOUTME: Audio type definitions
// ABOUTME: Defines the stream format, decoded buffers and sample conversions
package audio

import (
	"fmt"
	"time"
)

const (
	// DefaultSampleRate is the rate the meeting bot streams at
	DefaultSampleRate = 16000

	// pcm16Scale maps int16 samples onto [-1, 1)
	pcm16Scale = 32768.0
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat returns the PCM16 mono format used by the ingest stream
func DefaultFormat() Format {
	return Format{
		Codec:      "pcm",
		SampleRate: DefaultSampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// Validate checks that the format is the mono PCM16 stream the pipeline handles
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels != 1 {
		return fmt.Errorf("unsupported channel count: %d (mono only)", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (supported: 16)", f.BitDepth)
	}
	return nil
}

// FramesToDuration converts a frame count to wall time at this format's rate
func (f Format) FramesToDuration(frames int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// DurationToFrames converts wall time to a frame count at this format's rate
func (f Format) DurationToFrames(d time.Duration) int64 {
	return int64(d) * int64(f.SampleRate) / int64(time.Second)
}

// Buffer is one decoded chunk of normalized samples
type Buffer struct {
	Seq     uint64    // Arrival order within a session
	Samples []float32 // Normalized samples in [-1, 1)
	Format  Format
}

// Frames returns the number of frames in the buffer
func (b Buffer) Frames() int {
	if b.Format.Channels <= 1 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns how long the buffer plays for
func (b Buffer) Duration() time.Duration {
	return b.Format.FramesToDuration(int64(b.Frames()))
}

// SampleFromInt16 normalizes a PCM16 sample to [-1, 1)
func SampleFromInt16(sample int16) float32 {
	return float32(sample) / pcm16Scale
}

// SampleToInt16 converts a normalized sample back to PCM16, clipping out-of-range input
func SampleToInt16(sample float32) int16 {
	v := float64(sample) * pcm16Scale
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
