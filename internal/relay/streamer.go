// ABOUTME: Converts a relay source into fixed-size PCM16 chunks
// ABOUTME: Downmixes to mono and resamples to the stream format
package relay

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/harperreed/streamtap/pkg/audio"
	"github.com/harperreed/streamtap/pkg/audio/encode"
	"github.com/harperreed/streamtap/pkg/audio/resample"
)

const (
	readFrames     = 1024
	maxEmptyReads  = 8
	defaultChunkMs = 100
)

// Streamer produces consecutive chunks of mono PCM16 audio
type Streamer struct {
	src      Source
	frames   int
	encoder  *encode.PCMEncoder
	rs       *resample.Resampler
	scratch  []float32
	pending  []float32
	produced int64
}

// NewStreamer chunks src into chunk-long pieces of format audio
func NewStreamer(src Source, format audio.Format, chunk time.Duration) (*Streamer, error) {
	if chunk <= 0 {
		chunk = defaultChunkMs * time.Millisecond
	}
	enc, err := encode.NewPCM(format)
	if err != nil {
		return nil, err
	}
	if src.Channels() < 1 {
		return nil, fmt.Errorf("source %q has no channels", src.Name())
	}

	frames := int(format.DurationToFrames(chunk))
	if frames <= 0 {
		return nil, fmt.Errorf("chunk %v is shorter than one sample", chunk)
	}

	return &Streamer{
		src:     src,
		frames:  frames,
		encoder: enc,
		rs:      resample.New(src.SampleRate(), format.SampleRate),
		scratch: make([]float32, readFrames*src.Channels()),
	}, nil
}

// Frames returns the samples per chunk
func (s *Streamer) Frames() int {
	return s.frames
}

// Produced returns the number of chunks returned so far
func (s *Streamer) Produced() int64 {
	return s.produced
}

// Next returns the next chunk as PCM16 little-endian bytes
func (s *Streamer) Next() ([]byte, error) {
	empty := 0
	for len(s.pending) < s.frames {
		n, err := s.src.Read(s.scratch)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("source read failed: %w", err)
		}
		if n == 0 {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if empty++; empty >= maxEmptyReads {
				return nil, fmt.Errorf("source %q produced no audio", s.src.Name())
			}
			continue
		}
		empty = 0

		mono := Downmix(s.scratch[:n], s.src.Channels())
		s.pending = append(s.pending, s.rs.Process(mono)...)
	}

	chunk, err := s.encoder.Encode(s.pending[:s.frames])
	if err != nil {
		return nil, err
	}
	s.pending = s.pending[:copy(s.pending, s.pending[s.frames:])]
	s.produced++
	return chunk, nil
}

// Downmix averages interleaved channels into one
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
