// ABOUTME: Segment containers for the recorder
// ABOUTME: WebM with Opus frames and WAV with PCM16 samples
package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/at-wat/ebml-go/webm"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/harperreed/streamtap/pkg/audio"
	"github.com/harperreed/streamtap/pkg/audio/encode"
	"go.uber.org/zap"
)

const (
	MimeWebMOpus = "audio/webm;codecs=opus"
	MimeWAV      = "audio/wav"

	// Matroska carries Opus at 48kHz regardless of the input rate
	webmOpusRate = 48000
	opusFrameMs  = 20
)

// container turns one timeslice of samples into a self-contained file
type container interface {
	mimeType() string
	ext() string
	encode(samples []float32) ([]byte, error)
	close() error
}

// webmContainer writes Opus packets as WebM simple blocks
type webmContainer struct {
	enc    *encode.OpusEncoder
	frame  []float32
	logger *zap.SugaredLogger

	frameErrors int64
}

func newWebMContainer(format audio.Format, bitrate int, logger *zap.SugaredLogger) (*webmContainer, error) {
	opusFormat := format
	opusFormat.Codec = "opus"

	enc, err := encode.NewOpus(opusFormat, bitrate)
	if err != nil {
		return nil, err
	}

	return &webmContainer{
		enc:    enc,
		frame:  make([]float32, enc.FrameSize()),
		logger: logger,
	}, nil
}

func (c *webmContainer) mimeType() string { return MimeWebMOpus }
func (c *webmContainer) ext() string      { return ".webm" }

func (c *webmContainer) encode(samples []float32) ([]byte, error) {
	var buf bytes.Buffer
	writers, err := webm.NewSimpleBlockWriter(nopCloser{&buf}, []webm.TrackEntry{{
		Name:            "Audio",
		TrackNumber:     1,
		TrackUID:        1,
		CodecID:         "A_OPUS",
		CodecPrivate:    c.enc.Header(),
		TrackType:       2,
		DefaultDuration: opusFrameMs * 1000000,
		Audio: &webm.Audio{
			SamplingFrequency: webmOpusRate,
			Channels:          1,
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to create webm writer: %w", err)
	}
	w := writers[0]

	var timestamp int64
	for off := 0; off < len(samples); off += len(c.frame) {
		n := copy(c.frame, samples[off:])
		// Pad the final partial frame with silence
		clear(c.frame[n:])

		packet, err := c.enc.Encode(c.frame)
		if err != nil {
			c.frameErrors++
			c.logger.Warnw("opus frame encode failed, skipping frame", "error", err)
		} else if _, err := w.Write(true, timestamp, packet); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to write webm block: %w", err)
		}
		timestamp += opusFrameMs
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish webm segment: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *webmContainer) close() error {
	return c.enc.Close()
}

// wavContainer writes PCM16 samples as a WAV file
type wavContainer struct {
	pcm        *encode.PCMEncoder
	sampleRate int
}

func newWAVContainer(format audio.Format) (*wavContainer, error) {
	pcmFormat := format
	pcmFormat.Codec = "pcm"

	pcm, err := encode.NewPCM(pcmFormat)
	if err != nil {
		return nil, err
	}
	return &wavContainer{pcm: pcm, sampleRate: format.SampleRate}, nil
}

func (c *wavContainer) mimeType() string { return MimeWAV }
func (c *wavContainer) ext() string      { return ".wav" }

func (c *wavContainer) encode(samples []float32) ([]byte, error) {
	// PCMEncoder gives the exact int16 values; go-audio wants them as ints
	raw, err := c.pcm.Encode(samples)
	if err != nil {
		return nil, err
	}
	data := make([]int, len(samples))
	for i := range data {
		data[i] = int(int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8))
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, c.sampleRate, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish wav segment: %w", err)
	}
	return out.buf, nil
}

func (c *wavContainer) close() error {
	return c.pcm.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		m.buf = append(m.buf, make([]byte, need-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}
