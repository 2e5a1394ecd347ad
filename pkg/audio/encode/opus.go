// ABOUTME: Opus audio encoder
// ABOUTME: Encodes mono float samples to Opus packets
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/harperreed/streamtap/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	// maxOpusPacket is the largest packet libopus will produce
	maxOpusPacket = 4000

	// opusPreSkip is the encoder lookahead at 48kHz signalled in OpusHead
	opusPreSkip = 312
)

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
	packet     []byte
}

// NewOpus creates a new Opus encoder. Opus only supports 8, 12, 16, 24 and 48kHz.
func NewOpus(format audio.Format, bitrate int) (*OpusEncoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if bitrate > 0 {
		if err := encoder.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("failed to set opus bitrate %d: %w", bitrate, err)
		}
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		frameSize:  format.SampleRate / 50, // 20ms frame
		packet:     make([]byte, maxOpusPacket),
	}, nil
}

// Encode converts one 20ms frame to an Opus packet
func (e *OpusEncoder) Encode(samples []float32) ([]byte, error) {
	if len(samples) != e.frameSize*e.channels {
		return nil, fmt.Errorf("opus frame must be %d samples, got %d", e.frameSize*e.channels, len(samples))
	}

	n, err := e.encoder.EncodeFloat32(samples, e.packet)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	out := make([]byte, n)
	copy(out, e.packet[:n])
	return out, nil
}

// FrameSize returns samples per channel per frame
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize
}

// Header returns the OpusHead identification block containers carry as codec private data
func (e *OpusEncoder) Header() []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // version
	head[9] = byte(e.channels)
	binary.LittleEndian.PutUint16(head[10:], opusPreSkip)
	binary.LittleEndian.PutUint32(head[12:], uint32(e.sampleRate))
	// output gain (2 bytes) and mapping family (1 byte) stay zero
	return head
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	// opus.Encoder doesn't have a Close method, nothing to do
	return nil
}
