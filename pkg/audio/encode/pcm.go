// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float samples to 16-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/harperreed/streamtap/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (*PCMEncoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Encode converts float samples to PCM16 bytes
func (e *PCMEncoder) Encode(samples []float32) ([]byte, error) {
	output := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(sample)))
	}
	return output, nil
}

// FrameSize returns 0: PCM accepts any number of samples
func (e *PCMEncoder) FrameSize() int {
	return 0
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
