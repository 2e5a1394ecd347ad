// ABOUTME: PCM16 audio decoder
// ABOUTME: Decodes little-endian 16-bit mono PCM to normalized float samples
package decode

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/streamtap/pkg/audio"
)

// ErrBadPayload is returned when a chunk payload is not valid base64
var ErrBadPayload = errors.New("invalid base64 payload")

// PCM16Decoder decodes PCM16 audio
type PCM16Decoder struct {
	format audio.Format
}

// NewPCM16 creates a new PCM16 decoder
func NewPCM16(format audio.Format) (*PCM16Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	return &PCM16Decoder{format: format}, nil
}

// Decode converts PCM bytes to float samples. Chunks under two bytes yield nil.
// A trailing odd byte is ignored.
func (d *PCM16Decoder) Decode(data []byte) ([]float32, error) {
	return DecodePCM16(data), nil
}

// DecodeBase64 decodes a base64 chunk payload and then its PCM samples.
// Whitespace anywhere in the payload and missing padding are accepted.
func (d *PCM16Decoder) DecodeBase64(payload string) ([]float32, error) {
	data, err := DecodeBase64Payload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return DecodePCM16(data), nil
}

// Format returns the declared stream format
func (d *PCM16Decoder) Format() audio.Format {
	return d.format
}

// Close releases resources
func (d *PCM16Decoder) Close() error {
	return nil
}

// DecodePCM16 is the pure conversion behind PCM16Decoder
func DecodePCM16(data []byte) []float32 {
	if len(data) < 2 {
		return nil
	}

	numSamples := len(data) / 2
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples
}

// DecodeBase64Payload decodes standard-alphabet base64, ignoring ASCII
// whitespace and tolerating absent padding
func DecodeBase64Payload(payload string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, payload)
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
}
