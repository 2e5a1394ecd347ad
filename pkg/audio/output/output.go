// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

import (
	"errors"
	"io"

	"github.com/harperreed/streamtap/pkg/audio"
)

// ErrNotOpen is returned when closing or using an output that was never opened
var ErrNotOpen = errors.New("output not open")

// Output represents an audio output device
type Output interface {
	// Open starts pulling PCM16 little-endian bytes in the given format from src
	Open(format audio.Format, src io.Reader) error

	// Close stops pulling and releases output resources
	Close() error
}
