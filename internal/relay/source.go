// ABOUTME: Audio source abstraction for the relay
// ABOUTME: Opens files by extension or falls back to a test tone
package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source provides interleaved float samples in [-1, 1]
type Source interface {
	// Read fills samples and returns how many were written. Sources loop,
	// so io.EOF is only returned when the input cannot be restarted.
	Read(samples []float32) (int, error)
	SampleRate() int
	Channels() int
	Name() string
	Close() error
}

// OpenSource opens a WAV, MP3 or FLAC file, or a tone at toneHz when path is empty
func OpenSource(path string, toneHz float64) (Source, error) {
	if path == "" {
		return NewToneSource(toneHz, 16000), nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return NewWAVSource(path)
	case ".mp3":
		return NewMP3Source(path)
	case ".flac":
		return NewFLACSource(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .wav, .mp3, .flac)", ext)
	}
}

func titleOf(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
