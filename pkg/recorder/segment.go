// ABOUTME: Recorded segment handle
// ABOUTME: Immutable encoded blob with naming, saving and release
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Segment is one encoded timeslice
type Segment struct {
	Index     int
	MimeType  string
	Duration  time.Duration
	CreatedAt time.Time

	ext      string
	mu       sync.Mutex
	data     []byte
	released bool
}

// Bytes returns the encoded data, or nil once released
func (s *Segment) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Size returns the encoded length in bytes
func (s *Segment) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Filename returns the download name, e.g. "recording-3.webm"
func (s *Segment) Filename(prefix string) string {
	if prefix == "" {
		prefix = "recording"
	}
	return fmt.Sprintf("%s-%d%s", prefix, s.Index, s.ext)
}

// Release drops the encoded data. Calling it again is a no-op.
func (s *Segment) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	s.released = true
}

// Released reports whether the segment was released
func (s *Segment) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Save writes the segment into dir and returns the file path
func (s *Segment) Save(dir, prefix string) (string, error) {
	data := s.Bytes()
	if data == nil {
		return "", fmt.Errorf("segment %d already released", s.Index)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, s.Filename(prefix))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write segment: %w", err)
	}
	return path, nil
}
