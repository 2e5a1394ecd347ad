// ABOUTME: Frame-accurate playback timeline
// ABOUTME: Mixes buffers placed at absolute start frames into the device stream
package playback

import (
	"errors"
	"sort"
	"sync"
)

// ErrClosed is returned when scheduling onto a closed timeline
var ErrClosed = errors.New("timeline closed")

type placement struct {
	start   int64
	samples []float32
}

func (p placement) end() int64 {
	return p.start + int64(len(p.samples))
}

// Timeline is the device clock plus the set of buffers waiting to play
type Timeline struct {
	mu       sync.Mutex
	position int64
	pending  []placement
	closed   bool
}

// NewTimeline creates a timeline at frame zero
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Position returns the number of frames rendered so far ("now")
func (t *Timeline) Position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// ScheduleAt places samples to start at the given frame and returns the frame
// actually used. A start already in the past plays from the current position.
func (t *Timeline) ScheduleAt(samples []float32, start int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return start, ErrClosed
	}
	if start < t.position {
		start = t.position
	}
	if len(samples) == 0 {
		return start, nil
	}

	// Keep pending ordered by start so Render can stop early
	i := sort.Search(len(t.pending), func(i int) bool {
		return t.pending[i].start > start
	})
	t.pending = append(t.pending, placement{})
	copy(t.pending[i+1:], t.pending[i:])
	t.pending[i] = placement{start: start, samples: samples}

	return start, nil
}

// Render mixes everything audible in [position, position+len(dst)) into dst,
// fills gaps with silence and advances the clock
func (t *Timeline) Render(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.position
	to := from + int64(len(dst))

	kept := t.pending[:0]
	for _, p := range t.pending {
		if p.start >= to {
			kept = append(kept, p)
			continue
		}

		lo := max(p.start, from)
		hi := min(p.end(), to)
		for f := lo; f < hi; f++ {
			dst[f-from] += p.samples[f-p.start]
		}

		if p.end() > to {
			kept = append(kept, p)
		}
	}
	// Drop references held past the kept prefix
	for i := len(kept); i < len(t.pending); i++ {
		t.pending[i] = placement{}
	}
	t.pending = kept
	t.position = to
}

// Pending returns the number of frames scheduled but not yet rendered
func (t *Timeline) Pending() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var last int64
	for _, p := range t.pending {
		if e := p.end(); e > last {
			last = e
		}
	}
	if last <= t.position {
		return 0
	}
	return last - t.position
}

// Close discards pending buffers; later ScheduleAt calls fail with ErrClosed.
// Render keeps producing silence so an attached device drains cleanly.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.pending = nil
	return nil
}
