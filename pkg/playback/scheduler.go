// ABOUTME: Cursor-based playback scheduler
// ABOUTME: Places each buffer directly after the previous one on the device clock
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/harperreed/streamtap/pkg/audio"
	"go.uber.org/zap"
)

// Device is the clock and submission target the scheduler drives
type Device interface {
	// Position returns the device clock ("now") in frames
	Position() int64

	// ScheduleAt submits samples to start at the given frame and returns the
	// frame they were actually placed at, which is never before the device clock
	ScheduleAt(samples []float32, start int64) (int64, error)
}

// Submission describes where a buffer was placed
type Submission struct {
	Seq     uint64
	Start   int64 // start frame on the device clock
	Frames  int64
	CatchUp bool // cursor had fallen behind now and was snapped forward
	Skipped bool // zero-length buffer, nothing submitted
}

// Stats tracks scheduler metrics
type Stats struct {
	Submitted int64
	Failed    int64
	CatchUps  int64
	Skipped   int64
}

// Scheduler manages playback timing
type Scheduler struct {
	mu         sync.Mutex
	device     Device
	sampleRate int
	cursor     int64
	logger     *zap.SugaredLogger

	stats Stats
}

// NewScheduler creates a scheduler whose cursor starts at the device's current position
func NewScheduler(device Device, sampleRate int, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Scheduler{
		device:     device,
		sampleRate: sampleRate,
		cursor:     device.Position(),
		logger:     logger,
	}
}

// Submit schedules a buffer to start at the cursor and advances the cursor by
// its length. A device error is returned after the cursor has advanced, so a
// failed buffer leaves a gap of its own length and delays nothing after it.
func (s *Scheduler) Submit(buf audio.Buffer) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := Submission{Seq: buf.Seq, Frames: int64(len(buf.Samples))}

	if len(buf.Samples) == 0 {
		s.stats.Skipped++
		sub.Skipped = true
		return sub, nil
	}

	now := s.device.Position()
	if s.cursor < now {
		if s.stats.CatchUps < 5 || s.stats.CatchUps%100 == 0 {
			s.logger.Debugw("playback cursor behind device clock, catching up",
				"seq", buf.Seq,
				"behind", s.framesToDuration(now-s.cursor))
		}
		s.cursor = now
		s.stats.CatchUps++
		sub.CatchUp = true
	}

	// The device clock can move between Position and ScheduleAt; the cursor
	// follows where the buffer really landed so the next one cannot overlap it
	start, err := s.device.ScheduleAt(buf.Samples, s.cursor)
	if err == nil && start > s.cursor {
		if !sub.CatchUp {
			s.stats.CatchUps++
			sub.CatchUp = true
		}
		s.cursor = start
	}
	sub.Start = s.cursor
	s.cursor += sub.Frames

	if err != nil {
		s.stats.Failed++
		s.logger.Warnw("playback submission failed, skipping buffer",
			"seq", buf.Seq,
			"frames", sub.Frames,
			"error", err)
		return sub, fmt.Errorf("schedule buffer %d: %w", buf.Seq, err)
	}

	s.stats.Submitted++
	return sub, nil
}

// Cursor returns the next start time measured on the device clock
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesToDuration(s.cursor)
}

// CursorFrames returns the next start frame
func (s *Scheduler) CursorFrames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Lead returns how far the cursor is ahead of the device clock
func (s *Scheduler) Lead() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead := s.cursor - s.device.Position()
	if lead < 0 {
		return 0
	}
	return s.framesToDuration(lead)
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) framesToDuration(frames int64) time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(s.sampleRate)
}
