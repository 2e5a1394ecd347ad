// ABOUTME: Silent audio output that consumes samples in real time
// ABOUTME: Stands in for a sound card in headless runs and tests
package output

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/harperreed/streamtap/pkg/audio"
)

// DefaultSilentPeriod is how often the silent output pulls a block
const DefaultSilentPeriod = 10 * time.Millisecond

// maxSilentPull bounds a single read when making up for late ticks
const maxSilentPull = 100 * time.Millisecond

// Silent pulls from its source on a ticker and discards the bytes. Each pull
// covers the time elapsed since Open, so a late tick is made up rather than lost.
type Silent struct {
	mu     sync.Mutex
	period time.Duration
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewSilent creates a silent output pulling every period (0 = DefaultSilentPeriod)
func NewSilent(period time.Duration) *Silent {
	if period <= 0 {
		period = DefaultSilentPeriod
	}
	return &Silent{period: period}
}

// Open starts the consume loop
func (s *Silent) Open(format audio.Format, src io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("output already open")
	}
	if format.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", format.SampleRate)
	}

	frames := format.DurationToFrames(max(s.period, maxSilentPull))
	if frames < 1 {
		frames = 1
	}
	buf := make([]byte, frames*2)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	p := &pacer{format: format, start: time.Now()}
	go s.run(ctx, src, buf, p)
	return nil
}

// pacer tracks how many frames a real-time device would have consumed
type pacer struct {
	format   audio.Format
	start    time.Time
	consumed int64
}

// due returns the frames owed at now
func (p *pacer) due(now time.Time) int64 {
	owed := p.format.DurationToFrames(now.Sub(p.start)) - p.consumed
	if owed < 0 {
		return 0
	}
	return owed
}

func (s *Silent) run(ctx context.Context, src io.Reader, buf []byte, p *pacer) {
	defer close(s.done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for due := p.due(now); due > 0; {
				n := min(due, int64(len(buf)/2))
				if _, err := io.ReadFull(src, buf[:n*2]); err != nil {
					if err != io.EOF && err != io.ErrUnexpectedEOF {
						s.mu.Lock()
						s.err = err
						s.mu.Unlock()
					}
					return
				}
				p.consumed += n
				due -= n
			}
		}
	}
}

// Close stops the consume loop and waits for it to exit
func (s *Silent) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return ErrNotOpen
	}
	cancel()
	<-done
	return nil
}

// Err returns the read error that stopped the consume loop, if any
func (s *Silent) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
