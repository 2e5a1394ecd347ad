// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and adapts the session controller
package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/streamtap/pkg/session"
	"github.com/harperreed/streamtap/pkg/waveform"
)

// SessionSource returns the live session, or nil
type SessionSource interface {
	Current() *session.Session
}

// SnapshotFrom polls whatever session src currently holds
func SnapshotFrom(src SessionSource) func(now time.Time, width, height int) Snapshot {
	return func(now time.Time, width, height int) Snapshot {
		s := src.Current()
		if s == nil {
			return Snapshot{
				State:     "idle",
				Wave:      waveform.Drawable{Width: width, Height: height, CenterY: float64(height) / 2},
				WaveFresh: true,
			}
		}

		wave, fresh := s.WaveformFrame(now, width, height)
		state := s.State()
		return Snapshot{
			Active:    state != session.Stopped,
			State:     state.String(),
			Spectrum:  s.Frequency(),
			Wave:      wave,
			WaveFresh: fresh,
			Stats:     s.Stats(),
		}
	}
}

// Run starts the TUI and blocks until the user quits or ctx ends
func Run(ctx context.Context, title string, fps int, actions Actions) error {
	p := tea.NewProgram(NewModel(title, fps, actions), tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
