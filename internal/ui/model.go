// ABOUTME: Bubbletea model for the live player TUI
// ABOUTME: Polls the session at the frame rate and draws spectrum and waveform
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/streamtap/pkg/session"
	"github.com/harperreed/streamtap/pkg/waveform"
)

const (
	spectrumRows = 6
	waveRows     = 9
	minWidth     = 16
	maxWidth     = 120
	volumeStep   = 5
)

// Snapshot is everything the view needs from one poll
type Snapshot struct {
	Active   bool
	State    string
	Spectrum []uint8
	Wave     waveform.Drawable
	// WaveFresh is false when the waveform frame was not due
	WaveFresh bool
	Stats     session.Stats
}

// Actions connects the model to the player
type Actions struct {
	Snapshot  func(now time.Time, width, height int) Snapshot
	Stop      func() error
	Restart   func() error
	Clear     func()
	SetVolume func(volume float64)
}

// Model represents the TUI state
type Model struct {
	actions Actions
	fps     int
	title   string

	snap     Snapshot
	wave     waveform.Drawable
	volume   int
	notice   string
	busy     bool
	debug    bool
	quitting bool

	width  int
	height int
}

type tickMsg time.Time

// actionMsg reports the result of a stop or restart
type actionMsg struct {
	action string
	err    error
}

// NewModel creates a model polling at fps frames per second
func NewModel(title string, fps int, actions Actions) Model {
	if fps <= 0 {
		fps = 30
	}
	return Model{
		actions: actions,
		fps:     fps,
		title:   title,
		volume:  100,
		snap:    Snapshot{State: "idle"},
	}
}

// Init starts the frame ticker
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.fps), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.poll(time.Time(msg))
		return m, m.tick()
	case actionMsg:
		m.busy = false
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.notice = msg.action + " ok"
		}
	}

	return m, nil
}

// poll pulls a fresh snapshot, keeping the previous waveform when no frame is due
func (m *Model) poll(now time.Time) {
	if m.actions.Snapshot == nil {
		return
	}
	snap := m.actions.Snapshot(now, m.drawWidth(), waveRows)
	if snap.WaveFresh {
		m.wave = snap.Wave
	}
	m.snap = snap
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "s":
		return m.run("stop", m.actions.Stop)
	case "r":
		return m.run("restart", m.actions.Restart)
	case "c":
		if m.actions.Clear != nil {
			m.actions.Clear()
		}
		m.wave = waveform.Drawable{}
		m.notice = "cleared"
	case "up":
		m.setVolume(m.volume + volumeStep)
	case "down":
		m.setVolume(m.volume - volumeStep)
	case "d":
		m.debug = !m.debug
	}

	return m, nil
}

// run executes a blocking action off the update loop
func (m Model) run(name string, fn func() error) (tea.Model, tea.Cmd) {
	if fn == nil || m.busy {
		return m, nil
	}
	m.busy = true
	m.notice = name + "..."
	return m, func() tea.Msg {
		return actionMsg{action: name, err: fn()}
	}
}

func (m *Model) setVolume(v int) {
	m.volume = max(0, min(100, v))
	if m.actions.SetVolume != nil {
		m.actions.SetVolume(float64(m.volume) / 100)
	}
}

func (m Model) drawWidth() int {
	if m.width == 0 {
		return minWidth
	}
	return max(minWidth, min(maxWidth, m.width-4))
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	spectrumStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	waveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	faint := lipgloss.NewStyle().Faint(true)

	width := m.drawWidth()
	st := m.snap.Stats

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("State: "))
	b.WriteString(valueStyle.Render(m.snap.State))
	b.WriteString(headerStyle.Render("  Volume: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("[%s] %d%%", renderBar(m.volume, 100, 10), m.volume)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Chunks: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d decoded, %d dropped", st.Decoded, st.Dropped)))
	b.WriteString(headerStyle.Render("  Segments: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", st.Segments)))
	b.WriteString(headerStyle.Render("  Lead: "))
	b.WriteString(valueStyle.Render(st.Lead.Round(time.Millisecond).String()))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Spectrum"))
	b.WriteString("\n")
	for _, row := range spectrumLines(m.snap.Spectrum, width, spectrumRows) {
		b.WriteString(spectrumStyle.Render(row))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Waveform"))
	b.WriteString("\n")
	wave := m.wave
	if wave.Width != width || wave.Height != waveRows {
		wave = waveform.Drawable{Width: width, Height: waveRows, CenterY: float64(waveRows) / 2}
	}
	for _, row := range waveLines(wave) {
		b.WriteString(waveStyle.Render(row))
		b.WriteString("\n")
	}

	if m.debug {
		b.WriteString("\n")
		b.WriteString(faint.Render(fmt.Sprintf("id=%s rx=%d ignored=%d malformed=%d catchups=%d failed=%d enc_errors=%d",
			truncate(st.ID, 8), st.Received, st.Ignored, st.Malformed,
			st.Playback.CatchUps, st.Playback.Failed, st.Recorder.EncoderErrors)))
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(valueStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(faint.Render("s:Stop  r:Restart  c:Clear  ↑/↓:Volume  d:Debug  q:Quit"))

	return b.String()
}

var blocks = []rune(" ▁▂▃▄▅▆▇█")

// spectrumLines draws bins as vertical bars, width columns by rows lines.
// Each column shows the loudest bin in its slice.
func spectrumLines(bins []uint8, width, rows int) []string {
	lines := make([][]rune, rows)
	for r := range lines {
		lines[r] = []rune(strings.Repeat(" ", width))
	}
	n := len(bins)
	if n == 0 || width <= 0 {
		return runesToStrings(lines)
	}

	for c := 0; c < width; c++ {
		i0 := c * n / width
		i1 := max(i0+1, (c+1)*n/width)
		var peak uint8
		for _, v := range bins[i0:min(i1, n)] {
			peak = max(peak, v)
		}

		level := int(peak) * rows * 8 / 255
		for r := 0; r < rows; r++ {
			fromBottom := rows - 1 - r
			eighths := max(0, min(8, level-fromBottom*8))
			lines[r][c] = blocks[eighths]
		}
	}
	return runesToStrings(lines)
}

// waveLines rasterizes a waveform drawable into text rows
func waveLines(d waveform.Drawable) []string {
	if d.Width <= 0 || d.Height <= 0 {
		return nil
	}

	lines := make([][]rune, d.Height)
	for r := range lines {
		lines[r] = []rune(strings.Repeat(" ", d.Width))
	}

	center := min(d.Height-1, int(d.CenterY))
	for x := 0; x < d.Width; x++ {
		lines[center][x] = '─'
	}

	for _, col := range d.Columns {
		if col.X < 0 || col.X >= d.Width {
			continue
		}
		top := max(0, int(col.YTop))
		bottom := min(d.Height-1, max(top, int(col.YBottom)))
		if top > d.Height-1 {
			continue
		}
		for y := top; y <= bottom; y++ {
			lines[y][col.X] = '█'
		}
	}
	return runesToStrings(lines)
}

func runesToStrings(lines [][]rune) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length]
}
