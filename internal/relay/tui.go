// ABOUTME: Relay TUI for displaying bots and stream state
// ABOUTME: Real-time relay status display using bubbletea
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tuiModel is the bubbletea model for the relay TUI
type tuiModel struct {
	poll     func() Status
	status   Status
	quitting bool
}

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.poll != nil {
			m.status = m.poll()
		}
		return m, tickEvery()
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down relay...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	botHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Streamtap Relay"))
	b.WriteString("\n\n")

	for _, row := range [][2]string{
		{"Relay: ", m.status.Name},
		{"Address: ", m.status.Address},
		{"Uptime: ", m.status.Uptime.Round(time.Second).String()},
		{"Playing: ", m.status.Source},
	} {
		b.WriteString(headerStyle.Render(row[0]))
		b.WriteString(valueStyle.Render(row[1]))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(botHeaderStyle.Render(fmt.Sprintf("Bots (%d)", len(m.status.Bots))))
	b.WriteString("\n\n")

	if len(m.status.Bots) == 0 {
		b.WriteString(valueStyle.Render("  No bots created"))
		b.WriteString("\n")
	} else {
		for _, bot := range m.status.Bots {
			name := bot.Name
			if name == "" {
				name = bot.BotID
			}
			b.WriteString(fmt.Sprintf("  • %s", name))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %d streams)", bot.Status, bot.Streams)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// RunTUI shows the relay status until the user quits or ctx ends
func (s *Server) RunTUI(ctx context.Context) error {
	m := tuiModel{poll: s.Status, status: s.Status()}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
