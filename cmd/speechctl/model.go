package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speech-relay-service/internal/service/recognition"
	"speech-relay-service/internal/service/session"
	"speech-relay-service/internal/service/transcript"
)

// controller is the part of session.Controller the TUI drives.
type controller interface {
	Start(ctx context.Context, language string) error
	Stop() error
	SetLanguage(language string) error
	Clear()
	Copy(w transcript.ClipboardWriter) (bool, error)
	Send(ctx context.Context) (string, error)
	Snapshot() session.Snapshot
}

// TUI message types
type snapshotMsg session.Snapshot
type answerMsg struct{ Text string }
type statusMsg struct {
	Text  string
	Error bool
}
type changedMsg struct {
	Snap   session.Snapshot
	Status string
}

const sendTimeout = 90 * time.Second

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	listeningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	idleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	interimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	answerStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	ctrl      controller
	clip      transcript.ClipboardWriter
	available bool

	snap    session.Snapshot
	answer  string
	status  string
	isError bool
	sending bool
	width   int
}

func newModel(ctrl controller, clip transcript.ClipboardWriter, available bool) model {
	return model{
		ctrl:      ctrl,
		clip:      clip,
		available: available,
		snap:      ctrl.Snapshot(),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case snapshotMsg:
		m.snap = session.Snapshot(msg)

	case answerMsg:
		m.sending = false
		m.answer = msg.Text

	case statusMsg:
		m.status = msg.Text
		m.isError = msg.Error

	case changedMsg:
		m.snap = msg.Snap
		m.status, m.isError = msg.Status, false

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	listening := m.snap.State == session.StateListening

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "s", " ":
		if listening {
			return m, m.stop()
		}
		if !m.available {
			m.status, m.isError = "Speech recognition is not available.", true
			return m, nil
		}
		return m, m.start(m.snap.Language)

	case "l":
		if listening {
			m.status, m.isError = "Language can only change while idle.", true
			return m, nil
		}
		return m, m.setLanguage(recognition.Next(m.snap.Language))

	case "c":
		m.answer = ""
		return m, m.clear()

	case "y":
		ok, err := m.ctrl.Copy(m.clip)
		switch {
		case err != nil:
			m.status, m.isError = "Copy failed: "+err.Error(), true
		case ok:
			m.status, m.isError = "Copied to clipboard.", false
		}

	case "enter":
		if m.snap.Transcript.Finalized == "" || m.sending {
			return m, nil
		}
		m.sending = true
		m.answer = ""
		return m, m.send()
	}
	return m, nil
}

// Controller calls that notify subscribers run as commands, since the
// subscriber blocks in Program.Send until Update returns.
func (m model) setLanguage(language string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.SetLanguage(language); err != nil {
			return statusMsg{Text: err.Error(), Error: true}
		}
		return changedMsg{Snap: ctrl.Snapshot(), Status: "Language: " + recognition.Name(language)}
	}
}

func (m model) clear() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Clear()
		return changedMsg{Snap: ctrl.Snapshot(), Status: "Transcript cleared."}
	}
}

func (m model) start(language string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.Start(context.Background(), language); err != nil {
			return statusMsg{Text: "Start failed: " + err.Error(), Error: true}
		}
		return snapshotMsg(ctrl.Snapshot())
	}
}

func (m model) stop() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.Stop(); err != nil {
			return statusMsg{Text: "Stop failed: " + err.Error(), Error: true}
		}
		return snapshotMsg(ctrl.Snapshot())
	}
}

func (m model) send() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		answer, err := ctrl.Send(ctx)
		if errors.Is(err, transcript.ErrNothingToSend) {
			return answerMsg{}
		}
		if err != nil {
			return answerMsg{Text: err.Error()}
		}
		return answerMsg{Text: answer}
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Speech Relay"))
	b.WriteString("  ")
	if m.snap.State == session.StateListening {
		b.WriteString(listeningStyle.Render("● LISTENING"))
	} else {
		b.WriteString(idleStyle.Render("○ idle"))
	}
	b.WriteString(idleStyle.Render(fmt.Sprintf("  %s (%s)", recognition.Name(m.snap.Language), m.snap.Language)))
	b.WriteString("\n\n")

	finalized := m.snap.Transcript.Finalized
	if finalized == "" && m.snap.Transcript.Interim == "" {
		b.WriteString(idleStyle.Render("Press s and start speaking."))
	} else {
		b.WriteString(wrap(finalized+interimStyle.Render(m.snap.Transcript.Interim), m.width))
	}
	b.WriteString("\n\n")

	if m.sending {
		b.WriteString(idleStyle.Render("Sending..."))
		b.WriteString("\n\n")
	} else if m.answer != "" {
		b.WriteString(answerStyle.Render(wrap(m.answer, m.width-4)))
		b.WriteString("\n\n")
	}

	if m.status != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(idleStyle.Render(m.status))
		}
		b.WriteString("\n")
	}

	send := "enter send"
	if finalized == "" {
		send = "enter send (nothing yet)"
	}
	b.WriteString(helpStyle.Render("s start/stop • l language • c clear • y copy • " + send + " • q quit"))
	b.WriteString("\n")
	return b.String()
}

func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}
