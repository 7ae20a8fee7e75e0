// Package float is a terminal floating timer: a small bubbletea program
// following the secondary surface stream, with a stop control.
package float

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tasktimer/internal/domain"
	"tasktimer/internal/surface"
)

// StopFunc stops taskID on behalf of the surface of the given generation.
type StopFunc func(ctx context.Context, generation string, taskID int64) error

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 2)

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA"))

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

type messageMsg surface.Message

type streamClosedMsg struct{}

type stopDoneMsg struct{ err error }

// Model renders the latest publish. A clear or stopped message blanks it.
type Model struct {
	messages <-chan surface.Message
	stop     StopFunc

	generation string
	taskID     int64
	taskName   string
	seconds    int64
	stopping   bool
	closed     bool
	err        error
}

func New(messages <-chan surface.Message, stop StopFunc) Model {
	return Model{messages: messages, stop: stop}
}

func (m Model) Init() tea.Cmd {
	return waitFor(m.messages)
}

func waitFor(ch <-chan surface.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return messageMsg(msg)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "s", "enter":
			if m.taskID == 0 || m.stopping || m.stop == nil {
				return m, nil
			}
			m.stopping = true
			return m, m.stopCmd()
		}
	case messageMsg:
		m.apply(surface.Message(msg))
		return m, waitFor(m.messages)
	case stopDoneMsg:
		m.stopping = false
		m.err = msg.err
		if msg.err == nil {
			m.blank()
		}
	case streamClosedMsg:
		m.closed = true
		return m, tea.Quit
	}
	return m, nil
}

// apply adopts the message's generation: the stream only carries messages
// accepted for the live surface.
func (m *Model) apply(msg surface.Message) {
	if msg.Validate() != nil {
		return
	}
	m.generation = msg.Generation
	switch msg.Kind {
	case surface.KindPublish:
		m.taskID = msg.Publish.TaskID
		m.taskName = msg.Publish.TaskName
		m.seconds = msg.Publish.Seconds
		m.err = nil
	case surface.KindClear, surface.KindStopped:
		m.blank()
	}
}

func (m *Model) blank() {
	m.taskID = 0
	m.taskName = ""
	m.seconds = 0
}

func (m Model) stopCmd() tea.Cmd {
	gen, id, stop := m.generation, m.taskID, m.stop
	return func() tea.Msg {
		return stopDoneMsg{err: stop(context.Background(), gen, id)}
	}
}

func (m Model) View() string {
	var body string
	switch {
	case m.closed:
		body = idleStyle.Render("stream closed")
	case m.taskID == 0:
		body = idleStyle.Render("no timer running")
	default:
		body = fmt.Sprintf("%s\n%s", nameStyle.Render(m.taskName), clockStyle.Render(domain.FormatClock(m.seconds)))
	}
	if m.err != nil {
		body += "\n" + errStyle.Render(m.err.Error())
	}
	hint := "[q] quit"
	if m.taskID != 0 {
		hint = "[s] stop  [q] quit"
	}
	return boxStyle.Render(body) + "\n" + hintStyle.Render(hint) + "\n"
}

// Run drives the program until the user quits or the stream ends.
func Run(ctx context.Context, messages <-chan surface.Message, stop StopFunc, opts ...tea.ProgramOption) error {
	opts = append(opts, tea.WithContext(ctx))
	_, err := tea.NewProgram(New(messages, stop), opts...).Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
