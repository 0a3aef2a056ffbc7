// Package ui renders the sender and receiver terminal experience: a code
// phrase display while waiting for a peer, a per-file progress list while
// transferring, and a final success or error screen. A headless caller
// bypasses this entirely and prints plain lines instead, as the headless
// branches of cmd/aircode do.
package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type State int

const (
	StateConnecting State = iota
	StateTransferring
	StateDone
	StateError
)

type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// StatusMsg carries a one-line status update (e.g. "Waiting for
// receiver...", "Authenticating...").
type StatusMsg string

// FileDoneMsg reports that one file finished transferring.
type FileDoneMsg struct {
	Name  string
	Size  uint64
	Index int
	Total int
}

// DoneMsg signals the whole transfer completed successfully.
type DoneMsg struct {
	Destination string
}

// ErrorMsg carries a fatal error; the program quits after receiving one.
type ErrorMsg error

// Model is the bubbletea model both send and receive share.
type Model struct {
	Role        Role
	State       State
	Phrase      string
	Destination string
	Spinner     spinner.Model
	Progress    progress.Model
	Status      string
	LastFile    string
	FilesDone   int
	FilesTotal  int
	Err         error
}

// NewModel constructs the initial model. phrase is the code phrase (sender
// displays it; receiver leaves it blank since it was supplied on input).
func NewModel(role Role, phrase string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	p := progress.New(
		progress.WithGradient(string(ColorPrimary), string(ColorSecondary)),
		progress.WithWidth(40),
	)

	return Model{
		Role:     role,
		State:    StateConnecting,
		Phrase:   phrase,
		Spinner:  s,
		Progress: p,
		Status:   "Waiting...",
	}
}

func (m Model) Init() tea.Cmd {
	return m.Spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		newProgress, cmd := m.Progress.Update(msg)
		m.Progress = newProgress.(progress.Model)
		return m, cmd

	case StatusMsg:
		m.Status = string(msg)

	case FileDoneMsg:
		m.State = StateTransferring
		m.LastFile = msg.Name
		m.FilesDone = msg.Index
		m.FilesTotal = msg.Total
		ratio := 0.0
		if msg.Total > 0 {
			ratio = float64(msg.Index) / float64(msg.Total)
		}
		cmd := m.Progress.SetPercent(ratio)
		return m, cmd

	case DoneMsg:
		m.State = StateDone
		m.Destination = msg.Destination
		return m, tea.Quit

	case ErrorMsg:
		m.State = StateError
		m.Err = msg
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.Err != nil {
		return ContainerStyle.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				ErrorStyle.Render("Transfer failed"),
				fmt.Sprintf("%v", m.Err),
			),
		)
	}

	var content string

	switch m.State {
	case StateConnecting:
		header := TitleStyle.Render("aircode")
		info := ""
		if m.Role == RoleSender {
			info = ViewCode(m.Phrase)
		}
		content = lipgloss.JoinVertical(lipgloss.Center, header, info, m.Spinner.View(), m.Status)

	case StateTransferring:
		header := TitleStyle.Render("Transferring")
		counter := StatValueStyle.Render(fmt.Sprintf("%d / %d files", m.FilesDone, m.FilesTotal))
		last := StatLabelStyle.Render("Last: ") + m.LastFile
		content = lipgloss.JoinVertical(lipgloss.Center, header, counter, m.Progress.View(), last)

	case StateDone:
		header := SuccessStyle.Render("Transfer complete")
		content = lipgloss.JoinVertical(lipgloss.Center, header, m.Destination)
	}

	return ContainerStyle.Render(content)
}
