// Package tui implements "shade top", a live view of the running
// compositor fed by the control socket.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/shade/internal/ipc"
)

// Source is what the view polls. *ipc.Client implements it.
type Source interface {
	GetStatus() (*ipc.StatusData, error)
	ListWindows() (*ipc.WindowsData, error)
	Reload() error
	Repaint() error
}

type snapshotMsg struct {
	status  *ipc.StatusData
	windows []ipc.WindowData
	err     error
	at      time.Time
}

type tickMsg time.Time

type actionMsg struct {
	what string
	err  error
}

// windowItem is a list row for one tracked window.
type windowItem struct{ w ipc.WindowData }

func (i windowItem) Title() string {
	dot := lipgloss.NewStyle().Foreground(stateColor(i.w.State)).Render("●")
	return fmt.Sprintf("%s 0x%x  %s", dot, i.w.ID, i.w.Type)
}

func (i windowItem) Description() string {
	return fmt.Sprintf("%dx%d+%d+%d  %s %.2f  %s", i.w.Width, i.w.Height, i.w.X, i.w.Y, i.w.Mode, i.w.Opacity, i.w.State)
}

func (i windowItem) FilterValue() string { return fmt.Sprintf("0x%x %s", i.w.ID, i.w.Type) }

func stateColor(state string) lipgloss.Color {
	switch state {
	case "mapped":
		return lipgloss.Color("42")
	case "mapping":
		return lipgloss.Color("39")
	case "unmapping", "destroying":
		return lipgloss.Color("214")
	default:
		return lipgloss.Color("241")
	}
}

// model is the bubbletea model behind "shade top".
type model struct {
	src      Source
	interval time.Duration

	list      list.Model
	status    *ipc.StatusData
	err       error
	message   string
	lastAt    time.Time
	lastFrame uint64
	fps       float64

	width  int
	height int
}

func newModel(src Source, interval time.Duration) model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("15")).
		BorderForeground(lipgloss.Color("62"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("250")).
		BorderForeground(lipgloss.Color("62"))

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Windows (top first)"
	l.Styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.KeyMap.Quit.SetEnabled(false)

	return model{src: src, interval: interval, list: l}
}

func fetch(src Source) tea.Cmd {
	return func() tea.Msg {
		status, err := src.GetStatus()
		if err != nil {
			return snapshotMsg{err: err, at: time.Now()}
		}
		windows, err := src.ListWindows()
		if err != nil {
			return snapshotMsg{err: err, at: time.Now()}
		}
		return snapshotMsg{status: status, windows: windows.Windows, at: time.Now()}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func act(what string, do func() error) tea.Cmd {
	return func() tea.Msg { return actionMsg{what: what, err: do()} }
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(fetch(m.src), m.tick())
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, act("reload", m.src.Reload)
		case "p":
			return m, act("repaint", m.src.Repaint)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-2, 1))
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetch(m.src), m.tick())

	case snapshotMsg:
		m.apply(msg)
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
		} else {
			m.message = msg.what + " requested"
		}
		return m, fetch(m.src)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// apply records a snapshot and derives the paint rate from the frame
// counter.
func (m *model) apply(s snapshotMsg) {
	m.err = s.err
	if s.err != nil {
		m.status = nil
		m.list.SetItems(nil)
		m.lastAt = time.Time{}
		return
	}
	if !m.lastAt.IsZero() && s.status.FramesPainted >= m.lastFrame {
		if dt := s.at.Sub(m.lastAt).Seconds(); dt > 0 {
			m.fps = float64(s.status.FramesPainted-m.lastFrame) / dt
		}
	}
	m.status = s.status
	m.lastAt = s.at
	m.lastFrame = s.status.FramesPainted

	items := make([]list.Item, len(s.windows))
	for i, w := range s.windows {
		items[i] = windowItem{w: w}
	}
	m.list.SetItems(items)
}

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		renderStatusBar(m.status, m.err, m.fps, m.width),
		m.list.View(),
		renderHelpBar(m.message, m.width),
	)
}

// Run shows the view until the user quits.
func Run(src Source, interval time.Duration) error {
	_, err := tea.NewProgram(newModel(src, interval), tea.WithAltScreen()).Run()
	return err
}
