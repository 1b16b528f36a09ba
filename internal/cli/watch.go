package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tasksync/backend"
	tsync "tasksync/internal/sync"
)

const (
	watchRefresh = time.Second
	watchHistory = 8
)

type statusTickMsg time.Time

type roundMsg tsync.Round

type syncNowMsg struct{ err error }

// WatchModel is the live sync status view behind `tasksync sync watch`
type WatchModel struct {
	status  func() backend.SyncStatus
	syncNow func() error
	rounds  <-chan tsync.Round
	now     func() time.Time

	spinner  spinner.Model
	current  backend.SyncStatus
	history  []tsync.Round
	notice   string
	width    int
	quitting bool
}

// NewWatchModel creates the view. status is polled every second; rounds delivers the
// outcome of every scheduler round; syncNow runs when the user presses "s".
func NewWatchModel(status func() backend.SyncStatus, rounds <-chan tsync.Round, syncNow func() error) WatchModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(Colors.Primary)

	return WatchModel{
		status:  status,
		syncNow: syncNow,
		rounds:  rounds,
		now:     time.Now,
		spinner: s,
		current: status(),
		width:   80,
	}
}

// Init starts the spinner, the status poll and the round listener
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.pollStatus(), m.waitForRound())
}

func (m WatchModel) pollStatus() tea.Cmd {
	return tea.Tick(watchRefresh, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m WatchModel) waitForRound() tea.Cmd {
	if m.rounds == nil {
		return nil
	}
	return func() tea.Msg {
		r, ok := <-m.rounds
		if !ok {
			return nil
		}
		return roundMsg(r)
	}
}

// Update handles key presses, status polls and round notifications
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.quitting = true
			return m, tea.Quit
		case "s":
			if m.syncNow == nil {
				return m, nil
			}
			m.notice = ""
			m.current.IsSyncing = true
			syncNow := m.syncNow
			return m, func() tea.Msg { return syncNowMsg{err: syncNow()} }
		}
		return m, nil

	case statusTickMsg:
		m.current = m.status()
		return m, m.pollStatus()

	case roundMsg:
		m.history = append(m.history, tsync.Round(msg))
		if len(m.history) > watchHistory {
			m.history = m.history[len(m.history)-watchHistory:]
		}
		m.current = m.status()
		return m, m.waitForRound()

	case syncNowMsg:
		if errors.Is(msg.err, tsync.ErrSyncInProgress) {
			m.notice = "A sync is already in progress"
		}
		m.current = m.status()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the status chip, recent rounds and key hints
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("tasksync · sync watch"))
	b.WriteString("\n\n")

	if m.current.IsSyncing {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString(RenderStatus(m.current, m.now()))
	b.WriteString("\n\n")

	if len(m.history) == 0 {
		b.WriteString(mutedStyle.Render("Waiting for the first round…"))
		b.WriteString("\n")
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		b.WriteString(FormatRound(m.history[i]))
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(Colors.Warning).Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("s sync now · q quit"))
	return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
}

// FormatRound renders one round as a single line
func FormatRound(r tsync.Round) string {
	stamp := mutedStyle.Render(r.At.Local().Format("15:04:05"))
	trigger := fmt.Sprintf("%-6s", r.Trigger)

	if r.Err != nil {
		mark := lipgloss.NewStyle().Foreground(Colors.Error).Render("✗")
		return fmt.Sprintf("%s %s %s %s", stamp, trigger, mark, firstLine(r.Err.Error()))
	}

	mark := lipgloss.NewStyle().Foreground(Colors.Success).Render("✓")
	var parts []string
	if r.Push != nil {
		parts = append(parts, fmt.Sprintf("%d pushed", r.Push.Pushed))
		if r.Push.Conflicts > 0 {
			parts = append(parts, fmt.Sprintf("%d rejected", r.Push.Conflicts))
		}
	}
	if r.Pull != nil {
		parts = append(parts, fmt.Sprintf("%d pulled", r.Pull.Applied))
		if r.Pull.Conflicts > 0 {
			parts = append(parts, fmt.Sprintf("%d overwritten", r.Pull.Conflicts))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	return fmt.Sprintf("%s %s %s %s", stamp, trigger, mark, strings.Join(parts, ", "))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
