package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"tasksync/backend"
)

// Colors is the palette shared by the status chip, the task table and the watch view
var Colors = struct {
	Primary lipgloss.Color
	Muted   lipgloss.Color
	Error   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color

	Todo       lipgloss.Color
	InProgress lipgloss.Color
	Done       lipgloss.Color
}{
	Primary: lipgloss.Color("#6C5CE7"),
	Muted:   lipgloss.Color("#636E72"),
	Error:   lipgloss.Color("#D63031"),
	Success: lipgloss.Color("#00B894"),
	Warning: lipgloss.Color("#FDCB6E"),

	Todo:       lipgloss.Color("#74B9FF"),
	InProgress: lipgloss.Color("#FDCB6E"),
	Done:       lipgloss.Color("#00B894"),
}

var (
	chipStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(Colors.Muted)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(Colors.Primary)
	errorStyle  = lipgloss.NewStyle().Foreground(Colors.Error)
)

// GetTerminalWidth returns the current terminal width, defaulting to 80 if unable to detect
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// StatusLabel is the short state shown in the chip
func StatusLabel(status backend.SyncStatus) string {
	switch {
	case status.IsSyncing:
		return "Syncing…"
	case status.HasError():
		return "Error"
	case status.PendingChanges > 0:
		return fmt.Sprintf("%d pending", status.PendingChanges)
	case status.LastSyncAt == nil:
		return "Never synced"
	default:
		return "Synced"
	}
}

// StatusChip renders the sync state as a colored badge
func StatusChip(status backend.SyncStatus) string {
	color := Colors.Success
	switch {
	case status.IsSyncing:
		color = Colors.Primary
	case status.HasError():
		color = Colors.Error
	case status.PendingChanges > 0 || status.LastSyncAt == nil:
		color = Colors.Warning
	}
	return chipStyle.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(color).
		Render(StatusLabel(status))
}

// FormatSince renders how long ago t was, relative to now
func FormatSince(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	d := now.Sub(*t)
	switch {
	case d < 0:
		return t.Local().Format("2006-01-02 15:04")
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

// RenderStatus renders the chip followed by the details of the last sync
func RenderStatus(status backend.SyncStatus, now time.Time) string {
	var b strings.Builder
	b.WriteString(StatusChip(status))
	b.WriteString(" ")
	b.WriteString(mutedStyle.Render("last sync " + FormatSince(status.LastSyncAt, now)))
	if status.PendingChanges > 0 && (status.IsSyncing || status.HasError()) {
		b.WriteString(mutedStyle.Render(fmt.Sprintf(" · %d pending", status.PendingChanges)))
	}
	if status.HasError() {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(status.Error))
	}
	return b.String()
}

// ShowStatus writes RenderStatus to w
func ShowStatus(w io.Writer, status backend.SyncStatus) {
	fmt.Fprintln(w, RenderStatus(status, time.Now()))
}

func statusColor(s backend.TaskStatus) lipgloss.Color {
	switch s {
	case backend.StatusInProgress:
		return Colors.InProgress
	case backend.StatusDone:
		return Colors.Done
	default:
		return Colors.Todo
	}
}

func statusSymbol(s backend.TaskStatus) string {
	switch s {
	case backend.StatusInProgress:
		return "◐"
	case backend.StatusDone:
		return "✓"
	default:
		return "○"
	}
}

// ShowTasks displays tasks as a table sized to the terminal width.
// domains maps a domain ID to its name.
func ShowTasks(w io.Writer, tasks []backend.Task, domains map[string]string) {
	width := GetTerminalWidth()
	if width > 120 {
		width = 120
	}

	if len(tasks) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No tasks"))
		return
	}

	const idWidth, prioWidth, domainWidth, dueWidth = 8, 4, 12, 10
	titleWidth := width - idWidth - prioWidth - domainWidth - dueWidth - 10
	if titleWidth < 20 {
		titleWidth = 20
	}

	cell := func(s string, n int) string {
		return lipgloss.NewStyle().Width(n).Render(truncate(s, n))
	}

	header := strings.Join([]string{
		"  ", cell("ID", idWidth), cell("TITLE", titleWidth), cell("PRI", prioWidth),
		cell("DOMAIN", domainWidth), cell("DUE", dueWidth),
	}, " ")
	fmt.Fprintln(w, headerStyle.Render(header))

	for _, t := range tasks {
		symbol := lipgloss.NewStyle().Foreground(statusColor(t.Status)).Render(statusSymbol(t.Status))
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Local().Format("2006-01-02")
		}
		prio := ""
		if t.Priority > 0 {
			prio = strings.Repeat("!", t.Priority)
		}
		row := strings.Join([]string{
			symbol + " ",
			mutedStyle.Render(cell(shortID(t.ID), idWidth)),
			cell(t.Title, titleWidth),
			cell(prio, prioWidth),
			cell(domains[t.DomainID], domainWidth),
			cell(due, dueWidth),
		}, " ")
		fmt.Fprintln(w, row)
	}
}

// ShowDomains displays domains with their colors and task counts
func ShowDomains(w io.Writer, domains []backend.Domain, counts map[string]int) {
	if len(domains) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No domains"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render("Domains"))
	for _, d := range domains {
		name := lipgloss.NewStyle().Bold(true)
		if d.Color != "" {
			name = name.Foreground(lipgloss.Color(d.Color))
		}
		line := fmt.Sprintf("  %s %s", mutedStyle.Render(shortID(d.ID)), name.Render(d.Name))
		if d.Icon != "" {
			line += " " + d.Icon
		}
		if n := counts[d.ID]; n > 0 {
			suffix := "s"
			if n == 1 {
				suffix = ""
			}
			line += mutedStyle.Render(fmt.Sprintf(" (%d task%s)", n, suffix))
		}
		if d.IsDefault {
			line += mutedStyle.Render(" [default]")
		}
		fmt.Fprintln(w, line)
		if d.Description != "" {
			fmt.Fprintln(w, "      "+mutedStyle.Render(d.Description))
		}
	}
}

// truncate shortens s to n cells, marking the cut with an ellipsis
func truncate(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > n {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
