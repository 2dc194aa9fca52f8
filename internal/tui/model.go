package tui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tinyimg/internal/processor"
)

// Model renders batch progress from the processor's update stream.
type Model struct {
	updates   <-chan processor.ProgressUpdate
	started   time.Time
	width     int
	total     int
	finished  int
	failed    int
	lossy     int
	inBytes   int64
	outBytes  int64
	current   string
	stage     processor.Stage
	quitting  bool
	cancelled bool
}

type doneMsg struct{}

type updateMsg processor.ProgressUpdate

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "stop"),
	),
}

func NewModel(updates <-chan processor.ProgressUpdate) Model {
	return Model{updates: updates, started: time.Now()}
}

// Cancelled reports whether the user stopped the batch from the keyboard.
func (m Model) Cancelled() bool {
	return m.cancelled
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m = m.apply(processor.ProgressUpdate(msg))
		return m, listenForUpdates(m.updates)
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.cancelled = true
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) apply(u processor.ProgressUpdate) Model {
	if u.Total > 0 {
		m.total = u.Total
	}
	if u.Path != "" {
		m.current = u.Path
		m.stage = u.Stage
	}
	if r := u.Result; r != nil {
		m.finished++
		if r.Err != nil {
			m.failed++
			return m
		}
		m.inBytes += r.InputSize
		m.outBytes += r.OutputSize
		if r.Selection != nil && r.Selection.Applied {
			m.lossy++
		}
	}
	return m
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	ratio := 0.0
	if m.total > 0 {
		ratio = float64(m.finished) / float64(m.total)
		if ratio > 1 {
			ratio = 1
		}
	}

	elapsed := time.Since(m.started).Round(time.Millisecond)
	current := "waiting"
	if m.current != "" {
		current = fmt.Sprintf("%s (%s)", filepath.Base(m.current), m.stage)
	}

	lines := []string{
		titleStyle.Render("tinyimg"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.finished, m.total)) + failedStyle(m.failed).Render(fmt.Sprintf("  failed:%d", m.failed)),
		labelStyle.Render(fmt.Sprintf("Lossy applied: %d", m.lossy)),
		labelStyle.Render("Saved: ") + savedStyle.Render(processor.FormatBytes(m.inBytes-m.outBytes)),
		dimStyle.Render("Current: " + current),
		dimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		barStyle.Render(renderBar(barWidth, ratio)),
		dimStyle.Render(keys.Quit.Help().Key + " to " + keys.Quit.Help().Desc),
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan processor.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

func failedStyle(n int) lipgloss.Style {
	if n > 0 {
		return warnStyle
	}
	return dimStyle
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(ColorInk)
	barStyle   = lipgloss.NewStyle().Foreground(ColorAccentAlt)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
	warnStyle  = lipgloss.NewStyle().Foreground(ColorWarn)
	savedStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
)
