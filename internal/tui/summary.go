package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tinyimg/internal/processor"
)

type SummaryRow struct {
	Label string
	Value string
}

// SummaryRows turns a batch summary into the rows printed after a run.
func SummaryRows(s processor.Summary) []SummaryRow {
	saved := s.SpaceSaved()
	pct := 0.0
	if s.InputBytes > 0 {
		pct = float64(saved) / float64(s.InputBytes) * 100
	}
	rows := []SummaryRow{
		{Label: "Files optimized", Value: fmt.Sprintf("%d/%d", s.Succeeded, s.Total)},
		{Label: "Input size", Value: processor.FormatBytes(s.InputBytes)},
		{Label: "Output size", Value: processor.FormatBytes(s.OutputBytes)},
		{Label: "Space saved", Value: fmt.Sprintf("%s (%.1f%%)", processor.FormatBytes(saved), pct)},
	}
	if s.LossyApplied > 0 {
		rows = append(rows, SummaryRow{Label: "Lossy applied", Value: fmt.Sprintf("%d", s.LossyApplied)})
	}
	if s.Failed > 0 {
		rows = append(rows, SummaryRow{Label: "Failed", Value: fmt.Sprintf("%d", s.Failed)})
	}
	rows = append(rows, SummaryRow{Label: "Elapsed", Value: s.Elapsed.Round(time.Millisecond).String()})
	return rows
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := dimStyle.Render(strings.Repeat("-", labelWidth+valueWidth+3))
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		lines = append(lines, fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value)))
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

var valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
