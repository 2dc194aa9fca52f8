package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"tinyimg/internal/lossy"
	"tinyimg/internal/processor"
)

func TestModelCountsResults(t *testing.T) {
	var m tea.Model = NewModel(nil)
	updates := []processor.ProgressUpdate{
		{Total: 3, Index: -1},
		{Index: 0, Path: "a.png", Stage: processor.StageDecoding},
		{Index: 0, Path: "a.png", Stage: processor.StageDone, Result: &processor.Result{
			InputSize: 1000, OutputSize: 600, Stage: processor.StageDone,
			Selection: &lossy.Selection{Colors: 16, Applied: true},
		}},
		{Index: 1, Path: "b.png", Stage: processor.StageFailed, Result: &processor.Result{
			InputSize: 500, Stage: processor.StageFailed, Err: errors.New("boom"),
		}},
	}
	for _, u := range updates {
		m, _ = m.Update(updateMsg(u))
	}

	got := m.(Model)
	if got.total != 3 || got.finished != 2 || got.failed != 1 || got.lossy != 1 {
		t.Fatalf("counters = total %d finished %d failed %d lossy %d", got.total, got.finished, got.failed, got.lossy)
	}
	if got.inBytes-got.outBytes != 400 {
		t.Errorf("saved = %d, want 400", got.inBytes-got.outBytes)
	}
	if got.current != "b.png" || got.stage != processor.StageFailed {
		t.Errorf("current = %s (%s)", got.current, got.stage)
	}
	if !strings.Contains(got.View(), "Files: 2/3") {
		t.Errorf("view missing file count:\n%s", got.View())
	}
}

func TestModelQuitKey(t *testing.T) {
	m, cmd := NewModel(nil).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !m.(Model).Cancelled() {
		t.Error("quit key should mark the batch cancelled")
	}

	m, _ = NewModel(nil).Update(doneMsg{})
	if m.(Model).Cancelled() || m.View() != "" {
		t.Error("closing the update stream is not a cancellation")
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		width int
		ratio float64
		want  string
	}{
		{4, 0, "[    ]"},
		{4, 0.5, "[==  ]"},
		{4, 1, "[====]"},
		{4, 2, "[====]"},
		{4, -1, "[    ]"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.width, tt.ratio); got != tt.want {
			t.Errorf("renderBar(%d, %v) = %q, want %q", tt.width, tt.ratio, got, tt.want)
		}
	}
}

func TestSummaryRows(t *testing.T) {
	rows := SummaryRows(processor.Summary{Total: 2, Succeeded: 2, InputBytes: 2048, OutputBytes: 1024})
	values := map[string]string{}
	for _, r := range rows {
		values[r.Label] = r.Value
	}
	if values["Files optimized"] != "2/2" {
		t.Errorf("files = %q", values["Files optimized"])
	}
	if values["Space saved"] != "1.0 KiB (50.0%)" {
		t.Errorf("saved = %q", values["Space saved"])
	}
	if _, ok := values["Failed"]; ok {
		t.Error("failed row shown for a clean batch")
	}

	out := RenderSummary(rows)
	if n := strings.Count(out, "\n"); n != len(rows)+1 {
		t.Errorf("summary has %d line breaks, want %d", n, len(rows)+1)
	}
}
