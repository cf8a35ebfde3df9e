package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Tedsan/daily-topic/internal/core"
)

func sampleReport() *core.Report {
	report := core.NewReport(time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC))
	report.AddSummary(core.SummaryRecord{
		Category:     core.CategorySDV,
		Summary:      "AUTOSAR roundup",
		KeyPoints:    []string{"Adaptive platform release"},
		ArticleCount: 2,
		ArticleURLs:  []string{"https://example.com/sdv"},
	})
	report.AddSummary(core.SummaryRecord{Category: core.CategoryGenAITech, Summary: "Model news", ArticleCount: 1})
	report.AddOtherArticles([]core.ClassifiedArticle{
		{Article: core.Article{URL: "https://example.com/other", Title: "Cooking"}, Category: core.CategoryOther},
	})
	return report
}

func TestNewModelListsSummariesThenOther(t *testing.T) {
	m := NewModel(sampleReport(), nil)

	if len(m.entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(m.entries))
	}
	expected := []core.CategoryCode{core.CategorySDV, core.CategoryGenAITech, core.CategoryOther}
	for i, code := range expected {
		if m.entries[i].code != code {
			t.Errorf("entries[%d] = %s, expected %s", i, m.entries[i].code, code)
		}
	}
}

func TestUpdateMovesSelectionWithinBounds(t *testing.T) {
	var model tea.Model = NewModel(sampleReport(), nil)

	up := tea.KeyMsg{Type: tea.KeyUp}
	down := tea.KeyMsg{Type: tea.KeyDown}

	model, _ = model.Update(up)
	if got := model.(Model).Selected(); got != core.CategorySDV {
		t.Errorf("Selected after up = %s, expected C1", got)
	}

	for i := 0; i < 5; i++ {
		model, _ = model.Update(down)
	}
	if got := model.(Model).Selected(); got != core.CategoryOther {
		t.Errorf("Selected after down = %s, expected C6", got)
	}
}

func TestViewShowsSelectedSummary(t *testing.T) {
	var model tea.Model = NewModel(sampleReport(), nil)
	model, _ = model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})

	view := model.View()
	if !strings.Contains(view, "AUTOSAR roundup") {
		t.Errorf("Expected the first summary in the view, got:\n%s", view)
	}
	if !strings.Contains(view, "Adaptive platform release") {
		t.Errorf("Expected key points in the view")
	}
}

func TestQuitKey(t *testing.T) {
	var model tea.Model = NewModel(sampleReport(), nil)
	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Error("Expected a quit command")
	}
	if model.View() != "" {
		t.Error("Expected an empty view after quitting")
	}
}
