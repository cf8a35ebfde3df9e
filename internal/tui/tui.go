// Package tui is a terminal browser for a generated report, used after dry runs.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/core"
)

// entry is one selectable row: a summarized category or the catch-all list
type entry struct {
	code    core.CategoryCode
	title   string
	summary *core.SummaryRecord
	links   []core.ClassifiedArticle
}

// Model is the state of the report browser
type Model struct {
	entries     []entry
	selectedIdx int
	width       int
	height      int
	quitting    bool
}

// NewModel builds the browser state for report
func NewModel(report *core.Report, taxonomy *categorization.Taxonomy) Model {
	if taxonomy == nil {
		taxonomy = categorization.DefaultTaxonomy()
	}

	var entries []entry
	for i := range report.Summaries {
		s := &report.Summaries[i]
		entries = append(entries, entry{
			code:    s.Category,
			title:   fmt.Sprintf("%s %s", s.Category, taxonomy.Label(s.Category)),
			summary: s,
		})
	}
	if len(report.OtherArticles) > 0 {
		entries = append(entries, entry{
			code:  core.CategoryOther,
			title: fmt.Sprintf("%s %s (%d)", core.CategoryOther, taxonomy.Label(core.CategoryOther), len(report.OtherArticles)),
			links: report.OtherArticles,
		})
	}
	return Model{entries: entries, width: 100}
}

// Selected returns the category of the highlighted row
func (m Model) Selected() core.CategoryCode {
	if len(m.entries) == 0 {
		return ""
	}
	return m.entries[m.selectedIdx].code
}

// Init is the first command that will be run. We don't need any for now.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.entries)-1 {
				m.selectedIdx++
			}
		}
	}

	return m, nil
}

// View renders the category list next to the selected summary
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	paneWidth := m.width/2 - 5
	if paneWidth < 20 {
		paneWidth = 20
	}
	docStyle := lipgloss.NewStyle().Margin(1, 2)
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	var list strings.Builder
	list.WriteString("Categories\n\n")
	if len(m.entries) == 0 {
		list.WriteString("Nothing to show.")
	}
	for i, e := range m.entries {
		if i == m.selectedIdx {
			list.WriteString(selectedStyle.Render("> "+e.title) + "\n")
		} else {
			list.WriteString("  " + e.title + "\n")
		}
	}

	detail := "No category selected."
	if len(m.entries) > 0 {
		detail = m.entries[m.selectedIdx].detail()
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(list.String()), detailStyle.Render(detail))
	help := "\n\n[↑/k] Up | [↓/j] Down | [q] Quit"
	return docStyle.Render(main + help)
}

func (e entry) detail() string {
	var b strings.Builder
	if e.summary != nil {
		b.WriteString(e.summary.Summary)
		b.WriteString("\n")
		for _, p := range e.summary.KeyPoints {
			b.WriteString("\n• " + p)
		}
		b.WriteString(fmt.Sprintf("\n\n%d articles | %d tokens | $%.4f\n", e.summary.ArticleCount, e.summary.TokensUsed, e.summary.CostUSD))
		for _, u := range e.summary.ArticleURLs {
			b.WriteString("\n" + u)
		}
		return b.String()
	}
	for _, a := range e.links {
		b.WriteString(fmt.Sprintf("• %s\n  %s\n", a.Title, a.URL))
	}
	return b.String()
}

// Browse runs the browser on the alternate screen until the user quits
func Browse(report *core.Report, taxonomy *categorization.Taxonomy) error {
	p := tea.NewProgram(NewModel(report, taxonomy), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running report browser: %w", err)
	}
	return nil
}
