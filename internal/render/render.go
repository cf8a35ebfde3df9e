package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/core"
)

// Renderer turns reports into Markdown documents and terminal previews
type Renderer struct {
	taxonomy *categorization.Taxonomy
	loc      *time.Location
}

// NewRenderer creates a renderer. Dates are shown in loc.
func NewRenderer(taxonomy *categorization.Taxonomy, loc *time.Location) *Renderer {
	if taxonomy == nil {
		taxonomy = categorization.DefaultTaxonomy()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{taxonomy: taxonomy, loc: loc}
}

func (r *Renderer) heading(code core.CategoryCode) string {
	cat, ok := r.taxonomy.Get(code)
	if !ok {
		return string(code)
	}
	if cat.Icon != "" {
		return fmt.Sprintf("%s %s: %s", cat.Icon, code, cat.Label)
	}
	return fmt.Sprintf("%s: %s", code, cat.Label)
}

// Markdown renders the report as a Markdown document
func (r *Renderer) Markdown(report *core.Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# 📰 Daily Topic - %s\n\n", report.Date.In(r.loc).Format("2006-01-02")))

	if len(report.Summaries) == 0 && len(report.OtherArticles) == 0 {
		b.WriteString("No articles processed for this report.\n")
		return b.String()
	}

	for _, s := range report.Summaries {
		if s.Category == core.CategoryOther {
			continue
		}
		b.WriteString(fmt.Sprintf("## %s\n\n", r.heading(s.Category)))
		b.WriteString(s.Summary + "\n\n")
		if len(s.KeyPoints) > 0 {
			for _, point := range s.KeyPoints {
				b.WriteString(fmt.Sprintf("- %s\n", point))
			}
			b.WriteString("\n")
		}
		for i, u := range s.ArticleURLs {
			b.WriteString(fmt.Sprintf("[^%s-%d]: %s\n", s.Category, i+1, u))
		}
		b.WriteString(fmt.Sprintf("\n*confidence %.2f | %d articles | %d tokens | $%.4f*\n\n---\n\n",
			s.Confidence, s.ArticleCount, s.TokensUsed, s.CostUSD))
	}

	if len(report.OtherArticles) > 0 {
		b.WriteString(fmt.Sprintf("## %s (%d)\n\n", r.heading(core.CategoryOther), len(report.OtherArticles)))
		for _, a := range report.OtherArticles {
			title := a.Title
			if title == "" {
				title = a.URL
			}
			b.WriteString(fmt.Sprintf("- [%s](%s)\n", title, a.URL))
		}
		b.WriteString("\n---\n\n")
	}

	b.WriteString(fmt.Sprintf("📊 %d articles | %d tokens | $%.4f | %.1fs\n",
		report.TotalArticles, report.TotalTokens, report.TotalCostUSD, report.ProcessingTime.Seconds()))
	return b.String()
}

// WriteReportToFile writes content to path, creating parent directories
func WriteReportToFile(content, path string) (string, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write report file %s: %w", path, err)
	}
	return path, nil
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headingStyle = lipgloss.NewStyle().Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(0, 1)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Preview renders the report for the terminal, one bordered box per category
func (r *Renderer) Preview(report *core.Report, width int) string {
	if width <= 0 {
		width = 80
	}
	box := boxStyle.Width(width - 4)

	parts := []string{titleStyle.Render(fmt.Sprintf("📰 Daily Topic - %s", report.Date.In(r.loc).Format("2006-01-02")))}
	for _, s := range report.Summaries {
		if s.Category == core.CategoryOther {
			continue
		}
		body := []string{headingStyle.Render(r.heading(s.Category)), s.Summary}
		for _, point := range s.KeyPoints {
			body = append(body, "• "+point)
		}
		for _, u := range s.ArticleURLs {
			body = append(body, mutedStyle.Render(u))
		}
		parts = append(parts, box.Render(strings.Join(body, "\n")))
	}

	if len(report.OtherArticles) > 0 {
		body := []string{headingStyle.Render(fmt.Sprintf("%s (%d)", r.heading(core.CategoryOther), len(report.OtherArticles)))}
		for _, a := range report.OtherArticles {
			body = append(body, mutedStyle.Render(a.URL))
		}
		parts = append(parts, box.Render(strings.Join(body, "\n")))
	}

	parts = append(parts, mutedStyle.Render(fmt.Sprintf("📊 %d articles | %d tokens | $%.4f | %.1fs",
		report.TotalArticles, report.TotalTokens, report.TotalCostUSD, report.ProcessingTime.Seconds())))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Table renders rows under headers with a normal border
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...)
	return t.Render()
}

// CategoryTable lists the taxonomy
func (r *Renderer) CategoryTable() string {
	var rows [][]string
	for _, cat := range r.taxonomy.Categories() {
		rows = append(rows, []string{string(cat.Code), cat.Icon, cat.Label, strings.Join(cat.Keywords, ", ")})
	}
	return Table([]string{"Code", "", "Label", "Keywords"}, rows)
}
