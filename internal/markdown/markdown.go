// Package markdown converts readable HTML into cleaned Markdown and derives
// the plain body text used for the article length check.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// strippedTags never carry article content
var strippedTags = []string{"script", "style", "nav", "header", "footer", "aside"}

// keptEmptyTags are never removed by the empty element pass
var keptEmptyTags = map[string]bool{
	"html": true, "head": true, "body": true,
	"img": true, "br": true, "hr": true,
}

// Rule is one ordered text substitution applied to converted Markdown
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Apply runs the rule over text
func (r Rule) Apply(text string) string {
	return r.Pattern.ReplaceAllString(text, r.Replacement)
}

// boilerplate builds a rule that deletes from a phrase to the end of the line.
func boilerplate(name, phrase string) Rule {
	return Rule{
		Name:    name,
		Pattern: regexp.MustCompile(`(?i)` + phrase + `.*`),
	}
}

// CleanupRules are applied in order after conversion. The text is trimmed once more at the end.
var CleanupRules = []Rule{
	{Name: "blank-lines", Pattern: regexp.MustCompile(`\n\s*\n\s*\n`), Replacement: "\n\n"},
	{Name: "spaces", Pattern: regexp.MustCompile(` +`), Replacement: " "},
	boilerplate("cookie-notice", `Cookie使用に関する通知`),
	boilerplate("privacy-policy", `プライバシーポリシー`),
	boilerplate("terms", `利用規約`),
	boilerplate("ads", `広告`),
	boilerplate("sponsor", `スポンサー`),
	boilerplate("related", `関連記事`),
	boilerplate("recommended", `おすすめ記事`),
	boilerplate("popular", `人気記事`),
	boilerplate("latest", `最新記事`),
	boilerplate("see-more", `もっと見る`),
	boilerplate("read-more", `続きを読む`),
	boilerplate("note-marker", `※`),
	{Name: "english-boilerplate", Pattern: regexp.MustCompile(`(?im)^[ \t]*(advertisement|sponsored content|related articles|read more)[ \t]*$`)},
}

var converter = newConverter()

func newConverter() *md.Converter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		EmDelimiter:      "*",
		StrongDelimiter:  "**",
		CodeBlockStyle:   "fenced",
	})
	return conv
}

// HTMLToMarkdown strips non-content elements from html, converts the rest to
// Markdown and applies CleanupRules.
func HTMLToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find(strings.Join(strippedTags, ", ")).Remove()
	removeEmptyElements(doc)

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}

	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to convert html to markdown: %w", err)
	}

	return Clean(markdown), nil
}

// removeEmptyElements drops every element without text and without an img, br or hr inside.
func removeEmptyElements(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if keptEmptyTags[goquery.NodeName(s)] {
			return
		}
		if strings.TrimSpace(s.Text()) != "" {
			return
		}
		if s.Find("img, br, hr").Length() > 0 {
			return
		}
		s.Remove()
	})
}

// Clean applies CleanupRules to converted Markdown
func Clean(markdown string) string {
	text := markdown
	for _, rule := range CleanupRules {
		text = rule.Apply(text)
	}
	return strings.TrimSpace(text)
}

var (
	linkPattern     = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	emphasisPattern = regexp.MustCompile(`[*_]{1,2}([^*_]+)[*_]{1,2}`)
	spacePattern    = regexp.MustCompile(`\s+`)
	headingPattern  = regexp.MustCompile(`(?m)^#+\s*`)
)

// skippedLinePrefixes mark Markdown lines that carry no body text
var skippedLinePrefixes = []string{"#", "http", "![", "```"}

// ExtractBodyText reduces Markdown to a single line of prose. Headings, bare
// links, images and code fences are dropped; link labels and emphasized text are kept.
func ExtractBodyText(markdown string) string {
	var kept []string
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || hasAnyPrefix(line, skippedLinePrefixes) {
			continue
		}
		kept = append(kept, line)
	}

	text := strings.Join(kept, " ")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = emphasisPattern.ReplaceAllString(text, "$1")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// StripForClassification applies the lighter reduction used on the body prefix
// fed to the classifier: link labels, no heading markers, no emphasis.
func StripForClassification(markdown string) string {
	text := linkPattern.ReplaceAllString(markdown, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	return emphasisPattern.ReplaceAllString(text, "$1")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
