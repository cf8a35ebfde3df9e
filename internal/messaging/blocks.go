package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/timeutil"
)

// Block Kit limits
const (
	MaxPayloadBytes     = 4000
	MaxBlocksPerMessage = 50
)

const (
	maxSourceLinks     = 5
	otherChunkSize     = 5
	maxURLsPerCategory = 10
	maxTraceLength     = 500
	maxListTitleLength = 50
)

// Message is one chat message worth of blocks with its notification text
type Message struct {
	Text   string
	Blocks []slack.Block
}

// BlockBuilder renders reports and notifications as Block Kit
type BlockBuilder struct {
	taxonomy *categorization.Taxonomy
	loc      *time.Location
	now      func() time.Time
}

// NewBlockBuilder creates a builder. Dates are rendered in loc.
func NewBlockBuilder(taxonomy *categorization.Taxonomy, loc *time.Location) *BlockBuilder {
	if taxonomy == nil {
		taxonomy = categorization.DefaultTaxonomy()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BlockBuilder{taxonomy: taxonomy, loc: loc, now: time.Now}
}

func header(text string) slack.Block {
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

func section(text string) slack.Block {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func contextLine(text string) slack.Block {
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}

func divider() slack.Block {
	return slack.NewDividerBlock()
}

// PayloadSize returns the JSON size of blocks in bytes
func PayloadSize(blocks []slack.Block) int {
	data, err := json.Marshal(blocks)
	if err != nil {
		return 0
	}
	return len(data)
}

// TooLarge reports whether blocks exceed the payload or block count limit
func TooLarge(blocks []slack.Block) bool {
	return len(blocks) > MaxBlocksPerMessage || PayloadSize(blocks) > MaxPayloadBytes
}

func (b *BlockBuilder) reportTitle(r *core.Report) string {
	return fmt.Sprintf("📰 Daily Topic - %s", r.Date.In(b.loc).Format("2006年01月02日"))
}

func sourceLinks(urls []string, offset int) string {
	links := make([]string, len(urls))
	for i, u := range urls {
		links[i] = fmt.Sprintf("<%s|記事%d>", u, offset+i+1)
	}
	return "📎 参考記事: " + strings.Join(links, " | ")
}

// categoryBlocks renders one summary: heading, summary text, up to five source links and a divider
func (b *BlockBuilder) categoryBlocks(s core.SummaryRecord) []slack.Block {
	label := b.taxonomy.Label(s.Category)
	heading := fmt.Sprintf("*%s: %s*", s.Category, label)
	if cat, ok := b.taxonomy.Get(s.Category); ok && cat.Icon != "" {
		heading = cat.Icon + " " + heading
	}

	blocks := []slack.Block{section(heading), section(s.Summary)}
	if len(s.ArticleURLs) > 0 {
		urls := s.ArticleURLs
		if len(urls) > maxSourceLinks {
			urls = urls[:maxSourceLinks]
		}
		blocks = append(blocks, contextLine(sourceLinks(urls, 0)))
	}
	return append(blocks, divider())
}

// otherBlocks lists catch-all articles as links in chunks of five
func (b *BlockBuilder) otherBlocks(articles []core.ClassifiedArticle) []slack.Block {
	if len(articles) == 0 {
		return nil
	}

	blocks := []slack.Block{
		section(fmt.Sprintf("*%s: %s (%d記事)*", core.CategoryOther, b.taxonomy.Label(core.CategoryOther), len(articles))),
	}
	for i := 0; i < len(articles); i += otherChunkSize {
		end := min(i+otherChunkSize, len(articles))
		urls := make([]string, 0, end-i)
		for _, a := range articles[i:end] {
			urls = append(urls, a.URL)
		}
		blocks = append(blocks, contextLine(sourceLinks(urls, i)))
	}
	return append(blocks, divider())
}

func footerText(r *core.Report) string {
	return fmt.Sprintf("📊 処理統計: %d記事 | %dトークン | $%.4f | %.1f秒",
		r.TotalArticles, r.TotalTokens, r.TotalCostUSD, r.ProcessingTime.Seconds())
}

// ReportBlocks renders the whole report as a single block list
func (b *BlockBuilder) ReportBlocks(r *core.Report) []slack.Block {
	blocks := []slack.Block{header(b.reportTitle(r))}
	for _, s := range r.Summaries {
		if s.Category == core.CategoryOther {
			continue
		}
		blocks = append(blocks, b.categoryBlocks(s)...)
	}
	blocks = append(blocks, b.otherBlocks(r.OtherArticles)...)
	return append(blocks, contextLine(footerText(r)))
}

// ReportMessages returns the report as one message, or split into a header
// message, one message per category, the catch-all list and a footer when the
// single message would exceed the Block Kit limits.
func (b *BlockBuilder) ReportMessages(r *core.Report) []Message {
	title := b.reportTitle(r)
	full := b.ReportBlocks(r)
	if !TooLarge(full) {
		return []Message{{Text: title, Blocks: full}}
	}

	categories := 0
	for _, s := range r.Summaries {
		if s.Category != core.CategoryOther {
			categories++
		}
	}

	messages := []Message{{
		Text: "Daily Topic Report",
		Blocks: []slack.Block{
			header(title),
			section(fmt.Sprintf("今日は%dカテゴリの要約をお届けします。", categories)),
			divider(),
		},
	}}
	for _, s := range r.Summaries {
		if s.Category == core.CategoryOther {
			continue
		}
		messages = append(messages, Message{
			Text:   fmt.Sprintf("Category %s", s.Category),
			Blocks: b.categoryBlocks(s),
		})
	}
	for _, chunk := range chunkBlocks(b.otherBlocks(r.OtherArticles), MaxBlocksPerMessage) {
		messages = append(messages, Message{Text: fmt.Sprintf("Category %s", core.CategoryOther), Blocks: chunk})
	}
	messages = append(messages, Message{
		Text:   "Daily Topic Statistics",
		Blocks: []slack.Block{contextLine(footerText(r))},
	})
	return messages
}

func chunkBlocks(blocks []slack.Block, size int) [][]slack.Block {
	var chunks [][]slack.Block
	for i := 0; i < len(blocks); i += size {
		chunks = append(chunks, blocks[i:min(i+size, len(blocks))])
	}
	return chunks
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// ErrorBlocks renders a fatal run failure
func (b *BlockBuilder) ErrorBlocks(rep apperr.Report) []slack.Block {
	blocks := []slack.Block{
		header("❌ Daily Topic Error"),
		section("*Error Message:*\n" + rep.Message),
	}

	var details []string
	if rep.JobID != "" {
		details = append(details, "*Job ID:* "+rep.JobID)
	}
	if rep.Step != "" {
		details = append(details, "*Failed Step:* "+rep.Step)
	}
	if len(details) > 0 {
		blocks = append(blocks, section(strings.Join(details, "\n")))
	}

	if rep.Trace != "" {
		blocks = append(blocks, section(fmt.Sprintf("*Stack Trace:*\n```\n%s\n```", truncateRunes(rep.Trace, maxTraceLength))))
	}

	return append(blocks, contextLine("🕐 "+timeutil.FormatJST(b.now(), b.loc)))
}

func listTitle(a core.ClassifiedArticle) string {
	title := a.Title
	if title == "" {
		title = a.URL
	}
	return truncateRunes(title, maxListTitleLength)
}

func urlListLines(articles []core.ClassifiedArticle, code core.CategoryCode) []slack.Block {
	shown := articles
	if len(shown) > maxURLsPerCategory {
		shown = shown[:maxURLsPerCategory]
	}
	lines := make([]string, len(shown))
	for i, a := range shown {
		lines[i] = fmt.Sprintf("• <%s|%s> (%s)", a.URL, listTitle(a), code)
	}
	blocks := []slack.Block{section(strings.Join(lines, "\n"))}
	if len(articles) > maxURLsPerCategory {
		blocks = append(blocks, contextLine(fmt.Sprintf("...他 %d 件", len(articles)-maxURLsPerCategory)))
	}
	return blocks
}

// URLListText is the notification text of the URL list message
const URLListText = "📋 RSS-feedから取得したURL一覧"

// URLListBlocks lists the classified URLs per category, at most ten per
// category, followed by the catch-all URLs and a total. An oversized list keeps
// only the header and the total.
func (b *BlockBuilder) URLListBlocks(batch core.CategorizedBatch) []slack.Block {
	blocks := []slack.Block{
		header(URLListText),
		section("本日RSS-feedから取得したURL一覧です。各URLには対応するカテゴリIDが付与されています。"),
		divider(),
	}

	for _, code := range batch.Codes() {
		if code == core.CategoryOther || len(batch[code]) == 0 {
			continue
		}
		blocks = append(blocks, section(fmt.Sprintf("*%s: %s*", code, b.taxonomy.Label(code))))
		blocks = append(blocks, urlListLines(batch[code], code)...)
	}

	if others := batch[core.CategoryOther]; len(others) > 0 {
		blocks = append(blocks, divider())
		blocks = append(blocks, section(fmt.Sprintf("*%s: %s*", core.CategoryOther, b.taxonomy.Label(core.CategoryOther))))
		blocks = append(blocks, urlListLines(others, core.CategoryOther)...)
	}

	footer := []slack.Block{divider(), contextLine(fmt.Sprintf("📊 総URL数: %d件", batch.Count()))}
	blocks = append(blocks, footer...)

	if TooLarge(blocks) {
		truncated := append([]slack.Block{}, blocks[:3]...)
		truncated = append(truncated, section("⚠️ URL一覧が長すぎるため、詳細は省略されています。"))
		return append(truncated, footer...)
	}
	return blocks
}
