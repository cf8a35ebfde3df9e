package core

import "time"

// CategoryCode identifies one of the fixed topic buckets.
type CategoryCode string

const (
	CategorySDV        CategoryCode = "C1" // Software-Defined Vehicle
	CategoryIIoT       CategoryCode = "C2" // Industrial IoT & Edge
	CategoryProtocols  CategoryCode = "C3" // Industrial protocols
	CategoryGenAITech  CategoryCode = "C4" // Generative AI technology
	CategoryGenAICases CategoryCode = "C5" // Generative AI use cases
	CategoryOther      CategoryCode = "C6" // Catch-all, never scored
)

// PriorityOrder is the fixed scan order used for scoring ties and for display.
var PriorityOrder = []CategoryCode{
	CategorySDV,
	CategoryIIoT,
	CategoryProtocols,
	CategoryGenAITech,
	CategoryGenAICases,
	CategoryOther,
}

// Message is a single chat message (or feed item) considered for URL extraction.
type Message struct {
	Timestamp time.Time `json:"timestamp"` // When the message was posted
	TS        string    `json:"ts"`        // Platform timestamp id, empty for feed items
	Text      string    `json:"text"`      // Raw message text including attachment text
	User      string    `json:"user"`      // Author id or feed title
	Source    string    `json:"source"`    // "slack:<channel>" or "feed:<url>"
}

// Page is the raw result of fetching a URL.
type Page struct {
	RequestURL string `json:"request_url"` // URL as it was requested
	FinalURL   string `json:"final_url"`   // URL after redirects
	HTML       string `json:"html"`        // Raw response body
	StatusCode int    `json:"status_code"`
}

// Article is the unclassified record produced by parsing a fetched page.
// It is treated as immutable once created.
type Article struct {
	URL       string    `json:"url"`        // Final resolved URL
	Title     string    `json:"title"`      // Whitespace collapsed, at most 200 characters
	Content   string    `json:"content"`    // Cleaned Markdown body
	RawHTML   string    `json:"raw_html"`   // Original HTML, kept for debugging
	FetchedAt time.Time `json:"fetched_at"` // When the page was fetched
}

// ClassifiedArticle is an Article together with its category assignment.
type ClassifiedArticle struct {
	Article
	Category   CategoryCode `json:"category"`
	Confidence float64      `json:"category_confidence"` // In [0,1]
}

// CategorizedBatch groups classified articles by category.
// Every article in a list carries the category of its key.
type CategorizedBatch map[CategoryCode][]ClassifiedArticle

// Codes returns the keys present in the batch in priority order.
func (b CategorizedBatch) Codes() []CategoryCode {
	codes := make([]CategoryCode, 0, len(b))
	for _, code := range PriorityOrder {
		if _, ok := b[code]; ok {
			codes = append(codes, code)
		}
	}
	return codes
}

// Count returns the total number of articles across all categories.
func (b CategorizedBatch) Count() int {
	n := 0
	for _, articles := range b {
		n += len(articles)
	}
	return n
}

// SummaryRecord is the result of summarizing one category batch.
type SummaryRecord struct {
	ID           string       `json:"id"`
	GeneratedAt  time.Time    `json:"generated_at"`
	Category     CategoryCode `json:"category"`
	Summary      string       `json:"summary"` // At most 500 characters
	KeyPoints    []string     `json:"key_points"`
	Confidence   float64      `json:"confidence"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	TokensUsed   int          `json:"tokens_used"` // InputTokens + OutputTokens
	CostUSD      float64      `json:"cost_usd"`
	Model        string       `json:"model"`
	ArticleCount int          `json:"article_count"`
	ArticleURLs  []string     `json:"article_urls"`
}

// Report is the daily digest handed to the report sink.
// Totals are only changed through AddSummary so they always match Summaries.
type Report struct {
	Date           time.Time           `json:"date"`
	Summaries      []SummaryRecord     `json:"summaries"`
	OtherArticles  []ClassifiedArticle `json:"other_articles"`
	TotalArticles  int                 `json:"total_articles"`
	TotalTokens    int                 `json:"total_tokens"`
	TotalCostUSD   float64             `json:"total_cost_usd"`
	ProcessingTime time.Duration       `json:"processing_time"`
}

// NewReport creates an empty report for the given date.
func NewReport(date time.Time) *Report {
	return &Report{Date: date}
}

// AddSummary appends a summary and updates the running totals.
func (r *Report) AddSummary(s SummaryRecord) {
	r.Summaries = append(r.Summaries, s)
	r.TotalArticles += s.ArticleCount
	r.TotalTokens += s.TokensUsed
	r.TotalCostUSD += s.CostUSD
}

// AddOtherArticles appends catch-all articles. They are listed as links only.
func (r *Report) AddOtherArticles(articles []ClassifiedArticle) {
	r.OtherArticles = append(r.OtherArticles, articles...)
}

// GenerationStat is one statistics row written per summary.
type GenerationStat struct {
	Timestamp    time.Time    `json:"timestamp"`
	Category     CategoryCode `json:"category"`
	TokensUsed   int          `json:"tokens_used"`
	CostUSD      float64      `json:"cost_usd"`
	ArticleCount int          `json:"article_count"`
}

// StatFromSummary derives the statistics row for a summary record.
func StatFromSummary(s SummaryRecord) GenerationStat {
	return GenerationStat{
		Timestamp:    s.GeneratedAt,
		Category:     s.Category,
		TokensUsed:   s.TokensUsed,
		CostUSD:      s.CostUSD,
		ArticleCount: s.ArticleCount,
	}
}

// RunRecord summarizes one pipeline execution for the audit store.
type RunRecord struct {
	JobID        string         `json:"job_id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Status       string         `json:"status"` // "success" or "failed"
	FailedStep   string         `json:"failed_step,omitempty"`
	Error        string         `json:"error,omitempty"`
	URLCount     int            `json:"url_count"`
	ArticleCount int            `json:"article_count"`
	SkipCounts   map[string]int `json:"skip_counts"`
	TotalTokens  int            `json:"total_tokens"`
	TotalCostUSD float64        `json:"total_cost_usd"`
}
