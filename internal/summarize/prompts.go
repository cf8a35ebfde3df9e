package summarize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Tedsan/daily-topic/internal/categorization"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
)

const (
	// MaxPromptContentLength is the content limit of the user prompt in characters
	MaxPromptContentLength = 3000
	// MaxSummaryLength is the summary limit in characters
	MaxSummaryLength = 500
	// DefaultConfidence is used when the model omits a confidence value
	DefaultConfidence = 0.7
	// FallbackSummary replaces a response that could not be parsed
	FallbackSummary = "要約の生成に失敗しました。"
)

var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// CombineArticles joins the articles of one category into a single prompt body
func CombineArticles(articles []core.ClassifiedArticle) string {
	parts := make([]string, 0, len(articles)*4)
	for i, a := range articles {
		parts = append(parts,
			fmt.Sprintf("## 記事 %d: %s", i+1, a.Title),
			fmt.Sprintf("URL: %s", a.URL),
			fmt.Sprintf("内容: %s", a.Content),
			"---",
		)
	}
	return strings.Join(parts, "\n\n")
}

// BuildSystemPrompt returns the default system prompt for a category
func BuildSystemPrompt(cat categorization.Category) string {
	return fmt.Sprintf(`あなたは技術記事の要約を専門とするAIアシスタントです。

カテゴリ: %[1]s (%[2]s)
関連キーワード: %[3]s

以下の要件に従って要約を生成してください：
1. %[4]d文字以内で要約を作成
2. 技術的な内容を正確に伝える
3. 重要なポイントを3-5個抽出
4. 信頼度（0.0-1.0）を評価
5. 必ず以下のJSON形式で出力：

{
    "category": "%[1]s",
    "summary": "要約内容（%[4]d文字以内）",
    "confidence": 0.8,
    "key_points": ["ポイント1", "ポイント2", "ポイント3"]
}

JSON以外の文字は出力しないでください。`, cat.Code, cat.Label, strings.Join(cat.Keywords, ", "), MaxSummaryLength)
}

// BuildUserPrompt wraps the combined article text, truncated to MaxPromptContentLength characters
func BuildUserPrompt(content string, code core.CategoryCode) string {
	return fmt.Sprintf(`以下の記事を%sカテゴリの観点から要約してください：

%s

上記の記事を%d文字以内で要約し、指定されたJSON形式で出力してください。`,
		code, truncateContent(content, MaxPromptContentLength), MaxSummaryLength)
}

// LoadPromptTemplate reads summarization_<code>.txt from dir, falling back to
// summarization.txt. It returns "" when dir is empty or no file exists.
func LoadPromptTemplate(dir string, code core.CategoryCode) string {
	if dir == "" {
		return ""
	}

	candidates := []string{
		filepath.Join(dir, fmt.Sprintf("summarization_%s.txt", strings.ToLower(string(code)))),
		filepath.Join(dir, "summarization.txt"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("failed to load prompt template", "path", path, "error", err.Error())
			}
			continue
		}
		logger.Debug("loaded prompt template", "path", path)
		return strings.TrimSpace(string(data))
	}
	return ""
}

// truncateContent cuts content to maxChars characters and marks the cut with "..."
func truncateContent(content string, maxChars int) string {
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	return string([]rune(content)[:maxChars]) + "..."
}

// ParsedSummary is the structured answer of the model
type ParsedSummary struct {
	Category   core.CategoryCode
	Summary    string
	Confidence float64
	KeyPoints  []string
}

type rawSummary struct {
	Category   *string   `json:"category"`
	Summary    *string   `json:"summary"`
	Confidence *float64  `json:"confidence"`
	KeyPoints  []string `json:"key_points"`
}

// ParseSummaryResponse decodes the model answer. It accepts bare JSON, JSON
// embedded in other text and, as a last resort, substitutes FallbackSummary.
// The category is always forced to expected.
func ParseSummaryResponse(response string, expected core.CategoryCode) (ParsedSummary, error) {
	if strings.TrimSpace(response) == "" {
		return ParsedSummary{}, fmt.Errorf("empty response from model")
	}

	raw, ok := decodeSummary(response)
	if !ok {
		logger.Warn("failed to parse JSON response, using fallback summary", "category", string(expected))
		fallbackCategory := string(core.CategoryOther)
		fallbackSummary := FallbackSummary
		zero := 0.0
		raw = rawSummary{Category: &fallbackCategory, Summary: &fallbackSummary, Confidence: &zero}
	}

	if raw.Category == nil {
		return ParsedSummary{}, fmt.Errorf("missing required field: category")
	}
	if raw.Summary == nil {
		return ParsedSummary{}, fmt.Errorf("missing required field: summary")
	}

	if core.CategoryCode(*raw.Category) != expected {
		logger.Warn("category mismatch", "expected", string(expected), "got", *raw.Category)
	}

	summary := *raw.Summary
	if utf8.RuneCountInString(summary) > MaxSummaryLength {
		logger.Warn("summary exceeds limit, truncating", "category", string(expected))
		summary = string([]rune(summary)[:MaxSummaryLength-3]) + "..."
	}

	parsed := ParsedSummary{
		Category:   expected,
		Summary:    summary,
		Confidence: DefaultConfidence,
		KeyPoints:  raw.KeyPoints,
	}
	if raw.Confidence != nil {
		parsed.Confidence = *raw.Confidence
	}
	if parsed.KeyPoints == nil {
		parsed.KeyPoints = []string{}
	}
	return parsed, nil
}

func decodeSummary(response string) (rawSummary, bool) {
	var raw rawSummary
	if err := json.Unmarshal([]byte(response), &raw); err == nil {
		return raw, true
	}

	match := jsonObjectRegex.FindString(response)
	if match == "" {
		return rawSummary{}, false
	}
	raw = rawSummary{}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return rawSummary{}, false
	}
	return raw, true
}
