package cost

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Tedsan/daily-topic/internal/core"
)

// promptOverheadTokens covers the system prompt and per-article headers
const promptOverheadTokens = 350

// maxPromptContentRunes mirrors the user prompt truncation of the summarizer
const maxPromptContentRunes = 3000

// EstimateTokenCount provides a rough estimation of token count for text
// This is a simplified approximation: typically 1 token ≈ 0.75 words ≈ 4 characters
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")

	charCount := utf8.RuneCountInString(text)

	// 1 token ≈ 4 characters for English, less for Japanese; 3.5 leaves a buffer
	return int(math.Ceil(float64(charCount) / 3.5))
}

// CategoryEstimate is the expected cost of summarizing one category
type CategoryEstimate struct {
	Category              core.CategoryCode
	ArticleCount          int
	EstimatedInputTokens  int
	EstimatedOutputTokens int
	TotalCost             float64
}

// BatchEstimate is the expected cost of summarizing a categorized batch
type BatchEstimate struct {
	Model             string
	Categories        []CategoryEstimate
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         float64
}

// EstimateBatchCost estimates the summarization cost of batch without calling the model.
// The catch-all category is never summarized and is skipped.
func EstimateBatchCost(batch core.CategorizedBatch, model string, rates Rates) *BatchEstimate {
	pricing, _ := LookupPricing(model)
	estimate := &BatchEstimate{Model: model}

	for _, code := range batch.Codes() {
		if code == core.CategoryOther {
			continue
		}
		articles := batch[code]

		var combined strings.Builder
		for _, a := range articles {
			combined.WriteString(a.Title)
			combined.WriteString(" ")
			combined.WriteString(a.URL)
			combined.WriteString(" ")
			combined.WriteString(a.Content)
		}
		content := combined.String()
		if utf8.RuneCountInString(content) > maxPromptContentRunes {
			content = string([]rune(content)[:maxPromptContentRunes])
		}

		input := EstimateTokenCount(content) + promptOverheadTokens
		output := pricing.EstimatedOutputTokens
		cat := CategoryEstimate{
			Category:              code,
			ArticleCount:          len(articles),
			EstimatedInputTokens:  input,
			EstimatedOutputTokens: output,
			TotalCost:             rates.Calculate(input, output),
		}

		estimate.Categories = append(estimate.Categories, cat)
		estimate.TotalInputTokens += input
		estimate.TotalOutputTokens += output
		estimate.TotalCost += cat.TotalCost
	}

	return estimate
}

// FormatEstimate formats the cost estimate for display
func (e *BatchEstimate) FormatEstimate() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Cost Estimation for %s\n", e.Model))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("📊 Summary:\n")
	sb.WriteString(fmt.Sprintf("   Categories to summarize: %d\n", len(e.Categories)))
	sb.WriteString(fmt.Sprintf("   Total estimated cost: $%.6f\n", e.TotalCost))
	sb.WriteString(fmt.Sprintf("   Input tokens: %d\n", e.TotalInputTokens))
	sb.WriteString(fmt.Sprintf("   Output tokens: %d\n", e.TotalOutputTokens))

	if len(e.Categories) > 0 {
		sb.WriteString("\n📝 Per-Category Estimates:\n")
		for _, c := range e.Categories {
			sb.WriteString(fmt.Sprintf("   %s: $%.6f (%d articles, ~%d tokens)\n",
				c.Category, c.TotalCost, c.ArticleCount, c.EstimatedInputTokens+c.EstimatedOutputTokens))
		}
	}

	return sb.String()
}
