package categorization

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/markdown"
)

const (
	// ScoreThreshold is the minimum score for a specific category
	ScoreThreshold = 0.1

	// TitleWeight is how many times the title is repeated in the classification text
	TitleWeight = 3

	// ContentPrefixLength is the number of body characters considered
	ContentPrefixLength = 500
)

// CategoryScore is the score of one category for one article
type CategoryScore struct {
	Code  core.CategoryCode
	Score float64
}

// Classifier assigns articles to categories by weighted keyword matching.
// It holds no state besides the taxonomy and is safe for concurrent use.
type Classifier struct {
	taxonomy *Taxonomy
}

// NewClassifier creates a classifier over taxonomy. A nil taxonomy uses the defaults.
func NewClassifier(taxonomy *Taxonomy) *Classifier {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Classifier{taxonomy: taxonomy}
}

// Taxonomy returns the taxonomy used for scoring
func (c *Classifier) Taxonomy() *Taxonomy {
	return c.taxonomy
}

// ClassificationText builds the text that is scored: the title repeated
// TitleWeight times followed by the first ContentPrefixLength characters of the
// body with link targets, heading markers and emphasis removed.
func ClassificationText(article core.Article) string {
	content := markdown.StripForClassification(article.Content)
	if utf8.RuneCountInString(content) > ContentPrefixLength {
		content = string([]rune(content)[:ContentPrefixLength])
	}

	parts := make([]string, 0, TitleWeight+1)
	for i := 0; i < TitleWeight; i++ {
		parts = append(parts, article.Title)
	}
	parts = append(parts, content)
	return strings.Join(parts, " ")
}

// Score computes the normalized keyword score of text. Each keyword found
// contributes len(keyword)/10 per non-overlapping occurrence, matched
// case-insensitively as a plain substring. The sum is divided by the number of
// keywords and capped at 1.
func Score(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	lower := strings.ToLower(text)
	sum := 0.0
	for _, keyword := range keywords {
		kw := strings.ToLower(keyword)
		if kw == "" {
			continue
		}
		count := strings.Count(lower, kw)
		if count == 0 {
			continue
		}
		sum += float64(utf8.RuneCountInString(keyword)) / 10.0 * float64(count)
	}

	score := sum / float64(len(keywords))
	if score > 1.0 {
		return 1.0
	}
	return score
}

// Scores returns the score of every non catch-all category in priority order
func (c *Classifier) Scores(article core.Article) []CategoryScore {
	text := ClassificationText(article)
	scored := c.taxonomy.Scored()
	scores := make([]CategoryScore, 0, len(scored))
	for _, cat := range scored {
		scores = append(scores, CategoryScore{Code: cat.Code, Score: Score(text, cat.Keywords)})
	}
	return scores
}

// Classify returns the best category for article and its score. The first
// category in priority order wins ties. Scores below ScoreThreshold yield the
// catch-all category with confidence 0.
func (c *Classifier) Classify(article core.Article) (code core.CategoryCode, confidence float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, confidence = "", 0
			err = apperr.Classification(fmt.Sprintf("failed to classify article %s", article.URL), fmt.Errorf("%v", r))
		}
	}()

	best := CategoryScore{Code: core.CategoryOther}
	for i, s := range c.Scores(article) {
		logger.Debug("category score", "url", article.URL, "category", string(s.Code), "score", fmt.Sprintf("%.3f", s.Score))
		if i == 0 || s.Score > best.Score {
			best = s
		}
	}

	if best.Code != core.CategoryOther && best.Score >= ScoreThreshold {
		return best.Code, best.Score, nil
	}
	return core.CategoryOther, 0.0, nil
}

// ClassifyArticle returns article with its category assignment. Classification
// failures fall back to the catch-all category.
func (c *Classifier) ClassifyArticle(article core.Article) core.ClassifiedArticle {
	code, confidence, err := c.Classify(article)
	if err != nil {
		logger.Warn("classification failed, using catch-all category", "url", article.URL, "error", err.Error())
		code, confidence = core.CategoryOther, 0.0
	}
	return core.ClassifiedArticle{Article: article, Category: code, Confidence: confidence}
}

// ClassifyBatch classifies every article and groups them by category. Articles
// keep their input order inside each category.
func (c *Classifier) ClassifyBatch(articles []core.Article) core.CategorizedBatch {
	batch := make(core.CategorizedBatch)
	for _, article := range articles {
		classified := c.ClassifyArticle(article)
		batch[classified.Category] = append(batch[classified.Category], classified)
	}

	for _, code := range batch.Codes() {
		logger.Info("category classified",
			"category", string(code),
			"label", c.taxonomy.Label(code),
			"articles", len(batch[code]))
	}
	return batch
}

// FilterCatchAll returns a copy of batch without the catch-all category
func FilterCatchAll(batch core.CategorizedBatch) core.CategorizedBatch {
	filtered := make(core.CategorizedBatch, len(batch))
	for code, articles := range batch {
		if code == core.CategoryOther {
			continue
		}
		filtered[code] = articles
	}
	return filtered
}

// LimitPerCategory keeps at most maxPerCategory articles per category, preferring
// higher confidence. Equal confidences keep their input order. Categories within
// the limit are returned unchanged. A non-positive limit disables limiting.
func LimitPerCategory(batch core.CategorizedBatch, maxPerCategory int) core.CategorizedBatch {
	limited := make(core.CategorizedBatch, len(batch))
	for code, articles := range batch {
		if maxPerCategory <= 0 || len(articles) <= maxPerCategory {
			limited[code] = articles
			continue
		}

		sorted := make([]core.ClassifiedArticle, len(articles))
		copy(sorted, articles)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Confidence > sorted[j].Confidence
		})
		limited[code] = sorted[:maxPerCategory]

		logger.Info("category limited", "category", string(code), "from", len(articles), "to", maxPerCategory)
	}
	return limited
}
