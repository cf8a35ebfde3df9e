package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
	"github.com/Tedsan/daily-topic/internal/markdown"
)

const (
	// UnknownTitle is used when neither readability nor the page markup yield a title
	UnknownTitle = "タイトル不明"

	// MaxTitleLength is the title limit in characters
	MaxTitleLength = 200

	// DefaultMinBodyLength is the minimum body text length in characters
	DefaultMinBodyLength = 200
)

// ErrContentTooShort marks articles rejected by the body length check
var ErrContentTooShort = errors.New("body below minimum length")

var whitespaceRegex = regexp.MustCompile(`\s+`)

// ExtractReadable returns the cleaned title and the main-content HTML of a page.
func ExtractReadable(html, pageURL string) (string, string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		parsedURL = nil
	}

	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err != nil {
		return "", "", apperr.ContentParsing(pageURL, "failed to extract readable content", err)
	}

	title := article.Title
	if strings.TrimSpace(title) == "" {
		title = extractTitle(html)
	}

	readable := article.Content
	if strings.TrimSpace(readable) == "" {
		readable = bodyHTML(html)
	}

	return cleanTitle(title), readable, nil
}

// cleanTitle collapses whitespace, truncates and substitutes the placeholder
func cleanTitle(title string) string {
	title = strings.TrimSpace(whitespaceRegex.ReplaceAllString(title, " "))
	if title == "" {
		return UnknownTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = string([]rune(title)[:MaxTitleLength])
	}
	return title
}

// extractTitle tries the head title, the OpenGraph title and the first h1 in order.
func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}

	if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}

	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func bodyHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return html
	}
	return body
}

// Parser turns fetched pages into articles
type Parser struct {
	minBodyLength int
	now           func() time.Time
}

// NewParser creates a Parser that rejects bodies shorter than minBodyLength characters
func NewParser(minBodyLength int) *Parser {
	if minBodyLength <= 0 {
		minBodyLength = DefaultMinBodyLength
	}
	return &Parser{minBodyLength: minBodyLength, now: time.Now}
}

// Parse extracts the readable part of page, converts it to Markdown and checks its body length.
// The article URL is the final URL after redirects.
func (p *Parser) Parse(page core.Page) (core.Article, error) {
	articleURL := page.FinalURL
	if articleURL == "" {
		articleURL = page.RequestURL
	}

	title, readable, err := ExtractReadable(page.HTML, articleURL)
	if err != nil {
		return core.Article{}, err
	}

	content, err := markdown.HTMLToMarkdown(readable)
	if err != nil {
		return core.Article{}, apperr.ContentParsing(articleURL, "failed to convert html to markdown", err)
	}

	body := markdown.ExtractBodyText(content)
	bodyLength := utf8.RuneCountInString(body)
	if bodyLength < p.minBodyLength {
		return core.Article{}, apperr.ContentParsing(articleURL,
			fmt.Sprintf("Content too short: %d characters (minimum: %d)", bodyLength, p.minBodyLength), ErrContentTooShort)
	}

	logger.Debug("article parsed",
		"url", articleURL,
		"title_length", utf8.RuneCountInString(title),
		"content_length", utf8.RuneCountInString(content),
		"body_length", bodyLength)

	return core.Article{
		URL:       articleURL,
		Title:     title,
		Content:   content,
		RawHTML:   page.HTML,
		FetchedAt: p.now(),
	}, nil
}

// IsTooShort reports whether err is a body length rejection
func IsTooShort(err error) bool {
	return errors.Is(err, ErrContentTooShort)
}
