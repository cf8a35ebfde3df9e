package extract

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Tedsan/daily-topic/internal/apperr"
	"github.com/Tedsan/daily-topic/internal/core"
)

func longArticleHTML(title string) string {
	paragraph := "Industrial edge platforms collect telemetry from machines on the shop floor and forward it to analytics services. " +
		"Engineers describe how they connected controllers, gateways and historians into one data pipeline. "
	return `<html><head><title>` + title + `</title></head><body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>` + title + `</h1>
<p>` + paragraph + `</p>
<p>` + paragraph + `</p>
<p>` + paragraph + `</p>
<p>` + paragraph + `</p>
</article>
<footer>Copyright Example</footer>
</body></html>`
}

func TestParse_Success(t *testing.T) {
	page := core.Page{
		RequestURL: "https://short.example/x",
		FinalURL:   "https://news.example/articles/edge",
		HTML:       longArticleHTML("Edge Gateways In Practice"),
		StatusCode: 200,
	}

	article, err := NewParser(200).Parse(page)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if article.URL != page.FinalURL {
		t.Errorf("URL = %q, expected final URL %q", article.URL, page.FinalURL)
	}
	if article.Title != "Edge Gateways In Practice" {
		t.Errorf("Title = %q, expected Edge Gateways In Practice", article.Title)
	}
	if !strings.Contains(article.Content, "telemetry") {
		t.Errorf("Content missing article text:\n%s", article.Content)
	}
	if strings.Contains(article.Content, "Copyright Example") {
		t.Errorf("Content should not contain footer text:\n%s", article.Content)
	}
	if article.RawHTML != page.HTML {
		t.Error("RawHTML should keep the fetched page")
	}
	if article.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}
}

func TestParse_FallsBackToRequestURL(t *testing.T) {
	page := core.Page{
		RequestURL: "https://news.example/a",
		HTML:       longArticleHTML("Request URL Only"),
	}

	article, err := NewParser(200).Parse(page)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if article.URL != page.RequestURL {
		t.Errorf("URL = %q, expected %q", article.URL, page.RequestURL)
	}
}

func TestParse_ContentTooShort(t *testing.T) {
	page := core.Page{
		RequestURL: "https://news.example/short",
		FinalURL:   "https://news.example/short",
		HTML:       "<html><head><title>Short</title></head><body><p>Only a sentence.</p></body></html>",
	}

	_, err := NewParser(200).Parse(page)
	if err == nil {
		t.Fatal("Expected error for short content")
	}
	if !IsTooShort(err) {
		t.Errorf("Expected content too short error, got %v", err)
	}
	if !apperr.Is(err, apperr.KindContentParsing) {
		t.Errorf("Expected content parsing kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "Content too short") {
		t.Errorf("Error = %q, expected Content too short message", err.Error())
	}
}

func TestNewParser_DefaultMinimum(t *testing.T) {
	if p := NewParser(0); p.minBodyLength != DefaultMinBodyLength {
		t.Errorf("minBodyLength = %d, expected %d", p.minBodyLength, DefaultMinBodyLength)
	}
}

func TestCleanTitle(t *testing.T) {
	long := strings.Repeat("長", 250)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses whitespace", "  A \n\t Title  ", "A Title"},
		{"empty becomes placeholder", "   ", UnknownTitle},
		{"truncated to limit", long, strings.Repeat("長", MaxTitleLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanTitle(tt.input)
			if got != tt.expected {
				t.Errorf("cleanTitle(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
			if utf8.RuneCountInString(got) > MaxTitleLength {
				t.Errorf("cleanTitle returned %d characters", utf8.RuneCountInString(got))
			}
		})
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "head title",
			html:     `<html><head><title>Head Title</title></head><body><h1>H1</h1></body></html>`,
			expected: "Head Title",
		},
		{
			name:     "open graph title",
			html:     `<html><head><meta property="og:title" content="OG Title"></head><body><h1>H1</h1></body></html>`,
			expected: "OG Title",
		},
		{
			name:     "first h1",
			html:     `<html><body><h1>First</h1><h1>Second</h1></body></html>`,
			expected: "First",
		},
		{
			name:     "none",
			html:     `<html><body><p>text</p></body></html>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractTitle(tt.html); got != tt.expected {
				t.Errorf("extractTitle = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestIsTooShort(t *testing.T) {
	if IsTooShort(errors.New("other")) {
		t.Error("Unrelated error should not be reported as too short")
	}
	wrapped := apperr.ContentParsing("u", "Content too short: 1 characters (minimum: 200)", ErrContentTooShort)
	if !IsTooShort(wrapped) {
		t.Error("Expected wrapped sentinel to be detected")
	}
}
