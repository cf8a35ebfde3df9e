package parser

import (
	"bufio"
	"fmt"
	"html"
	"math"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/Tedsan/daily-topic/internal/core"
	"github.com/Tedsan/daily-topic/internal/logger"
)

// URL regex patterns
var (
	// Matches chat markup links: <url|label> or <url>
	chatLinkRegex = regexp.MustCompile(`(?i)<(https?://[^>|]+)(?:\|[^>]*)?>`)

	// Matches bare URLs delimited by whitespace, quotes or closing brackets
	rawURLRegex = regexp.MustCompile(`(?i)https?://[^\s<>"'\]\)\}]+`)

	// Matches markdown links: [text](url)
	markdownLinkRegex = regexp.MustCompile(`(?i)\[([^\]]*)\]\((https?://[^\)]+)\)`)
)

// urlPattern pairs a pattern with the capture group holding the URL.
type urlPattern struct {
	re    *regexp.Regexp
	group int
}

var urlPatterns = []urlPattern{
	{re: chatLinkRegex, group: 1},
	{re: rawURLRegex, group: 0},
	{re: markdownLinkRegex, group: 2},
}

// DefaultExcludedHosts lists hosts that never yield articles.
// Entries ending in "." are IP prefixes, the rest are domains (subdomains included).
var DefaultExcludedHosts = []string{
	"slack.com",
	"localhost",
	"127.0.0.1",
	"192.168.",
	"10.",
	"172.",
}

// redirectWrapper describes a service that wraps the real target in a query parameter.
type redirectWrapper struct {
	host  string
	path  string
	param string
}

var redirectWrappers = []redirectWrapper{
	{host: "google.com", path: "/url", param: "url"},
	{host: "google.co.jp", path: "/url", param: "url"},
}

// Parser extracts and validates article URLs from chat text
type Parser struct {
	excludedHosts []string
}

// NewParser creates a Parser with the default excluded host list
func NewParser() *Parser {
	return &Parser{excludedHosts: DefaultExcludedHosts}
}

// NewParserWithExclusions creates a Parser with a custom excluded host list
func NewParserWithExclusions(hosts []string) *Parser {
	return &Parser{excludedHosts: hosts}
}

// ExtractURLs returns the deduplicated set of valid URLs found in text, sorted.
// A match that does not validate is skipped; it never aborts extraction.
func (p *Parser) ExtractURLs(text string) []string {
	set := make(map[string]struct{})
	for _, pattern := range urlPatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			if len(match) <= pattern.group {
				continue
			}
			candidate := cleanCandidate(match[pattern.group])
			if p.ValidateURL(candidate) != nil {
				continue
			}
			set[candidate] = struct{}{}
		}
	}

	urls := make([]string, 0, len(set))
	for u := range set {
		urls = append(urls, u)
	}
	slices.Sort(urls)
	return urls
}

// ExtractFromMessages returns the sorted union of URLs found in all message texts.
func (p *Parser) ExtractFromMessages(messages []core.Message) []string {
	set := make(map[string]struct{})
	for _, msg := range messages {
		found := p.ExtractURLs(msg.Text)
		if len(found) > 0 {
			logger.Debug("extracted urls from message", "ts", msg.TS, "source", msg.Source, "count", len(found))
		}
		for _, u := range found {
			set[u] = struct{}{}
		}
	}

	urls := make([]string, 0, len(set))
	for u := range set {
		urls = append(urls, u)
	}
	slices.Sort(urls)
	return urls
}

// cleanCandidate drops chat label leftovers and surrounding whitespace.
func cleanCandidate(raw string) string {
	candidate := raw
	if i := strings.Index(candidate, "|"); i >= 0 {
		candidate = candidate[:i]
	}
	return strings.TrimSpace(candidate)
}

// ValidateURL checks the scheme and host and rejects excluded hosts
func (p *Parser) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("URL missing host")
	}

	if p.isExcluded(host) {
		return fmt.Errorf("excluded host: %s", host)
	}

	return nil
}

func (p *Parser) isExcluded(host string) bool {
	for _, excluded := range p.excludedHosts {
		if strings.HasSuffix(excluded, ".") {
			if strings.HasPrefix(host, excluded) {
				return true
			}
			continue
		}
		if host == excluded || strings.HasSuffix(host, "."+excluded) {
			return true
		}
	}
	return false
}

// NormalizeURL resolves redirect wrappers and decodes entity or percent encoded URLs.
// It never fails: on any problem the input is returned unchanged.
func NormalizeURL(rawURL string) string {
	candidate := rawURL
	if i := strings.Index(candidate, "|"); i >= 0 {
		candidate = candidate[:i]
	}

	decoded := unquote(html.UnescapeString(candidate))

	if target := unwrapRedirect(decoded); target != "" {
		return target
	}

	if decoded != "" && decoded != rawURL {
		return decoded
	}
	return rawURL
}

// unquote decodes valid %XX escapes and keeps malformed ones as they are.
func unquote(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func unwrapRedirect(decoded string) string {
	parsed, err := url.Parse(decoded)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	for _, w := range redirectWrappers {
		if host != w.host && !strings.HasSuffix(host, "."+w.host) {
			continue
		}
		if parsed.Path != w.path {
			continue
		}
		if target := parsed.Query().Get(w.param); target != "" {
			return target
		}
	}
	return ""
}

// NormalizeAll normalizes every URL and removes duplicates created by normalization.
// Input order is preserved.
func NormalizeAll(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	result := make([]string, 0, len(urls))
	for _, u := range urls {
		normalized := NormalizeURL(u)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		result = append(result, normalized)
	}
	return result
}

// ParseFile reads a text or markdown file and extracts URLs from it line by line
func (p *Parser) ParseFile(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	defer f.Close()

	var messages []core.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		messages = append(messages, core.Message{Text: scanner.Text(), Source: "file:" + filePath})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan file %s: %w", filePath, err)
	}

	return p.ExtractFromMessages(messages), nil
}

// ExpectedCountDeviation compares n against maxPerCategory for each of the six categories.
func ExpectedCountDeviation(n, maxPerCategory int) (expected int, deviation float64) {
	expected = maxPerCategory * len(core.PriorityOrder)
	if expected <= 0 {
		return expected, 0
	}
	return expected, math.Abs(float64(n-expected)) / float64(expected)
}

// CheckExpectedCount logs a warning when n deviates more than 10% from the expected count.
// It is a diagnostic only and reports whether n was within range.
func CheckExpectedCount(n, maxPerCategory int) bool {
	if n == 0 {
		return true
	}
	expected, deviation := ExpectedCountDeviation(n, maxPerCategory)
	if deviation > 0.1 {
		logger.Warn("url count deviation",
			"deviation", fmt.Sprintf("%.1f%%", deviation*100),
			"expected", expected,
			"actual", n)
		return false
	}
	return true
}
