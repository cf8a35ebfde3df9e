package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaultsInTestMode(t *testing.T) {
	path := writeConfig(t, "app:\n  test_mode: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Slack.RSSFeedChannel != "rss-feed" {
		t.Errorf("RSSFeedChannel = %q, expected rss-feed", cfg.Slack.RSSFeedChannel)
	}
	if cfg.Slack.DailyTopicChannel != "daily-topic" {
		t.Errorf("DailyTopicChannel = %q, expected daily-topic", cfg.Slack.DailyTopicChannel)
	}
	if cfg.Pipeline.MinContentLength != 200 {
		t.Errorf("MinContentLength = %d, expected 200", cfg.Pipeline.MinContentLength)
	}
	if cfg.Pipeline.MaxArticlesPerCategory != 10 {
		t.Errorf("MaxArticlesPerCategory = %d, expected 10", cfg.Pipeline.MaxArticlesPerCategory)
	}
	if cfg.Pipeline.LookbackHours != 24 {
		t.Errorf("LookbackHours = %d, expected 24", cfg.Pipeline.LookbackHours)
	}
	if cfg.Pipeline.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, expected 10s", cfg.Pipeline.FetchTimeout)
	}
	if cfg.Pipeline.MaxContentBytes != 10*1024*1024 {
		t.Errorf("MaxContentBytes = %d, expected 10MB", cfg.Pipeline.MaxContentBytes)
	}
	if cfg.LLM.Anthropic.Model != "claude-3-sonnet-20240229" {
		t.Errorf("Anthropic model = %q, expected claude-3-sonnet-20240229", cfg.LLM.Anthropic.Model)
	}
	if cfg.LLM.MaxTokens != 500 || cfg.LLM.Temperature != 0.3 {
		t.Errorf("LLM limits = %d/%v, expected 500/0.3", cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	}
	if cfg.App.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q, expected Asia/Tokyo", cfg.App.Timezone)
	}
	if !cfg.IsTest() {
		t.Error("Expected IsTest to be true")
	}
}

func TestLoadFileValuesAndEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
slack:
  bot_token: xoxb-file
  daily_topic_channel: "#digest"
llm:
  anthropic:
    api_key: file-key
pipeline:
  max_articles_per_category: 5
sources:
  feeds:
    - https://example.com/feed.xml
`)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("LOOKBACK_HOURS", "48")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Slack.BotToken != "xoxb-env" {
		t.Errorf("BotToken = %q, expected environment value", cfg.Slack.BotToken)
	}
	if cfg.Slack.DailyTopicChannel != "digest" {
		t.Errorf("DailyTopicChannel = %q, expected leading # stripped", cfg.Slack.DailyTopicChannel)
	}
	if cfg.Pipeline.LookbackHours != 48 {
		t.Errorf("LookbackHours = %d, expected 48", cfg.Pipeline.LookbackHours)
	}
	if cfg.Pipeline.MaxArticlesPerCategory != 5 {
		t.Errorf("MaxArticlesPerCategory = %d, expected 5", cfg.Pipeline.MaxArticlesPerCategory)
	}
	if len(cfg.Sources.Feeds) != 1 {
		t.Errorf("Expected 1 feed, got %d", len(cfg.Sources.Feeds))
	}
	if cfg.IsDevelopment() {
		t.Error("Expected production environment")
	}
}

func TestLoadCollectsValidationErrors(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
llm:
  provider: openai
pipeline:
  min_content_length: 0
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error")
	}

	msg := err.Error()
	for _, want := range []string{
		"Slack bot token is required",
		"Unknown llm provider: openai",
		"pipeline.min_content_length must be positive",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected error to contain %q, got:\n%s", want, msg)
		}
	}
}

func TestReadSkipsCredentialChecks(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
categories:
  file: categories.yaml
`)
	for _, key := range []string{"SLACK_BOT_TOKEN", "SLACK_TOKEN", "SLACK_WEBHOOK_URL", "SLACK_WEBHOOK"} {
		t.Setenv(key, "")
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Expected Load to require credentials")
	}

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if cfg.Categories.File != "categories.yaml" {
		t.Errorf("Categories.File = %q, expected categories.yaml", cfg.Categories.File)
	}
}

func TestLoadGeminiProviderRequiresGeminiKey(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
slack:
  bot_token: xoxb-1
llm:
  provider: gemini
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Gemini API key is required") {
		t.Errorf("Expected missing Gemini key error, got %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Gemini.APIKey != "g-key" {
		t.Errorf("Gemini APIKey = %q, expected g-key", cfg.LLM.Gemini.APIKey)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/stats"); got != filepath.Join(home, "stats") {
		t.Errorf("expandPath(~/stats) = %q", got)
	}
	t.Setenv("DT_TEST_DIR", "/tmp/dt")
	if got := expandPath("$DT_TEST_DIR/db"); got != "/tmp/dt/db" {
		t.Errorf("expandPath($DT_TEST_DIR/db) = %q", got)
	}
}
