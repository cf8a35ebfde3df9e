package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
// It is loaded once at process start and handed to constructors explicitly.
type Config struct {
	App        App        `mapstructure:"app"`
	Slack      Slack      `mapstructure:"slack"`
	LLM        LLM        `mapstructure:"llm"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Categories Categories `mapstructure:"categories"`
	Sources    Sources    `mapstructure:"sources"`
	Stats      Stats      `mapstructure:"stats"`
	Schedule   Schedule   `mapstructure:"schedule"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds process-wide settings
type App struct {
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
	TestMode    bool   `mapstructure:"test_mode"`
	DataDir     string `mapstructure:"data_dir"`
}

// Slack holds chat platform settings
type Slack struct {
	BotToken          string        `mapstructure:"bot_token"`
	RSSFeedChannel    string        `mapstructure:"rss_feed_channel"`
	DailyTopicChannel string        `mapstructure:"daily_topic_channel"`
	WebhookURL        string        `mapstructure:"webhook_url"`
	APIURL            string        `mapstructure:"api_url"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	RateLimitDelay    time.Duration `mapstructure:"rate_limit_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// LLM holds summarization model settings
type LLM struct {
	Provider           string    `mapstructure:"provider"`
	Anthropic          Anthropic `mapstructure:"anthropic"`
	Gemini             Gemini    `mapstructure:"gemini"`
	MaxTokens          int       `mapstructure:"max_tokens"`
	Temperature        float64   `mapstructure:"temperature"`
	InputCostPerToken  float64   `mapstructure:"input_cost_per_token"`
	OutputCostPerToken float64   `mapstructure:"output_cost_per_token"`
	PromptDir          string    `mapstructure:"prompt_dir"`
}

// Anthropic holds Claude API settings
type Anthropic struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Gemini holds Gemini API settings
type Gemini struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Pipeline holds the batch processing limits
type Pipeline struct {
	LookbackHours          int           `mapstructure:"lookback_hours"`
	MinContentLength       int           `mapstructure:"min_content_length"`
	MaxArticlesPerCategory int           `mapstructure:"max_articles_per_category"`
	FetchTimeout           time.Duration `mapstructure:"fetch_timeout"`
	FetchDelay             time.Duration `mapstructure:"fetch_delay"`
	FetchRetries           int           `mapstructure:"fetch_retries"`
	FetchBackoff           time.Duration `mapstructure:"fetch_backoff"`
	FetchConcurrency       int           `mapstructure:"fetch_concurrency"`
	MaxContentBytes        int64         `mapstructure:"max_content_bytes"`
	CheckFetchable         bool          `mapstructure:"check_fetchable"`
}

// Categories points at an optional taxonomy override
type Categories struct {
	File string `mapstructure:"file"`
}

// Sources lists extra URL sources besides the chat channel
type Sources struct {
	Feeds []string `mapstructure:"feeds"`
}

// Stats holds statistics persistence settings
type Stats struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	Database string `mapstructure:"database"`
}

// Schedule holds the serve-mode cron expression
type Schedule struct {
	Cron string `mapstructure:"cron"`
}

// Logging holds logging configuration
type Logging struct {
	Level string `mapstructure:"level"`
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.Environment, "development")
}

// IsTest reports whether posting should be suppressed.
func (c *Config) IsTest() bool {
	return c.App.TestMode || strings.EqualFold(c.App.Environment, "test")
}

// Load reads configuration from .env, the YAML config file and the environment
// and validates it. configFile may be empty, in which case .daily-topic.yaml is
// searched in . and $HOME.
func Load(configFile string) (*Config, error) {
	config, err := Read(configFile)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Read loads configuration like Load without requiring credentials.
// Offline commands use it.
func Read(configFile string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".daily-topic")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	postProcessConfig(config)
	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Asia/Tokyo")
	v.SetDefault("app.test_mode", false)
	v.SetDefault("app.data_dir", ".")

	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.rss_feed_channel", "rss-feed")
	v.SetDefault("slack.daily_topic_channel", "daily-topic")
	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("slack.api_url", "")
	v.SetDefault("slack.history_limit", 200)
	v.SetDefault("slack.rate_limit_delay", "1s")
	v.SetDefault("slack.max_retries", 3)

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", "claude-3-sonnet-20240229")
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", "gemini-flash-lite-latest")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.input_cost_per_token", 0.000003)
	v.SetDefault("llm.output_cost_per_token", 0.000015)
	v.SetDefault("llm.prompt_dir", "")

	v.SetDefault("pipeline.lookback_hours", 24)
	v.SetDefault("pipeline.min_content_length", 200)
	v.SetDefault("pipeline.max_articles_per_category", 10)
	v.SetDefault("pipeline.fetch_timeout", "10s")
	v.SetDefault("pipeline.fetch_delay", "1s")
	v.SetDefault("pipeline.fetch_retries", 3)
	v.SetDefault("pipeline.fetch_backoff", "1s")
	v.SetDefault("pipeline.fetch_concurrency", 1)
	v.SetDefault("pipeline.max_content_bytes", 10*1024*1024)
	v.SetDefault("pipeline.check_fetchable", false)

	v.SetDefault("categories.file", "")
	v.SetDefault("sources.feeds", []string{})

	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.dir", "stats")
	v.SetDefault("stats.database", "stats/daily-topic.db")

	v.SetDefault("schedule.cron", "0 8 * * *")

	v.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables maps the flat variable names used by deployments
// onto nested keys. AutomaticEnv covers the SECTION_KEY form.
func bindEnvironmentVariables(v *viper.Viper) {
	bindEnvKeys(v, "llm.anthropic.api_key", []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"})
	bindEnvKeys(v, "llm.anthropic.model", []string{"CLAUDE_MODEL", "ANTHROPIC_MODEL"})
	bindEnvKeys(v, "llm.gemini.api_key", []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY"})
	bindEnvKeys(v, "llm.gemini.model", []string{"GEMINI_MODEL"})
	bindEnvKeys(v, "llm.provider", []string{"LLM_PROVIDER"})
	bindEnvKeys(v, "llm.max_tokens", []string{"MAX_TOKENS"})
	bindEnvKeys(v, "llm.temperature", []string{"TEMPERATURE"})

	bindEnvKeys(v, "slack.bot_token", []string{"SLACK_BOT_TOKEN", "SLACK_TOKEN"})
	bindEnvKeys(v, "slack.rss_feed_channel", []string{"RSS_FEED_CHANNEL"})
	bindEnvKeys(v, "slack.daily_topic_channel", []string{"DAILY_TOPIC_CHANNEL"})
	bindEnvKeys(v, "slack.webhook_url", []string{"SLACK_WEBHOOK_URL", "SLACK_WEBHOOK"})

	bindEnvKeys(v, "app.environment", []string{"ENVIRONMENT"})
	bindEnvKeys(v, "app.timezone", []string{"TIMEZONE"})
	bindEnvKeys(v, "app.test_mode", []string{"TEST_MODE"})
	bindEnvKeys(v, "logging.level", []string{"LOG_LEVEL"})

	bindEnvKeys(v, "pipeline.lookback_hours", []string{"LOOKBACK_HOURS"})
	bindEnvKeys(v, "pipeline.min_content_length", []string{"MIN_CONTENT_LENGTH"})
	bindEnvKeys(v, "pipeline.max_articles_per_category", []string{"MAX_ARTICLES_PER_CATEGORY"})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) {
	config.App.DataDir = expandPath(config.App.DataDir)
	config.Stats.Dir = expandPath(config.Stats.Dir)
	config.Stats.Database = expandPath(config.Stats.Database)
	config.Categories.File = expandPath(config.Categories.File)
	config.LLM.PromptDir = expandPath(config.LLM.PromptDir)

	config.LLM.Provider = strings.ToLower(strings.TrimSpace(config.LLM.Provider))
	config.Slack.RSSFeedChannel = strings.TrimPrefix(config.Slack.RSSFeedChannel, "#")
	config.Slack.DailyTopicChannel = strings.TrimPrefix(config.Slack.DailyTopicChannel, "#")
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present
func validateConfig(config *Config) error {
	var errors []string

	if !config.IsTest() {
		if config.Slack.BotToken == "" && config.Slack.WebhookURL == "" {
			errors = append(errors, "Slack bot token is required. Set SLACK_BOT_TOKEN or slack.bot_token in config file")
		}

		switch config.LLM.Provider {
		case "anthropic":
			if config.LLM.Anthropic.APIKey == "" {
				errors = append(errors, "Anthropic API key is required. Set ANTHROPIC_API_KEY or llm.anthropic.api_key in config file")
			}
		case "gemini":
			if config.LLM.Gemini.APIKey == "" {
				errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY or llm.gemini.api_key in config file")
			}
		}
	}

	switch config.LLM.Provider {
	case "anthropic", "gemini":
	default:
		errors = append(errors, fmt.Sprintf("Unknown llm provider: %s. Supported: anthropic, gemini", config.LLM.Provider))
	}

	if _, err := time.LoadLocation(config.App.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("Invalid timezone %q: %v", config.App.Timezone, err))
	}

	positives := map[string]int{
		"pipeline.lookback_hours":            config.Pipeline.LookbackHours,
		"pipeline.min_content_length":        config.Pipeline.MinContentLength,
		"pipeline.max_articles_per_category": config.Pipeline.MaxArticlesPerCategory,
		"pipeline.fetch_concurrency":         config.Pipeline.FetchConcurrency,
		"llm.max_tokens":                     config.LLM.MaxTokens,
		"slack.history_limit":                config.Slack.HistoryLimit,
	}
	for _, key := range slices.Sorted(maps.Keys(positives)) {
		if positives[key] <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got %d", key, positives[key]))
		}
	}
	if config.Pipeline.FetchTimeout <= 0 {
		errors = append(errors, "pipeline.fetch_timeout must be positive")
	}
	if config.Pipeline.MaxContentBytes <= 0 {
		errors = append(errors, "pipeline.max_content_bytes must be positive")
	}
	if config.LLM.Temperature < 0 || config.LLM.Temperature > 1 {
		errors = append(errors, fmt.Sprintf("llm.temperature must be between 0 and 1, got %v", config.LLM.Temperature))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
