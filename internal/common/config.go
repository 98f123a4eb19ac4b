package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Criteria CriteriaConfig `toml:"criteria"`
	Run      RunConfig      `toml:"run"`
	Tickers  TickersConfig  `toml:"tickers"`
	Output   OutputConfig   `toml:"output"`
	EODHD    EODHDConfig    `toml:"eodhd"`
	LLM      LLMConfig      `toml:"llm"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Claude   ClaudeConfig   `toml:"claude"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
}

// CriteriaConfig holds the value screen thresholds
type CriteriaConfig struct {
	PEMax  float64 `toml:"pe_max" validate:"gt=0"`   // Price/earnings must be below this
	PBMax  float64 `toml:"pb_max" validate:"gt=0"`   // Price/book must be below this
	DEMax  float64 `toml:"de_max" validate:"gt=0"`   // Debt/equity must be below this
	ROEMin float64 `toml:"roe_min" validate:"gte=0"` // Return on equity must be above this (fraction, 0.12 = 12%)
}

// RunConfig controls the batch pipeline
type RunConfig struct {
	Concurrency        int    `toml:"concurrency" validate:"min=1,max=64"`  // Worker pool width
	RetryMax           int    `toml:"retry_max" validate:"min=1,max=10"`    // Attempts per external call, including the first
	RetryBackoffBase   string `toml:"retry_backoff_base"`                   // e.g. "2s", doubled per attempt
	RetryBackoffMax    string `toml:"retry_backoff_max"`                    // Upper bound on a single backoff
	CallTimeout        string `toml:"call_timeout"`                         // Per external call timeout
	CheckpointInterval int    `toml:"checkpoint_interval" validate:"min=0"` // Rewrite CSV every N commits (0 = only at end)
	ClearOnComplete    bool   `toml:"clear_on_complete"`                    // Discard checkpoint after a fully completed run
	Schedule           string `toml:"schedule"`                             // Cron expression for recurring runs (empty = once)
}

// TickersConfig lists where tickers come from
type TickersConfig struct {
	Files           []string `toml:"files"`            // JSON or YAML ticker lists, merged in order
	Symbols         []string `toml:"symbols"`          // Inline tickers
	DefaultExchange string   `toml:"default_exchange"` // Exchange for bare codes (default: "US")
}

// OutputConfig controls the consolidated output
type OutputConfig struct {
	Path       string `toml:"path" validate:"required"` // CSV path (default: "stock_analysis.csv")
	ReportPath string `toml:"report_path"`              // Markdown run report; an .html sibling is rendered too
	ReportPDF  bool   `toml:"report_pdf"`               // Also render a .pdf sibling of the report
}

// EODHDConfig contains EODHD market data API configuration
type EODHDConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit" validate:"min=1"` // Requests per second
	Timeout   string `toml:"timeout"`                     // HTTP client timeout
	NewsLimit int    `toml:"news_limit" validate:"min=0"` // News items fetched per ticker (0 = no news)
	CacheTTL  string `toml:"cache_ttl"`                   // Response cache lifetime (default: "24h", "0" disables)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains settings shared by all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"`
	CacheEnabled    bool        `toml:"cache_enabled"` // Reuse identical prompt responses across runs
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default: "gemini-2.5-flash"
	MaxTokens   int     `toml:"max_tokens"`  // default: 250
	Timeout     string  `toml:"timeout"`     // default: "60s"
	Temperature float32 `toml:"temperature"` // default: 0.2
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`      // default: "claude-3-5-haiku-latest"
	MaxTokens   int     `toml:"max_tokens"` // default: 250
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default: "15:04:05"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Criteria: CriteriaConfig{
			PEMax:  10,
			PBMax:  1.5,
			DEMax:  1,
			ROEMin: 0.12,
		},
		Run: RunConfig{
			Concurrency:        4,
			RetryMax:           3,
			RetryBackoffBase:   "2s",
			RetryBackoffMax:    "30s",
			CallTimeout:        "30s",
			CheckpointInterval: 10, // Matches the autosave cadence of the CSV workflow
		},
		Tickers: TickersConfig{
			DefaultExchange: "US",
		},
		Output: OutputConfig{
			Path: "stock_analysis.csv",
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 5,
			Timeout:   "30s",
			NewsLimit: 10,
			CacheTTL:  "24h",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			CacheEnabled:    true,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			MaxTokens:   250,
			Timeout:     "60s",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-3-5-haiku-latest",
			MaxTokens:   250,
			Timeout:     "60s",
			Temperature: 0.2,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> files -> .env -> environment.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env is optional; existing process variables win
	_ = godotenv.Load()

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	// API keys: prefixed names first, then the vendors' conventional names
	if key := firstEnv("VALUESCREEN_EODHD_API_KEY", "EODHD_API_KEY"); key != "" {
		config.EODHD.APIKey = key
	}
	if key := firstEnv("VALUESCREEN_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := firstEnv("VALUESCREEN_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}

	if provider := os.Getenv("VALUESCREEN_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}

	// Run configuration
	if concurrency := os.Getenv("VALUESCREEN_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Run.Concurrency = c
		}
	}
	if retryMax := os.Getenv("VALUESCREEN_RETRY_MAX"); retryMax != "" {
		if r, err := strconv.Atoi(retryMax); err == nil {
			config.Run.RetryMax = r
		}
	}
	if base := os.Getenv("VALUESCREEN_RETRY_BACKOFF_BASE"); base != "" {
		config.Run.RetryBackoffBase = base
	}

	if badgerPath := os.Getenv("VALUESCREEN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if outputPath := os.Getenv("VALUESCREEN_OUTPUT_PATH"); outputPath != "" {
		config.Output.Path = outputPath
	}

	// Logging configuration
	if level := os.Getenv("VALUESCREEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VALUESCREEN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies command-line overrides (highest priority).
// Zero values leave the loaded configuration untouched.
func ApplyFlagOverrides(config *Config, concurrency int, outputPath, schedule string) {
	if concurrency > 0 {
		config.Run.Concurrency = concurrency
	}
	if outputPath != "" {
		config.Output.Path = outputPath
	}
	if schedule != "" {
		config.Run.Schedule = schedule
	}
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, value := range map[string]string{
		"run.retry_backoff_base": c.Run.RetryBackoffBase,
		"run.retry_backoff_max":  c.Run.RetryBackoffMax,
		"run.call_timeout":       c.Run.CallTimeout,
		"eodhd.timeout":          c.EODHD.Timeout,
		"eodhd.cache_ttl":        c.EODHD.CacheTTL,
	} {
		if value == "" || value == "0" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	if c.Run.Schedule != "" {
		if err := ValidateSchedule(c.Run.Schedule); err != nil {
			return err
		}
	}

	return nil
}

// ValidateSchedule checks a 5-field cron expression and enforces an hourly minimum.
// A full batch can take longer than a few minutes, so tighter schedules would overlap.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if strings.HasPrefix(schedule, "@every ") {
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(schedule, "@every ")))
		if err != nil || d < time.Hour {
			return fmt.Errorf("schedule interval must be at least 1h")
		}
		return nil
	}
	if strings.HasPrefix(schedule, "@") {
		return nil
	}

	parts := strings.Fields(schedule)
	if len(parts) != 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}
	if parts[0] == "*" || strings.HasPrefix(parts[0], "*/") || strings.Contains(parts[0], ",") || strings.Contains(parts[0], "-") {
		return fmt.Errorf("schedule must pin a single minute, got %q", parts[0])
	}

	return nil
}

// ParseDuration parses a duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
