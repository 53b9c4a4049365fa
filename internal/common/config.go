package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// LLMProvider identifies which provider backs completions by default.
const (
	LLMProviderGemini = "gemini"
	LLMProviderClaude = "claude"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Research    ResearchConfig `toml:"research"`
	Gate        GateConfig     `toml:"gate"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Claude      ClaudeConfig   `toml:"claude"`
	LLM         LLMConfig      `toml:"llm"`
	Search      SearchConfig   `toml:"search"`
	Fetch       FetchConfig    `toml:"fetch"`
	Report      ReportConfig   `toml:"report"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ResearchConfig controls the orchestration pipeline.
type ResearchConfig struct {
	MaxSubQueries       int  `toml:"max_sub_queries" validate:"min=1,max=20"`
	SubQueryConcurrency int  `toml:"sub_query_concurrency" validate:"min=1"`
	FetchConcurrency    int  `toml:"fetch_concurrency" validate:"min=1"` // per-document workers within one sub-query
	MaxSearchResults    int  `toml:"max_search_results" validate:"min=1"`
	TopK                int  `toml:"top_k" validate:"min=1"` // retrieved chunks per synthesis
	ChunkSize           int  `toml:"chunk_size" validate:"min=200"`
	ChunkOverlap        int  `toml:"chunk_overlap" validate:"min=0"`
	RetryFailedQueries  bool `toml:"retry_failed_queries"` // session-level retry of errored sub-queries after the first pass
}

// GateConfig controls rate limiting, caching and retries for all
// external calls.
type GateConfig struct {
	CacheTTL       string             `toml:"cache_ttl"`     // default TTL, e.g. "24h"
	ProviderTTLs   map[string]string  `toml:"provider_ttls"` // per-provider overrides
	CallTimeout    string             `toml:"call_timeout"`  // upstream call timeout
	MaxAttempts    int                `toml:"max_attempts" validate:"min=1"`
	InitialBackoff string             `toml:"initial_backoff"`
	MaxBackoff     string             `toml:"max_backoff"`
	RatesPerMinute map[string]float64 `toml:"rates_per_minute"` // provider -> requests/minute, 0 disables
}

type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	EmbedModel     string  `toml:"embed_model"`
	EmbedDimension int     `toml:"embed_dimension" validate:"min=1"`
	Temperature    float32 `toml:"temperature"`
	Timeout        string  `toml:"timeout"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

type LLMConfig struct {
	DefaultProvider string `toml:"default_provider" validate:"oneof=gemini claude"`
}

type SearchConfig struct {
	Model      string `toml:"model"` // grounded-search model
	MaxResults int    `toml:"max_results" validate:"min=1,max=20"`
}

type FetchConfig struct {
	Timeout     string `toml:"timeout"`
	UserAgent   string `toml:"user_agent"`
	DomainDelay string `toml:"domain_delay"` // politeness delay between hits to one domain
	MaxBodySize int    `toml:"max_body_size"`
}

type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
	PDF       bool   `toml:"pdf"` // also export the report as PDF
}

// NewDefaultConfig returns the configuration defaults. User config files
// and environment variables override these.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/profundo",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Research: ResearchConfig{
			MaxSubQueries:       5,
			SubQueryConcurrency: 3,
			FetchConcurrency:    5,
			MaxSearchResults:    8,
			TopK:                8,
			ChunkSize:           1200,
			ChunkOverlap:        200,
			RetryFailedQueries:  false,
		},
		Gate: GateConfig{
			CacheTTL:       "24h",
			ProviderTTLs:   map[string]string{},
			CallTimeout:    "2m",
			MaxAttempts:    3,
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
			RatesPerMinute: map[string]float64{
				"llm":    15, // free-tier friendly
				"embed":  60,
				"search": 15,
				"fetch":  120,
			},
		},
		Gemini: GeminiConfig{
			APIKey:         "",
			Model:          "gemini-3-flash-preview",
			EmbedModel:     "gemini-embedding-001",
			EmbedDimension: 768,
			Temperature:    0.7,
			Timeout:        "5m",
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Temperature: 0.7,
			Timeout:     "5m",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Search: SearchConfig{
			Model:      "gemini-3-flash-preview",
			MaxResults: 8,
		},
		Fetch: FetchConfig{
			Timeout:     "30s",
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			DomainDelay: "500ms",
			MaxBodySize: 10 * 1024 * 1024,
		},
		Report: ReportConfig{
			OutputDir: ".",
			PDF:       false,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier files.
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

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Research.ChunkOverlap >= c.Research.ChunkSize {
		return fmt.Errorf("invalid configuration: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Research.ChunkOverlap, c.Research.ChunkSize)
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"gate.cache_ttl", c.Gate.CacheTTL},
		{"gate.call_timeout", c.Gate.CallTimeout},
		{"gate.initial_backoff", c.Gate.InitialBackoff},
		{"gate.max_backoff", c.Gate.MaxBackoff},
		{"fetch.timeout", c.Fetch.Timeout},
		{"fetch.domain_delay", c.Fetch.DomainDelay},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid configuration: %s %q: %w", d.name, d.value, err)
		}
	}

	return nil
}

// Duration parses a duration config value that has already passed
// Validate; falls back to def on empty values.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PROFUNDO_ENV"); env != "" {
		config.Environment = env
	}

	// Storage
	if badgerPath := os.Getenv("PROFUNDO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("PROFUNDO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PROFUNDO_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}

	// Research
	if n := os.Getenv("PROFUNDO_MAX_SUB_QUERIES"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil {
			config.Research.MaxSubQueries = parsed
		}
	}
	if n := os.Getenv("PROFUNDO_FETCH_CONCURRENCY"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil {
			config.Research.FetchConcurrency = parsed
		}
	}

	// API keys (env names match the providers' conventional variables)
	if key := os.Getenv("PROFUNDO_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("PROFUNDO_ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}

	if provider := os.Getenv("PROFUNDO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = provider
	}

	if dir := os.Getenv("PROFUNDO_REPORT_DIR"); dir != "" {
		config.Report.OutputDir = dir
	}
}
