package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Anthropic     AnthropicConfig     `yaml:"anthropic"`
	Investigation InvestigationConfig `yaml:"investigation"`
	Database      DatabaseConfig      `yaml:"database"`
	Quickwit      QuickwitConfig      `yaml:"quickwit"`
	AdminConsole  AdminConsoleConfig  `yaml:"admin_console"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// AnthropicConfig contains language model API configuration
type AnthropicConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// InvestigationConfig contains investigation resource limits. Zero values
// mean "use the preset default"; the preset is chosen by name.
type InvestigationConfig struct {
	Preset                string `yaml:"preset"` // "default", "production", "debug"
	MaxToolRounds         int    `yaml:"max_tool_rounds"`
	MaxToolsPerRound      int    `yaml:"max_tools_per_round"`
	MaxTotalTools         int    `yaml:"max_total_tools"`
	ContextBudgetTokens   int    `yaml:"context_budget_tokens"`
	MaxConversationLength int    `yaml:"max_conversation_length"`
	ToolTimeout           string `yaml:"tool_timeout"`
	InvestigationTimeout  string `yaml:"investigation_timeout"`
	DefaultQueryLimit     int    `yaml:"default_query_limit"`
	MaxQueryLimit         int    `yaml:"max_query_limit"`
	Debug                 bool   `yaml:"debug"`
}

// DatabaseConfig contains the operational database connection settings
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// QuickwitConfig contains the log search backend settings
type QuickwitConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Index   string `yaml:"index"`
	Timeout string `yaml:"timeout"`
}

// AdminConsoleConfig contains admin console link generation settings
type AdminConsoleConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ObservabilityConfig contains observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
	Output string `yaml:"output"` // "stdout", "file"
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.overrideFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file or returns default config
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		config = Default()
	}
	return config
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			BaseURL:     "https://api.anthropic.com",
			Model:       "claude-sonnet-4-20250514",
			Temperature: 0.2,
			MaxTokens:   4096,
			Timeout:     "2m",
		},
		Investigation: InvestigationConfig{
			Preset:                "default",
			MaxToolRounds:         3,
			MaxToolsPerRound:      5,
			MaxTotalTools:         10,
			ContextBudgetTokens:   50000,
			MaxConversationLength: 20,
			ToolTimeout:           "30s",
			InvestigationTimeout:  "5m",
			DefaultQueryLimit:     10,
			MaxQueryLimit:         100,
		},
		Database: DatabaseConfig{
			DSN:             "postgres://localhost:5432/devices?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "30m",
		},
		Quickwit: QuickwitConfig{
			Enabled: true,
			BaseURL: "http://localhost:7280",
			Index:   "service-logs",
			Timeout: "15s",
		},
		AdminConsole: AdminConsoleConfig{
			BaseURL: "https://admin.lockwise.internal",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      true,
				Endpoint:     "localhost:4318",
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    2224,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
	}
}

// applyDefaults applies default values to missing fields
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Anthropic.BaseURL == "" {
		c.Anthropic.BaseURL = defaults.Anthropic.BaseURL
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = defaults.Anthropic.Model
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = defaults.Anthropic.MaxTokens
	}
	if c.Anthropic.Timeout == "" {
		c.Anthropic.Timeout = defaults.Anthropic.Timeout
	}

	if c.Investigation.Preset == "" {
		c.Investigation.Preset = defaults.Investigation.Preset
	}
	if c.Investigation.ToolTimeout == "" {
		c.Investigation.ToolTimeout = defaults.Investigation.ToolTimeout
	}
	if c.Investigation.InvestigationTimeout == "" {
		c.Investigation.InvestigationTimeout = defaults.Investigation.InvestigationTimeout
	}
	if c.Investigation.DefaultQueryLimit == 0 {
		c.Investigation.DefaultQueryLimit = defaults.Investigation.DefaultQueryLimit
	}
	if c.Investigation.MaxQueryLimit == 0 {
		c.Investigation.MaxQueryLimit = defaults.Investigation.MaxQueryLimit
	}

	if c.Database.DSN == "" {
		c.Database.DSN = defaults.Database.DSN
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.ConnMaxLifetime == "" {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
	}

	if c.Quickwit.BaseURL == "" {
		c.Quickwit.BaseURL = defaults.Quickwit.BaseURL
	}
	if c.Quickwit.Index == "" {
		c.Quickwit.Index = defaults.Quickwit.Index
	}
	if c.Quickwit.Timeout == "" {
		c.Quickwit.Timeout = defaults.Quickwit.Timeout
	}

	if c.AdminConsole.BaseURL == "" {
		c.AdminConsole.BaseURL = defaults.AdminConsole.BaseURL
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaults.Observability.Logging.Level
	}
	if c.Observability.Metrics.Port == 0 {
		c.Observability.Metrics.Port = defaults.Observability.Metrics.Port
	}
}

// overrideFromEnv overrides configuration from environment variables
func (c *Config) overrideFromEnv() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Anthropic.APIKey = key
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" {
		c.Anthropic.BaseURL = url
	}
	if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
		c.Anthropic.Model = model
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if url := os.Getenv("QUICKWIT_BASE_URL"); url != "" {
		c.Quickwit.BaseURL = url
	}

	if port := os.Getenv("METRICS_PORT"); port != "" {
		_, err := fmt.Sscanf(port, "%d", &c.Observability.Metrics.Port)
		if err != nil {
			log.Printf("Invalid METRICS_PORT value: %s, using default: %d", port, c.Observability.Metrics.Port)
		}
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Observability.Tracing.Endpoint = endpoint
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Anthropic.BaseURL == "" {
		return fmt.Errorf("anthropic base_url is required")
	}
	if c.Anthropic.Model == "" {
		return fmt.Errorf("anthropic model is required")
	}

	switch c.Investigation.Preset {
	case "default", "production", "debug":
	default:
		return fmt.Errorf("unknown investigation preset: %s", c.Investigation.Preset)
	}

	if c.Investigation.DefaultQueryLimit > c.Investigation.MaxQueryLimit {
		return fmt.Errorf("default_query_limit must not exceed max_query_limit")
	}

	toolTimeout, err := time.ParseDuration(c.Investigation.ToolTimeout)
	if err != nil {
		return fmt.Errorf("invalid tool timeout: %w", err)
	}
	invTimeout, err := time.ParseDuration(c.Investigation.InvestigationTimeout)
	if err != nil {
		return fmt.Errorf("invalid investigation timeout: %w", err)
	}
	if invTimeout <= toolTimeout {
		return fmt.Errorf("investigation_timeout must exceed tool_timeout")
	}

	if c.Observability.Metrics.Enabled && (c.Observability.Metrics.Port < 1 || c.Observability.Metrics.Port > 65535) {
		return fmt.Errorf("metrics port must be between 1 and 65535")
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := os.Getenv("ENVIRONMENT")
	return strings.ToLower(env) == "production" || strings.ToLower(env) == "prod"
}
