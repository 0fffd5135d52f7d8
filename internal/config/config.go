// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GuardMode controls what happens when the guard denies something. Mode
// strings are trimmed and lowercased at load time; comparisons after that
// are exact.
type GuardMode string

const (
	// ModeBlock denies blocked tool calls outright.
	ModeBlock GuardMode = "block"
	// ModeWarn logs what would have been blocked and lets it pass.
	ModeWarn GuardMode = "warn"
)

// LLMProvider names the supported planner backends.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderMock      LLMProvider = "mock"
)

// PlanStrategy selects how plans are generated.
type PlanStrategy string

const (
	StrategyTemplate PlanStrategy = "template"
	StrategyLLM      PlanStrategy = "llm"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Guard   GuardConfig   `mapstructure:"guard" yaml:"guard"`
	Planner PlannerConfig `mapstructure:"planner" yaml:"planner"`
	Filter  FilterConfig  `mapstructure:"filter" yaml:"filter"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
}

// LoggerConfig holds all the configuration for the logger. LogFile, when
// set, adds a rotated JSON audit log alongside the console output.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// GuardConfig tunes the interpreter and the mediator shim.
type GuardConfig struct {
	Mode GuardMode `mapstructure:"mode" yaml:"mode"`
	// StrictOutcomes aborts the session when a required expected outcome does
	// not hold after a step.
	StrictOutcomes bool `mapstructure:"strict_outcomes" yaml:"strict_outcomes"`
	// Trace collects the full execution trace. Disabling it only drops the
	// per-step records, not the policy checks.
	Trace bool `mapstructure:"trace" yaml:"trace"`
	// MaxSteps is a hard ceiling on driver iterations, independent of the
	// intent timeout.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// SnapshotHistory bounds how many snapshots the ref manager retains.
	SnapshotHistory int `mapstructure:"snapshot_history" yaml:"snapshot_history"`
}

// LLMConfig defines the configuration for a single planner model.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// PlannerConfig configures plan generation.
type PlannerConfig struct {
	Strategy           PlanStrategy `mapstructure:"strategy" yaml:"strategy"`
	MaxRetries         int          `mapstructure:"max_retries" yaml:"max_retries"`
	FallbackToTemplate bool         `mapstructure:"fallback_to_template" yaml:"fallback_to_template"`
	LLM                LLMConfig    `mapstructure:"llm" yaml:"llm"`
}

// FilterConfig tunes the HTTP request filter.
type FilterConfig struct {
	// PredictedAllowlist is loaded from the filter section. Filters built by
	// httpfilter.FromIntent always activate the intent-derived host allowlist
	// layer and do not read this flag.
	PredictedAllowlist bool `mapstructure:"predicted_allowlist" yaml:"predicted_allowlist"`
}

// BrowserConfig holds settings for the chromedp-backed adapter.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// PolitenessRPS throttles adapter-originated requests.
	PolitenessRPS float64 `mapstructure:"politeness_rps" yaml:"politeness_rps"`
}

// ProxyConfig configures the enforcement proxy.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// DefaultProviderTimeout returns the request timeout used when the config
// leaves api_timeout unset. OpenAI-shaped providers default to 60s,
// Anthropic-shaped to 120s.
func DefaultProviderTimeout(p LLMProvider) time.Duration {
	if p == ProviderAnthropic {
		return 120 * time.Second
	}
	return 60 * time.Second
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "browser-guard")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Guard --
	v.SetDefault("guard.mode", "block")
	v.SetDefault("guard.strict_outcomes", true)
	v.SetDefault("guard.trace", true)
	v.SetDefault("guard.max_steps", 100)
	v.SetDefault("guard.snapshot_history", 5)

	// -- Planner --
	v.SetDefault("planner.strategy", "template")
	v.SetDefault("planner.max_retries", 3)
	v.SetDefault("planner.fallback_to_template", true)
	v.SetDefault("planner.llm.provider", "gemini")
	v.SetDefault("planner.llm.model", "gemini-2.5-flash")
	v.SetDefault("planner.llm.temperature", 0.2)
	v.SetDefault("planner.llm.max_tokens", 8192)

	// -- Filter --
	v.SetDefault("filter.predicted_allowlist", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.politeness_rps", 2.0)

	// -- Proxy --
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.address", "127.0.0.1:8480")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	cfg.normalize()
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("planner.llm.api_key", "BROWSER_GUARD_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalize lowercases mode-ish strings so later comparisons are exact.
func (c *Config) normalize() {
	c.Guard.Mode = GuardMode(strings.ToLower(strings.TrimSpace(string(c.Guard.Mode))))
	c.Planner.Strategy = PlanStrategy(strings.ToLower(strings.TrimSpace(string(c.Planner.Strategy))))
	c.Planner.LLM.Provider = LLMProvider(strings.ToLower(strings.TrimSpace(string(c.Planner.LLM.Provider))))
	if c.Planner.LLM.APITimeout <= 0 {
		c.Planner.LLM.APITimeout = DefaultProviderTimeout(c.Planner.LLM.Provider)
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Guard.Mode {
	case ModeBlock, ModeWarn:
	default:
		return fmt.Errorf("guard.mode must be one of [block, warn], got %q", c.Guard.Mode)
	}
	switch c.Planner.Strategy {
	case StrategyTemplate, StrategyLLM:
	default:
		return fmt.Errorf("planner.strategy must be one of [template, llm], got %q", c.Planner.Strategy)
	}
	if c.Guard.MaxSteps <= 0 {
		return fmt.Errorf("guard.max_steps must be a positive integer")
	}
	if c.Guard.SnapshotHistory <= 0 {
		return fmt.Errorf("guard.snapshot_history must be a positive integer")
	}
	if c.Planner.MaxRetries < 1 {
		return fmt.Errorf("planner.max_retries must be at least 1")
	}
	if c.Planner.Strategy == StrategyLLM {
		switch c.Planner.LLM.Provider {
		case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMock:
		default:
			return fmt.Errorf("unknown planner.llm.provider %q", c.Planner.LLM.Provider)
		}
	}
	return nil
}
