package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Selection SelectionConfig `yaml:"selection" mapstructure:"selection"`
	Dispatch  DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Prompt    PromptConfig    `yaml:"prompt" mapstructure:"prompt"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// OpenAIConfig holds generation service settings.
type OpenAIConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	Effort    string `yaml:"effort" mapstructure:"effort"` // low, medium, high
	WebSearch bool   `yaml:"web_search" mapstructure:"web_search"`
}

// SelectionConfig controls which securities receive commentary.
type SelectionConfig struct {
	Mode            string `yaml:"mode" mapstructure:"mode"` // top_bottom or all_holdings
	TopN            int    `yaml:"top_n" mapstructure:"top_n"`
	SortByMagnitude bool   `yaml:"sort_by_magnitude" mapstructure:"sort_by_magnitude"`
}

// DispatchConfig controls concurrency and retry behavior.
type DispatchConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PromptConfig controls prompt generation and citation policy.
type PromptConfig struct {
	Template               string   `yaml:"template" mapstructure:"template"`
	PreferredDomains       []string `yaml:"preferred_domains" mapstructure:"preferred_domains"`
	PrioritizeSources      bool     `yaml:"prioritize_sources" mapstructure:"prioritize_sources"`
	AdditionalInstructions string   `yaml:"additional_instructions" mapstructure:"additional_instructions"`
	RequireCitations       bool     `yaml:"require_citations" mapstructure:"require_citations"`
}

// OutputConfig controls where results land.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMMENTARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-5.2")
	v.SetDefault("openai.effort", "medium")
	v.SetDefault("openai.web_search", true)
	v.SetDefault("selection.mode", "top_bottom")
	v.SetDefault("selection.top_n", 5)
	v.SetDefault("selection.sort_by_magnitude", true)
	v.SetDefault("dispatch.concurrency", 20)
	v.SetDefault("dispatch.max_attempts", 5)
	v.SetDefault("dispatch.initial_backoff_ms", 1000)
	v.SetDefault("dispatch.max_backoff_ms", 60000)
	v.SetDefault("dispatch.jitter_fraction", 0.2)
	v.SetDefault("dispatch.requests_per_second", 0)
	v.SetDefault("prompt.prioritize_sources", true)
	v.SetDefault("prompt.require_citations", true)
	v.SetDefault("output.dir", "output")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration before a run starts. It reports every
// problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	if c.OpenAI.Key == "" {
		problems = append(problems, "openai.key is required (or set COMMENTARY_OPENAI_KEY)")
	}
	switch c.OpenAI.Effort {
	case "low", "medium", "high":
	default:
		problems = append(problems, "openai.effort must be low, medium, or high")
	}
	switch c.Selection.Mode {
	case "top_bottom", "all_holdings":
	default:
		problems = append(problems, "selection.mode must be top_bottom or all_holdings")
	}
	if c.Selection.Mode == "top_bottom" && c.Selection.TopN < 1 {
		problems = append(problems, "selection.top_n must be >= 1")
	}
	if c.Dispatch.Concurrency < 1 || c.Dispatch.Concurrency > 100 {
		problems = append(problems, "dispatch.concurrency must be between 1 and 100")
	}
	if c.Dispatch.MaxAttempts < 1 {
		problems = append(problems, "dispatch.max_attempts must be >= 1")
	}
	if c.Dispatch.JitterFraction < 0 || c.Dispatch.JitterFraction > 1 {
		problems = append(problems, "dispatch.jitter_fraction must be between 0 and 1")
	}
	if c.Output.Dir == "" {
		problems = append(problems, "output.dir is required")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
