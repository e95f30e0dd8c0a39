// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for webpilot. It is populated from
// defaults, an optional config file, and WEBPILOT_* environment variables.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"` // days
	Compress    bool   `mapstructure:"compress"`
}

// GeminiConfig identifies the decision service endpoint.
type GeminiConfig struct {
	// APIKey is bound to GEMINI_API_KEY (and WEBPILOT_GEMINI_API_KEY).
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BrowserConfig controls the Chrome process and viewport.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless"`
	Width    int      `mapstructure:"width"`
	Height   int      `mapstructure:"height"`
	Args     []string `mapstructure:"args"`
}

// AgentConfig bounds the perception-action loop.
type AgentConfig struct {
	MaxTurns          int           `mapstructure:"max_turns"`
	SearchURL         string        `mapstructure:"search_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	// LoadWait bounds the post-navigation readiness wait inside a turn.
	LoadWait time.Duration `mapstructure:"load_wait"`
	// SettleDelay is the fixed pause after non-navigation actions.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// WaitDuration is the pause performed by the model's "wait" action.
	WaitDuration time.Duration `mapstructure:"wait_duration"`
}

// ArtifactsConfig locates persisted screenshots.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

// JobsConfig controls background job retention.
type JobsConfig struct {
	MaxAge     time.Duration `mapstructure:"max_age"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

// ServerConfig controls the MCP HTTP listener.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Gemini --
	v.SetDefault("gemini.model", "gemini-2.5-computer-use-preview-10-2025")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.width", 1440)
	v.SetDefault("browser.height", 900)

	// -- Agent --
	v.SetDefault("agent.max_turns", 30)
	v.SetDefault("agent.search_url", "https://www.google.com")
	v.SetDefault("agent.navigation_timeout", "10s")
	v.SetDefault("agent.load_wait", "3s")
	v.SetDefault("agent.settle_delay", "300ms")
	v.SetDefault("agent.wait_duration", "5s")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "output_screenshots")

	// -- Jobs --
	v.SetDefault("jobs.max_age", "24h")
	v.SetDefault("jobs.gc_interval", "1h")

	// -- Server --
	v.SetDefault("server.listen_addr", "127.0.0.1:8080")
}

// NewFromViper creates a validated configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for the credential and model override. The
	// bare GEMINI_* forms match the deployment convention of the decision
	// service SDK.
	v.BindEnv("gemini.api_key", "WEBPILOT_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("gemini.model", "WEBPILOT_GEMINI_MODEL", "GEMINI_MODEL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal does not consult BindEnv for keys absent from the file.
	if cfg.Gemini.APIKey == "" {
		if key := os.Getenv("WEBPILOT_GEMINI_API_KEY"); key != "" {
			cfg.Gemini.APIKey = key
		} else {
			cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
// The Gemini API key is deliberately not required here: it is a setup-time
// failure surfaced when the decision client is constructed, so that commands
// that never talk to the model (version, list_artifacts) still work.
func (c *Config) Validate() error {
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive integers")
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be a positive integer")
	}
	if c.Agent.NavigationTimeout <= 0 {
		return fmt.Errorf("agent.navigation_timeout must be a positive duration")
	}
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is a required configuration field")
	}
	if c.Jobs.MaxAge <= 0 {
		return fmt.Errorf("jobs.max_age must be a positive duration")
	}
	return nil
}
