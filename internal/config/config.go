// Package config provides configuration management for the strategy engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	enginerrors "strategy-engine/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Engine      EngineConfig      `mapstructure:"engine"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	MarketData  MarketDataConfig  `mapstructure:"market_data"`
	Thesis      ThesisConfig      `mapstructure:"thesis"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// EngineConfig holds run-execution configuration.
type EngineConfig struct {
	DatabasePath    string `mapstructure:"database_path"`
	BenchmarkSymbol string `mapstructure:"benchmark_symbol"`
	LogLevel        string `mapstructure:"log_level"`
}

// WorkerConfig holds job-claim worker configuration.
type WorkerConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	LeaseDuration     time.Duration `mapstructure:"lease_duration"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Tier              string        `mapstructure:"tier"`
	Concurrency       int           `mapstructure:"concurrency"`
}

// MarketDataConfig holds market-data provider configuration.
type MarketDataConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BatchSize     int           `mapstructure:"batch_size"`
	CacheDuration time.Duration `mapstructure:"cache_duration"`
}

// ThesisConfig holds AI thesis-generation configuration.
type ThesisConfig struct {
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Credentials holds API credentials.
type Credentials struct {
	OpenAI     OpenAICredentials     `mapstructure:"openai"`
	MarketData MarketDataCredentials `mapstructure:"market_data"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// MarketDataCredentials holds market-data provider credentials.
type MarketDataCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/strategy-engine"
	}
	return filepath.Join(home, ".config", "strategy-engine")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("engine.database_path", filepath.Join(configDir, "engine.db"))
	v.SetDefault("engine.benchmark_symbol", "SPY")
	v.SetDefault("engine.log_level", "info")
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.lease_duration", 2*time.Minute)
	v.SetDefault("worker.heartbeat_interval", 30*time.Second)
	v.SetDefault("worker.tier", "standard")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("market_data.timeout", 10*time.Second)
	v.SetDefault("market_data.batch_size", 50)
	v.SetDefault("market_data.cache_duration", 15*time.Minute)
	v.SetDefault("thesis.model", "gpt-4o-mini")
	v.SetDefault("thesis.timeout", 45*time.Second)
	v.SetDefault("thesis.concurrency", 4)
	v.SetDefault("thesis.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file yet: defaults apply, write a template for the user
			if err := createTemplateConfig(configDir); err != nil {
				return err
			}
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		cfg.Credentials.MarketData.APIKey = v
	}
	if v := os.Getenv("MARKET_DATA_BASE_URL"); v != "" {
		cfg.MarketData.BaseURL = v
	}
	if v := os.Getenv("ENGINE_DB_PATH"); v != "" {
		cfg.Engine.DatabasePath = v
	}
}

// Validate validates the configuration. Failures wrap ErrConfigInvalid so
// callers can distinguish a bad config from a missing one.
func (c *Config) Validate() error {
	if c.Worker.LeaseDuration <= 0 {
		return enginerrors.Wrapf(enginerrors.ErrConfigInvalid, "lease_duration %s must be positive", c.Worker.LeaseDuration)
	}
	if c.Worker.HeartbeatInterval <= 0 {
		return enginerrors.Wrapf(enginerrors.ErrConfigInvalid, "heartbeat_interval %s must be positive", c.Worker.HeartbeatInterval)
	}
	if c.Worker.HeartbeatInterval >= c.Worker.LeaseDuration {
		return enginerrors.Wrapf(enginerrors.ErrConfigInvalid, "heartbeat_interval %s must be shorter than lease_duration %s",
			c.Worker.HeartbeatInterval, c.Worker.LeaseDuration)
	}
	if c.Worker.Concurrency <= 0 {
		return enginerrors.Wrapf(enginerrors.ErrConfigInvalid, "worker concurrency %d must be positive", c.Worker.Concurrency)
	}
	if c.Thesis.Concurrency <= 0 {
		return enginerrors.Wrapf(enginerrors.ErrConfigInvalid, "thesis concurrency %d must be positive", c.Thesis.Concurrency)
	}
	return nil
}

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	template := `# strategy-engine configuration

[engine]
# database_path = "~/.config/strategy-engine/engine.db"
benchmark_symbol = "SPY"
log_level = "info"

[worker]
poll_interval = "5s"
lease_duration = "2m"
heartbeat_interval = "30s"
tier = "standard"
concurrency = 4

[market_data]
base_url = ""
timeout = "10s"
batch_size = 50

[thesis]
model = "gpt-4o-mini"
timeout = "45s"
concurrency = 4
enabled = true
`
	return os.WriteFile(path, []byte(template), 0644)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	template := `# strategy-engine credentials

[openai]
api_key = ""

[market_data]
api_key = ""
`
	return os.WriteFile(path, []byte(template), 0600)
}
