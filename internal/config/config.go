package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete catalog configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// Discovery settings
	DiscoveryRoot   string   `json:"discoveryRoot" mapstructure:"discoveryRoot"`
	AdditionalPaths []string `json:"additionalPaths" mapstructure:"additionalPaths"`
	ExcludePaths    []string `json:"excludePaths" mapstructure:"excludePaths"`

	// Analysis settings
	DailyAnalysisLimit    int  `json:"dailyAnalysisLimit" mapstructure:"dailyAnalysisLimit"`
	AutoAnalyze           bool `json:"autoAnalyze" mapstructure:"autoAnalyze"`
	CacheDurationDays     int  `json:"cacheDurationDays" mapstructure:"cacheDurationDays"`
	MaxConcurrentAnalyses int  `json:"maxConcurrentAnalyses" mapstructure:"maxConcurrentAnalyses"`
	AnalysisTimeoutMs     int  `json:"analysisTimeoutMs" mapstructure:"analysisTimeoutMs"`

	Analyzer AnalyzerConfig `json:"analyzer" mapstructure:"analyzer"`
	Watcher  WatcherConfig  `json:"watcher" mapstructure:"watcher"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// AnalyzerConfig describes how to invoke the external analysis process
type AnalyzerConfig struct {
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args" mapstructure:"args"`
}

// WatcherConfig contains file watcher configuration
type WatcherConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	PollIntervalMs int  `json:"pollIntervalMs" mapstructure:"pollIntervalMs"`
	DebounceMs     int  `json:"debounceMs" mapstructure:"debounceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// AnalysisTimeout returns the analysis timeout as a duration
func (c *Config) AnalysisTimeout() time.Duration {
	if c.AnalysisTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.AnalysisTimeoutMs) * time.Millisecond
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		DiscoveryRoot: "~/.claude/projects",
		ExcludePaths: []string{
			"**/node_modules",
			"**/.git",
			"*.tmp",
		},
		DailyAnalysisLimit:    50,
		AutoAnalyze:           false,
		CacheDurationDays:     30,
		MaxConcurrentAnalyses: 1,
		AnalysisTimeoutMs:     60000,
		Analyzer: AnalyzerConfig{
			Command: "",
		},
		Watcher: WatcherConfig{
			Enabled:        true,
			PollIntervalMs: 2000,
			DebounceMs:     5000,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// DataDir returns the directory holding the catalog database and config.
// Defaults to ~/.skb, overridable through SKB_DATA_DIR.
func DataDir() (string, error) {
	if dir := os.Getenv("SKB_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".skb"), nil
}

// LoadConfig loads configuration from <dataDir>/config.json
func LoadConfig(dataDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("discoveryRoot", "~/.claude/projects")
	v.SetDefault("dailyAnalysisLimit", 50)
	v.SetDefault("cacheDurationDays", 30)
	v.SetDefault("maxConcurrentAnalyses", 1)
	v.SetDefault("analysisTimeoutMs", 60000)
	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.pollIntervalMs", 2000)
	v.SetDefault("watcher.debounceMs", 5000)
	v.SetDefault("logging.format", "human")
	v.SetDefault("logging.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dataDir)

	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <dataDir>/config.json
func (c *Config) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dataDir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.DailyAnalysisLimit < 0 {
		return &ConfigError{Field: "dailyAnalysisLimit", Message: "must not be negative"}
	}
	if c.MaxConcurrentAnalyses < 1 {
		return &ConfigError{Field: "maxConcurrentAnalyses", Message: "must be at least 1"}
	}
	if c.AnalysisTimeoutMs < 0 {
		return &ConfigError{Field: "analysisTimeoutMs", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
