// Package config handles configuration loading and management for swarm.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for swarm.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	History   HistoryConfig   `mapstructure:"history"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// BudgetConfig holds run and per-team budget ceilings.
type BudgetConfig struct {
	TotalCostLimit   float64       `mapstructure:"total_cost_limit"`
	TotalTimeLimit   time.Duration `mapstructure:"total_time_limit"`
	PerTeamCostLimit float64       `mapstructure:"per_team_cost_limit"`
	PerTeamTimeLimit time.Duration `mapstructure:"per_team_time_limit"`
}

// SchedulerConfig holds concurrency and timeout settings.
type SchedulerConfig struct {
	MaxParallelTeams int `mapstructure:"max_parallel_teams"`
	// IntraTeamConcurrencyLimit caps concurrent tasks within a team.
	// Zero means unbounded.
	IntraTeamConcurrencyLimit int           `mapstructure:"intra_team_concurrency_limit"`
	TaskTimeout               time.Duration `mapstructure:"task_timeout"`
}

// RetryConfig holds retry settings for transient execution errors.
type RetryConfig struct {
	// MaxAttempts is the total attempts per task (1 = no retry).
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// HistoryConfig holds run persistence settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.swarm.yaml in current directory or parent)
// 3. User config (~/.config/swarm/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("budget.total_cost_limit", 25.00)
	v.SetDefault("budget.total_time_limit", "30m")
	v.SetDefault("budget.per_team_cost_limit", 5.00)
	v.SetDefault("budget.per_team_time_limit", "5m")

	v.SetDefault("scheduler.max_parallel_teams", 3)
	v.SetDefault("scheduler.intra_team_concurrency_limit", 0)
	v.SetDefault("scheduler.task_timeout", "2m")

	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_interval", "1s")
	v.SetDefault("retry.max_interval", "30s")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			MaxTokens: 4096,
		},
		Budget: BudgetConfig{
			TotalCostLimit:   25.00,
			TotalTimeLimit:   30 * time.Minute,
			PerTeamCostLimit: 5.00,
			PerTeamTimeLimit: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			MaxParallelTeams: 3,
			TaskTimeout:      2 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:     1,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// getUserConfigDir returns the XDG config directory for swarm.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "swarm")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "swarm")
	}
	return filepath.Join(home, ".config", "swarm")
}

// findProjectConfig searches for .swarm.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".swarm.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
