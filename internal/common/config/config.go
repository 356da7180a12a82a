// Package config provides configuration management for the session
// supervisor, loading from environment variables, an optional config file,
// and defaults, in that precedence order (env wins).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration section the supervisor needs.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Worktree WorktreeConfig `mapstructure:"worktree"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// DatabaseConfig holds the session store's SQLite location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WorktreeConfig holds git worktree configuration.
type WorktreeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BranchPrefix  string `mapstructure:"branchPrefix"`
	DefaultBranch string `mapstructure:"defaultBranch"`
}

// ExecutorConfig holds defaults for spawned agent executors.
type ExecutorConfig struct {
	// DefaultKind is a configured default executor type name. CreateSession
	// does not read it: the adapter is always the one named by the request's
	// ExecutorType.
	DefaultKind      string        `mapstructure:"defaultKind"`
	StartupTimeout   time.Duration `mapstructure:"startupTimeout"`
	StopGraceWindow  time.Duration `mapstructure:"stopGraceWindow"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TracingConfig holds optional OpenTelemetry export configuration.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	ServiceName  string `mapstructure:"serviceName"`
}

// detectDefaultLogFormat mirrors the supervisor daemon's own environment
// detection so a freshly loaded Config and the bootstrap logger agree.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("SUPERVISOR_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./supervisor.db")

	v.SetDefault("worktree.enabled", true)
	v.SetDefault("worktree.branchPrefix", "task/")
	v.SetDefault("worktree.defaultBranch", "main")

	v.SetDefault("executor.defaultKind", "cliexec")
	v.SetDefault("executor.startupTimeout", 180*time.Second)
	v.SetDefault("executor.stopGraceWindow", 2*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "session-supervisor")
}

// Load reads configuration from environment variables (prefix SUPERVISOR_),
// an optional ./config.yaml or /etc/supervisor/config.yaml, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath is Load but with an additional directory to search for a
// config file; useful for tests that want an isolated config.yaml.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SUPERVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database.path", "SUPERVISOR_DATABASE_URL")
	_ = v.BindEnv("logging.level", "SUPERVISOR_LOG_LEVEL")
	_ = v.BindEnv("tracing.otlpEndpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/supervisor/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Database.Path == "" {
		errs = append(errs, "database.path must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Executor.StartupTimeout <= 0 {
		errs = append(errs, "executor.startupTimeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
