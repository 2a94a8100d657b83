// Package config provides configuration management for agenthost.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for agenthost.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Terminal   TerminalConfig   `mapstructure:"terminal"`
	Permission PermissionConfig `mapstructure:"permission"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the UI websocket bridge configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AgentConfig holds agent subprocess configuration.
type AgentConfig struct {
	// Profile names the launch profile from the registry (agents.yaml).
	Profile string `mapstructure:"profile"`

	// ProfilesPath overrides the agents.yaml location. Empty means the
	// built-in defaults plus ./agents.yaml if present.
	ProfilesPath string `mapstructure:"profilesPath"`

	// WorkingDir is the default cwd for launched agents.
	WorkingDir string `mapstructure:"workingDir"`

	// FrameScanWindow is the framer's boundary-scan lookahead in bytes.
	FrameScanWindow int `mapstructure:"frameScanWindow"`
}

// TerminalConfig holds agent-requested terminal configuration.
type TerminalConfig struct {
	// DefaultOutputLimit caps each terminal's output buffer in bytes.
	DefaultOutputLimit int `mapstructure:"defaultOutputLimit"`

	// ReleaseCacheSize bounds the released-terminal output cache.
	ReleaseCacheSize int `mapstructure:"releaseCacheSize"`

	// UsePty runs terminal children under a pseudo-terminal so CLIs that
	// require a tty still stream output.
	UsePty bool `mapstructure:"usePty"`

	// ExitPollInterval is how often waiters poll process liveness, in
	// milliseconds.
	ExitPollInterval int `mapstructure:"exitPollInterval"`
}

// PermissionConfig holds permission-prompt configuration.
type PermissionConfig struct {
	// TimeoutSeconds is how long a prompt waits for a human before it
	// resolves as a deny.
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

// StorageConfig holds the workspace/session store configuration.
type StorageConfig struct {
	// Path is the sqlite database file. Empty disables persistence.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// PermissionTimeout returns the permission timeout as a time.Duration.
func (p *PermissionConfig) PermissionTimeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ExitPollIntervalDuration returns the terminal exit poll interval as a time.Duration.
func (t *TerminalConfig) ExitPollIntervalDuration() time.Duration {
	return time.Duration(t.ExitPollInterval) * time.Millisecond
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8137)

	v.SetDefault("agent.profile", "")
	v.SetDefault("agent.profilesPath", "")
	v.SetDefault("agent.workingDir", "")
	v.SetDefault("agent.frameScanWindow", 200_000)

	v.SetDefault("terminal.defaultOutputLimit", 1_000_000)
	v.SetDefault("terminal.releaseCacheSize", 50)
	v.SetDefault("terminal.usePty", false)
	v.SetDefault("terminal.exitPollInterval", 100)

	v.SetDefault("permission.timeoutSeconds", 300)

	v.SetDefault("storage.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stderr")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTHOST_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/agenthost/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion, so
	// keys whose env var naming differs are bound explicitly.
	_ = v.BindEnv("agent.profile", "AGENTHOST_AGENT_PROFILE")
	_ = v.BindEnv("agent.workingDir", "AGENTHOST_AGENT_WORKING_DIR")
	_ = v.BindEnv("terminal.usePty", "AGENTHOST_TERMINAL_USE_PTY")
	_ = v.BindEnv("storage.path", "AGENTHOST_STORAGE_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agenthost/")

	// Read config file (ignore if not found)
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

// validate checks that all required configuration fields are sane.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Agent.FrameScanWindow <= 0 {
		errs = append(errs, "agent.frameScanWindow must be positive")
	}

	if cfg.Terminal.DefaultOutputLimit <= 0 {
		errs = append(errs, "terminal.defaultOutputLimit must be positive")
	}
	if cfg.Terminal.ReleaseCacheSize <= 0 {
		errs = append(errs, "terminal.releaseCacheSize must be positive")
	}
	if cfg.Terminal.ExitPollInterval <= 0 {
		errs = append(errs, "terminal.exitPollInterval must be positive")
	}

	if cfg.Permission.TimeoutSeconds <= 0 {
		errs = append(errs, "permission.timeoutSeconds must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
