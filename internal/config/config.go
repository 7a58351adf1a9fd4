// File: internal/config/config.go

// Package config defines the harness configuration tree and its viper
// wiring. Values come from defaults, an optional YAML file, and PILOT_*
// environment variables, in rising precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the harness configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app" yaml:"app"`
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
	Triage  TriageConfig  `mapstructure:"triage" yaml:"triage"`
}

// AppConfig locates and shapes the application under test.
type AppConfig struct {
	// DistDir is the packaging output directory searched for a Compass build.
	DistDir string `mapstructure:"dist_dir" yaml:"dist_dir"`
	// Executable overrides discovery with an explicit binary path.
	Executable string `mapstructure:"executable" yaml:"executable"`
	// DebugPort pins the DevTools port; 0 picks a free one.
	DebugPort      int           `mapstructure:"debug_port" yaml:"debug_port"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	StopGrace      time.Duration `mapstructure:"stop_grace" yaml:"stop_grace"`
	// LogDir receives the application's stdout/stderr captures; empty
	// discards them.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels on the
// console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ClientConfig tunes the protocol client's waits.
type ClientConfig struct {
	DefaultWaitTimeout time.Duration `mapstructure:"default_wait_timeout" yaml:"default_wait_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// ProxyConfig configures the egress guard the application is pointed at.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	// Allow lists host suffixes reachable through the guard; everything
	// else is refused. Loopback is always allowed.
	Allow []string `mapstructure:"allow" yaml:"allow"`
}

// HistoryConfig points the run-history store at a Postgres instance.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// ReportConfig shapes run outputs: the JUnit file, the artifact bundle, and
// the optional GitHub issue filed on failure.
type ReportConfig struct {
	JUnitPath   string       `mapstructure:"junit_path" yaml:"junit_path"`
	ArtifactDir string       `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	Compress    bool         `mapstructure:"compress" yaml:"compress"`
	GitHub      GitHubConfig `mapstructure:"github" yaml:"github"`
}

// GitHubConfig defines the configuration for failure issue filing.
type GitHubConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Token     string   `mapstructure:"token" yaml:"-"`
	RepoOwner string   `mapstructure:"repo_owner" yaml:"repo_owner"`
	RepoName  string   `mapstructure:"repo_name" yaml:"repo_name"`
	Labels    []string `mapstructure:"labels" yaml:"labels"`
	// BaseURL overrides the API endpoint for GitHub Enterprise or tests.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// TriageConfig enables model-assisted failure triage notes.
type TriageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"-"`
	// BaseURL overrides the generation endpoint, mainly for tests.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Application --
	v.SetDefault("app.dist_dir", "dist")
	v.SetDefault("app.executable", "") // Usually set via PILOT_APP_EXECUTABLE
	v.SetDefault("app.debug_port", 0)
	v.SetDefault("app.startup_timeout", "30s")
	v.SetDefault("app.stop_grace", "10s")
	v.SetDefault("app.log_dir", "")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "compass-pilot")
	v.SetDefault("logger.log_file", "compass-pilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Client --
	v.SetDefault("client.default_wait_timeout", "10s")
	v.SetDefault("client.poll_interval", "500ms")

	// -- Proxy --
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.listen", "127.0.0.1:0")
	v.SetDefault("proxy.allow", []string{})

	// -- History --
	v.SetDefault("history.enabled", false)

	// -- Report --
	v.SetDefault("report.junit_path", "")
	v.SetDefault("report.artifact_dir", "artifacts")
	v.SetDefault("report.compress", true)
	v.SetDefault("report.github.enabled", false)
	v.SetDefault("report.github.labels", []string{"compass-smoke"})

	// -- Triage --
	v.SetDefault("triage.enabled", false)
	v.SetDefault("triage.model", "gemini-2.5-flash")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("report.github.token", "PILOT_GH_TOKEN")
	v.BindEnv("triage.api_key", "PILOT_GEMINI_API_KEY")
	v.BindEnv("history.url", "PILOT_HISTORY_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal misses bound env vars that have no other source.
	if cfg.Report.GitHub.Enabled && cfg.Report.GitHub.Token == "" {
		cfg.Report.GitHub.Token = os.Getenv("PILOT_GH_TOKEN")
	}
	if cfg.Triage.Enabled && cfg.Triage.APIKey == "" {
		cfg.Triage.APIKey = os.Getenv("PILOT_GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.App.StartupTimeout <= 0 {
		return fmt.Errorf("app.startup_timeout must be a positive duration")
	}
	if c.App.StopGrace <= 0 {
		return fmt.Errorf("app.stop_grace must be a positive duration")
	}
	if c.Client.DefaultWaitTimeout <= 0 {
		return fmt.Errorf("client.default_wait_timeout must be a positive duration")
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("client.poll_interval must be a positive duration")
	}
	if c.Proxy.Enabled && c.Proxy.Listen == "" {
		return fmt.Errorf("proxy.listen is required when the proxy is enabled")
	}
	if c.History.Enabled && c.History.URL == "" {
		return fmt.Errorf("history.url is required when history is enabled. Set PILOT_HISTORY_URL or history.url")
	}
	if err := c.Report.GitHub.Validate(); err != nil {
		return fmt.Errorf("report.github configuration invalid: %w", err)
	}
	if err := c.Triage.Validate(); err != nil {
		return fmt.Errorf("triage configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the GitHub reporter configuration.
func (g *GitHubConfig) Validate() error {
	if !g.Enabled {
		return nil
	}
	if g.RepoOwner == "" || g.RepoName == "" {
		return fmt.Errorf("github.repo_owner and github.repo_name are required")
	}
	if g.Token == "" {
		return fmt.Errorf("GitHub token is required but not found. Ensure PILOT_GH_TOKEN is set")
	}
	return nil
}

// Validate checks the triage configuration.
func (t *TriageConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.Model == "" {
		return fmt.Errorf("triage.model is required when triage is enabled")
	}
	if t.APIKey == "" {
		return fmt.Errorf("triage API key is required but not found. Ensure PILOT_GEMINI_API_KEY is set")
	}
	return nil
}
