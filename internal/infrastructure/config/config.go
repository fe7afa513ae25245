package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/webboot/internal/shared/utils"
)

// Config holds all application configuration.
type Config struct {
	Boot     BootConfig     `yaml:"boot" toml:"boot"`
	Headless HeadlessConfig `yaml:"headless" toml:"headless"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Logging  LogConfig      `yaml:"logging" toml:"logging"`
}

// BootConfig holds the injected bootstrap configuration.
type BootConfig struct {
	WorkerURL        string `envconfig:"WEBBOOT_WORKER_URL" default:"/app-worker.js" yaml:"worker_url" toml:"worker_url"`
	ModuleURL        string `envconfig:"WEBBOOT_MODULE_URL" default:"/web/app.wasm" yaml:"module_url" toml:"module_url"`
	EnvFile          string `envconfig:"WEBBOOT_ENV_FILE" yaml:"env_file" toml:"env_file"`
	IconReadyClass   string `envconfig:"WEBBOOT_ICON_READY_CLASS" yaml:"icon_ready_class" toml:"icon_ready_class"`
	IconNeutralClass string `envconfig:"WEBBOOT_ICON_NEUTRAL_CLASS" yaml:"icon_neutral_class" toml:"icon_neutral_class"`
}

// HeadlessConfig holds headless host settings.
type HeadlessConfig struct {
	Page         string   `envconfig:"WEBBOOT_PAGE" yaml:"page" toml:"page"`
	UserAgent    string   `envconfig:"WEBBOOT_USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) webboot-headless/1.0" yaml:"user_agent" toml:"user_agent"`
	DisplayMode  string   `envconfig:"WEBBOOT_DISPLAY_MODE" default:"browser" yaml:"display_mode" toml:"display_mode"`
	FetchTimeout Duration `envconfig:"WEBBOOT_FETCH_TIMEOUT" default:"30s" yaml:"fetch_timeout" toml:"fetch_timeout"`
	UpdatePoll   Duration `envconfig:"WEBBOOT_UPDATE_POLL" default:"1m" yaml:"update_poll" toml:"update_poll"`
	FetchRate    float64  `envconfig:"WEBBOOT_FETCH_RATE" default:"0" yaml:"fetch_rate" toml:"fetch_rate"`
	MetricsAddr  string   `envconfig:"WEBBOOT_METRICS_ADDR" yaml:"metrics_addr" toml:"metrics_addr"`
}

// ServerConfig holds dev server configuration.
type ServerConfig struct {
	Addr string `envconfig:"WEBBOOT_SERVE_ADDR" default:"127.0.0.1:8080" yaml:"addr" toml:"addr"`
	Root string `envconfig:"WEBBOOT_SERVE_ROOT" default:"." yaml:"root" toml:"root"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// Display modes accepted by the headless window.
const (
	DisplayModeBrowser    = "browser"
	DisplayModeStandalone = "standalone"
)

// Duration is a time.Duration that decodes from strings such as "30s" in
// environment variables and config files alike.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithFile loads the environment, then overlays the keys present in the
// config file at path. An empty path skips the file.
func LoadWithFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Boot: BootConfig{
			WorkerURL: "/app-worker.js",
			ModuleURL: "/web/app.wasm",
		},
		Headless: HeadlessConfig{
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) webboot-headless/1.0",
			DisplayMode:  DisplayModeBrowser,
			FetchTimeout: Duration(30 * time.Second),
			UpdatePoll:   Duration(time.Minute),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
			Root: ".",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate checks endpoint URLs, enumerated and non-negative values.
func (c *Config) Validate() error {
	if err := utils.ValidateResourceURL(c.Boot.WorkerURL, "worker URL"); err != nil {
		return err
	}
	if err := utils.ValidateResourceURL(c.Boot.ModuleURL, "module URL"); err != nil {
		return err
	}
	switch c.Headless.DisplayMode {
	case DisplayModeBrowser, DisplayModeStandalone:
	default:
		return fmt.Errorf("invalid display mode %q: want %q or %q",
			c.Headless.DisplayMode, DisplayModeBrowser, DisplayModeStandalone)
	}
	if c.Headless.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout must not be negative")
	}
	if c.Headless.UpdatePoll < 0 {
		return fmt.Errorf("update poll interval must not be negative")
	}
	if c.Headless.FetchRate < 0 {
		return fmt.Errorf("fetch rate must not be negative")
	}
	return nil
}
