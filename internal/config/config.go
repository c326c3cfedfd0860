// Package config provides configuration management for livemirror.
//
// Configuration is loaded from four sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (LIVEMIRROR_ prefix)
//  3. Config file (.livemirror.yaml)
//  4. Built-in defaults
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/livemirror/internal/protocol"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Supported fingerprint algorithms.
const (
	HashSHA256 = "sha256"
	HashBLAKE3 = "blake3"
)

// Defaults for the watch pipeline.
const (
	DefaultSrc      = "./src/"
	DefaultDest     = "./build/"
	DefaultPort     = 9996
	DefaultDebounce = 100 * time.Millisecond
)

// Config represents the global configuration for livemirror.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel" yaml:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat" yaml:"log-format"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor" yaml:"no-color"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet"`

	// Src is the watched source tree.
	Src string `mapstructure:"src" json:"src" yaml:"src"`

	// Dest is the mirror tree.
	Dest string `mapstructure:"dest" json:"dest" yaml:"dest"`

	// Mirror copies every live change into Dest before notifying.
	Mirror bool `mapstructure:"mirror" json:"mirror" yaml:"mirror"`

	// Host is the channel bind address; empty binds all interfaces.
	Host string `mapstructure:"host" json:"host" yaml:"host"`

	// Port is the channel port.
	Port int `mapstructure:"port" json:"port" yaml:"port"`

	// Debounce is the coalescing quiet period.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`

	// Strategy is attached to every notification.
	Strategy string `mapstructure:"strategy" json:"strategy" yaml:"strategy"`

	// Hash selects the fingerprint algorithm: sha256 or blake3.
	Hash string `mapstructure:"hash" json:"hash" yaml:"hash"`

	// Ignore lists reserved path names that are never mirrored or watched.
	Ignore []string `mapstructure:"ignore" json:"ignore" yaml:"ignore"`

	// Workers bounds reconciliation parallelism; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers" json:"workers" yaml:"workers"`

	// Serve also serves the page files over HTTP on the channel port.
	Serve bool `mapstructure:"serve" json:"serve" yaml:"serve"`

	// AllowedHosts gates the client; entries with "/" are CIDR prefixes.
	AllowedHosts []string `mapstructure:"allowed-hosts" json:"allowedHosts" yaml:"allowed-hosts"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-" yaml:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:     LogLevelInfo,
		LogFormat:    LogFormatText,
		Src:          DefaultSrc,
		Dest:         DefaultDest,
		Port:         DefaultPort,
		Debounce:     DefaultDebounce,
		Strategy:     string(protocol.StrategyHashChange),
		Hash:         HashSHA256,
		Ignore:       []string{".git", "node_modules"},
		AllowedHosts: []string{"localhost", "127.0.0.1", "192.168.2.0/24", "172.0.0.0/8"},
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	switch c.Hash {
	case HashSHA256, HashBLAKE3:
		// valid
	default:
		return fmt.Errorf("invalid hash %q: must be one of sha256, blake3", c.Hash)
	}

	if _, err := protocol.ParseStrategy(c.Strategy); err != nil {
		return err
	}

	if strings.TrimSpace(c.Src) == "" {
		return errors.New("src must not be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("invalid debounce %s: must not be negative", c.Debounce)
	}

	if c.Workers < 0 {
		return fmt.Errorf("invalid workers %d: must not be negative", c.Workers)
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// NotificationStrategy returns the parsed Strategy. Validate guarantees it
// parses.
func (c *Config) NotificationStrategy() protocol.Strategy {
	s, _ := protocol.ParseStrategy(c.Strategy)
	return s
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("no-color", d.NoColor)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("src", d.Src)
	v.SetDefault("dest", d.Dest)
	v.SetDefault("mirror", d.Mirror)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("hash", d.Hash)
	v.SetDefault("ignore", d.Ignore)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("serve", d.Serve)
	v.SetDefault("allowed-hosts", d.AllowedHosts)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("LIVEMIRROR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".livemirror")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "livemirror"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags binds the command's own flags and the persistent flags of every
// ancestor. Only flags whose names match config keys have any effect.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
