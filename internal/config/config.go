// Package config handles mnemo CLI configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (MNEMO_*)
//  2. Config file (<config root>/config.json)
//  3. Built-in defaults
//
// The companion server keeps its own document (mcp.json), owned by
// internal/companion. This package never reads or writes it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/mnemo-dev/mnemo/internal/paths"
)

const (
	// DefaultAPIURL is the default memory backend endpoint.
	DefaultAPIURL = "https://api.mnemo.dev"
	// DefaultOutputFormat is the default output rendering.
	DefaultOutputFormat = "text"
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"
	// DefaultAutoConnect controls whether commands connect to the companion on demand.
	DefaultAutoConnect = true
	// DefaultInputMode selects the inline multi-line editor.
	DefaultInputMode = "inline"
)

type keyKind int

const (
	kindString keyKind = iota
	kindBool
)

type keySpec struct {
	kind        keyKind
	def         any
	description string
}

var knownKeys = map[string]keySpec{
	"api.url":          {kind: kindString, def: DefaultAPIURL, description: "Memory backend URL"},
	"output.format":    {kind: kindString, def: DefaultOutputFormat, description: "Output format (text, json, yaml)"},
	"log.level":        {kind: kindString, def: DefaultLogLevel, description: "Log level (error, warn, info, debug)"},
	"mcp.auto_connect": {kind: kindBool, def: DefaultAutoConnect, description: "Connect to the companion server on demand"},
	"input.mode":       {kind: kindString, def: DefaultInputMode, description: "Text input mode"},
}

// Config holds the mnemo CLI configuration.
type Config struct {
	v    *viper.Viper
	path string
}

// KnownKeys returns the sorted list of recognized configuration keys.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for key := range knownKeys {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Describe returns the description and default for a known key.
func Describe(key string) (description string, def any, ok bool) {
	spec, ok := knownKeys[key]
	if !ok {
		return "", nil, false
	}

	return spec.description, spec.def, true
}

// IsKnown reports whether key is a recognized configuration key.
func IsKnown(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// Load reads configuration from all sources at the default location.
func Load() *Config {
	path, err := paths.ConfigFile()
	if err != nil {
		slog.Default().Warn("resolve config path failed", slog.String("error", err.Error()))
	}

	return LoadFile(path)
}

// LoadFile reads configuration from path plus the environment.
// An empty path loads defaults and environment only.
func LoadFile(path string) *Config {
	v := newViper()

	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		// Missing file means defaults; anything else is worth a warning.
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			slog.Default().Warn("read config file failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	return &Config{v: v, path: path}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")

	for key, spec := range knownKeys {
		v.SetDefault(key, spec.def)
	}

	return v
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// Path returns the file this configuration persists to.
func (c *Config) Path() string {
	return c.path
}

// Exists reports whether the configuration file is present on disk.
func (c *Config) Exists() bool {
	if c.path == "" {
		return false
	}

	_, err := os.Stat(c.path)

	return err == nil
}

// Get returns a configuration value.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetBool returns a configuration value as bool.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// Set validates value for key and persists it.
func (c *Config) Set(key, value string) error {
	spec, ok := knownKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	var typed any = value

	if spec.kind == kindBool {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false: %w", key, err)
		}

		typed = b
	}

	if c.path == "" {
		return fmt.Errorf("no config file location")
	}

	// The file is rewritten from its own contents, so environment overrides
	// never leak into it.
	file := newViper()
	file.SetConfigFile(c.path)

	if err := file.ReadInConfig(); err != nil && !isNotExist(err) {
		return fmt.Errorf("read %s: %w", c.path, err)
	}

	file.Set(key, typed)

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := file.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("write %s: %w", c.path, err)
	}

	c.v.Set(key, typed)

	return nil
}

// WriteDefaults writes the default configuration only when no file exists yet.
// It reports whether a file was written. An existing file is never modified.
func (c *Config) WriteDefaults() (bool, error) {
	if c.path == "" {
		return false, fmt.Errorf("no config file location")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}

	// A fresh instance keeps environment overrides out of the file.
	defaults := newViper()

	err := defaults.SafeWriteConfigAs(c.path)
	if err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return false, nil
		}

		return false, fmt.Errorf("write default config: %w", err)
	}

	if err := c.v.ReadInConfig(); err != nil && !isNotExist(err) {
		return true, fmt.Errorf("reload config: %w", err)
	}

	return true, nil
}

// All returns all configuration as a flat key/value map.
func (c *Config) All() map[string]any {
	settings := make(map[string]any, len(knownKeys))
	for _, key := range c.v.AllKeys() {
		settings[key] = c.v.Get(key)
	}

	return settings
}

// APIURL returns the configured memory backend URL.
func (c *Config) APIURL() string {
	return c.GetString("api.url")
}

// OutputFormat returns the configured output format.
func (c *Config) OutputFormat() string {
	return c.GetString("output.format")
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string {
	return c.GetString("log.level")
}
