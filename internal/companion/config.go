package companion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config defaults.
const (
	DefaultServerPort           = 7878
	DefaultLogLevel             = "info"
	DefaultBackendURL           = "https://api.mnemo.dev"
	DefaultReadyTimeoutSeconds  = 10
	DefaultShutdownGraceSeconds = 5
)

var validLogLevels = []string{"error", "warn", "info", "debug"}

// Config is the persisted companion configuration. Fields found in the file
// that mnemo does not know are kept and written back unchanged.
type Config struct {
	LocalServerPath      string   `json:"localServerPath,omitempty" yaml:"localServerPath,omitempty"`
	ServerPort           int      `json:"serverPort" yaml:"serverPort"`
	LogLevel             string   `json:"logLevel" yaml:"logLevel"`
	AutoStart            bool     `json:"autoStart" yaml:"autoStart"`
	BackendURL           string   `json:"backendUrl" yaml:"backendUrl"`
	ReadyTimeoutSeconds  int      `json:"readyTimeoutSeconds" yaml:"readyTimeoutSeconds"`
	ShutdownGraceSeconds int      `json:"shutdownGraceSeconds" yaml:"shutdownGraceSeconds"`
	ServerArgs           []string `json:"serverArgs,omitempty" yaml:"serverArgs,omitempty"`

	extra map[string]json.RawMessage
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		ServerPort:           DefaultServerPort,
		LogLevel:             DefaultLogLevel,
		AutoStart:            true,
		BackendURL:           DefaultBackendURL,
		ReadyTimeoutSeconds:  DefaultReadyTimeoutSeconds,
		ShutdownGraceSeconds: DefaultShutdownGraceSeconds,
	}
}

// ReadyTimeout returns the readiness deadline.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long a stop waits after SIGTERM before SIGKILL.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// configFields mirrors Config without its methods, so the JSON codecs below
// can use the default encoding.
type configFields Config

// UnmarshalJSON decodes known fields over the current values and keeps the rest.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := configFields(*c)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*c = Config(fields)

	for _, key := range knownJSONKeys() {
		delete(raw, key)
	}

	if len(raw) > 0 {
		c.extra = raw
	} else {
		c.extra = nil
	}

	return nil
}

// MarshalJSON encodes known fields plus any preserved unknown ones.
func (c Config) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(configFields(c))
	if err != nil {
		return nil, err
	}

	if len(c.extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(c.extra)+8)
	for key, value := range c.extra {
		merged[key] = value
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}

	for key, value := range fields {
		merged[key] = value
	}

	return json.Marshal(merged)
}

func knownJSONKeys() []string {
	return []string{
		"localServerPath", "serverPort", "logLevel", "autoStart", "backendUrl",
		"readyTimeoutSeconds", "shutdownGraceSeconds", "serverArgs",
	}
}

// normalize replaces out-of-range values with defaults and reports what it fixed.
func (c *Config) normalize() []string {
	var fixed []string

	def := DefaultConfig()

	if c.ReadyTimeoutSeconds <= 0 {
		c.ReadyTimeoutSeconds = def.ReadyTimeoutSeconds
		fixed = append(fixed, "readyTimeoutSeconds")
	}

	if c.ShutdownGraceSeconds <= 0 {
		c.ShutdownGraceSeconds = def.ShutdownGraceSeconds
		fixed = append(fixed, "shutdownGraceSeconds")
	}

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		c.ServerPort = def.ServerPort
		fixed = append(fixed, "serverPort")
	}

	if !isValidLogLevel(c.LogLevel) {
		c.LogLevel = def.LogLevel
		fixed = append(fixed, "logLevel")
	}

	return fixed
}

func isValidLogLevel(level string) bool {
	for _, valid := range validLogLevels {
		if strings.EqualFold(level, valid) {
			return true
		}
	}

	return false
}

// ConfigPatch holds the fields to change in UpdateConfig. Nil fields are left alone.
type ConfigPatch struct {
	LocalServerPath      *string
	ServerPort           *int
	LogLevel             *string
	AutoStart            *bool
	BackendURL           *string
	ReadyTimeoutSeconds  *int
	ShutdownGraceSeconds *int
	ServerArgs           *[]string
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool {
	return p.LocalServerPath == nil && p.ServerPort == nil && p.LogLevel == nil &&
		p.AutoStart == nil && p.BackendURL == nil && p.ReadyTimeoutSeconds == nil &&
		p.ShutdownGraceSeconds == nil && p.ServerArgs == nil
}

func (p ConfigPatch) validate() error {
	if p.ServerPort != nil && (*p.ServerPort <= 0 || *p.ServerPort > 65535) {
		return fmt.Errorf("server port %d out of range 1-65535", *p.ServerPort)
	}

	if p.LogLevel != nil && !isValidLogLevel(*p.LogLevel) {
		return fmt.Errorf("log level %q is not one of %s", *p.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if p.ReadyTimeoutSeconds != nil && *p.ReadyTimeoutSeconds <= 0 {
		return fmt.Errorf("ready timeout must be positive")
	}

	if p.ShutdownGraceSeconds != nil && *p.ShutdownGraceSeconds <= 0 {
		return fmt.Errorf("shutdown grace must be positive")
	}

	return nil
}

func (p ConfigPatch) apply(c *Config) {
	if p.LocalServerPath != nil {
		c.LocalServerPath = *p.LocalServerPath
	}

	if p.ServerPort != nil {
		c.ServerPort = *p.ServerPort
	}

	if p.LogLevel != nil {
		c.LogLevel = strings.ToLower(*p.LogLevel)
	}

	if p.AutoStart != nil {
		c.AutoStart = *p.AutoStart
	}

	if p.BackendURL != nil {
		c.BackendURL = *p.BackendURL
	}

	if p.ReadyTimeoutSeconds != nil {
		c.ReadyTimeoutSeconds = *p.ReadyTimeoutSeconds
	}

	if p.ShutdownGraceSeconds != nil {
		c.ShutdownGraceSeconds = *p.ShutdownGraceSeconds
	}

	if p.ServerArgs != nil {
		c.ServerArgs = append([]string(nil), (*p.ServerArgs)...)
	}
}

// loadConfig reads path. A missing file yields defaults and no error.
// On any other failure the defaults are returned together with the error.
func loadConfig(path string) (Config, []string, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil, nil
		}

		return DefaultConfig(), nil, fmt.Errorf("read companion config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), nil, fmt.Errorf("parse companion config %s: %w", path, err)
	}

	fixed := cfg.normalize()

	return cfg, fixed, nil
}

// saveConfig writes cfg to path through a temp file in the same directory
// and a rename, so readers never see a partial document.
func saveConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal companion config: %w", err)
	}

	return writeFileAtomic(path, append(data, '\n'))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmp := tmpFile.Name()
	if _, writeErr := tmpFile.Write(data); writeErr != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmp)

		return fmt.Errorf("write temp file: %w", writeErr)
	}

	if closeErr := tmpFile.Close(); closeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		// Windows refuses to rename over an existing file.
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			_ = os.Remove(tmp)
			return fmt.Errorf("remove existing %s: %w", path, removeErr)
		}

		if retryErr := os.Rename(tmp, path); retryErr != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("replace %s: %w", path, retryErr)
		}
	}

	return nil
}
