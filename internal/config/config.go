// Package config holds the runtime configuration of the narrator and its
// speech helper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
)

// AppName is used for config, data and log directories.
const AppName = "vcnarrator"

// DataDirName is the helper's private directory under the user data dir.
const DataDirName = "VcNarratorTTS"

// Config contains all runtime configuration options.
type Config struct {
	// DataDir holds the helper environment. Empty means the user data dir.
	DataDir string `yaml:"data_dir" env:"VCNARRATOR_DATA_DIR"`
	// Port is the loopback port of the helper.
	Port int `yaml:"port" env:"VCNARRATOR_PORT"`
	// SettingsFile stores user preferences. Empty means the config dir.
	SettingsFile string `yaml:"settings_file" env:"VCNARRATOR_SETTINGS_FILE"`

	Helper    HelperConfig    `yaml:"helper"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Log       LogConfig       `yaml:"log"`
	Serve     ServeConfig     `yaml:"serve"`
}

// HelperConfig controls provisioning and launching of the helper.
type HelperConfig struct {
	PythonURL       string        `yaml:"python_url" env:"VCNARRATOR_HELPER_PYTHON_URL"`
	GetPipURL       string        `yaml:"getpip_url" env:"VCNARRATOR_HELPER_GETPIP_URL"`
	BridgePackage   string        `yaml:"bridge_package" env:"VCNARRATOR_HELPER_BRIDGE_PACKAGE"`
	MaxRedirects    int           `yaml:"max_redirects" env:"VCNARRATOR_HELPER_MAX_REDIRECTS"`
	DownloadTimeout time.Duration `yaml:"download_timeout" env:"VCNARRATOR_HELPER_DOWNLOAD_TIMEOUT"`
	CommandTimeout  time.Duration `yaml:"command_timeout" env:"VCNARRATOR_HELPER_COMMAND_TIMEOUT"`
}

// ReadinessConfig controls how readiness is probed after a start.
type ReadinessConfig struct {
	PingTimeout   time.Duration `yaml:"ping_timeout" env:"VCNARRATOR_READINESS_PING_TIMEOUT"`
	ProbeInterval time.Duration `yaml:"probe_interval" env:"VCNARRATOR_READINESS_PROBE_INTERVAL"`
	ProbeAttempts int           `yaml:"probe_attempts" env:"VCNARRATOR_READINESS_PROBE_ATTEMPTS"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" env:"VCNARRATOR_LOG_LEVEL"`
	File  string `yaml:"file" env:"VCNARRATOR_LOG_FILE"`
}

// ServeConfig controls the built-in helper server.
type ServeConfig struct {
	// Engine selects the speech command: auto, powershell, say, espeak.
	Engine      string `yaml:"engine" env:"VCNARRATOR_SERVE_ENGINE"`
	MetricsAddr string `yaml:"metrics_addr" env:"VCNARRATOR_SERVE_METRICS_ADDR"`
}

// Default returns a Config with the stock values.
func Default() Config {
	return Config{
		Port:      5550,
		Helper:    DefaultHelperConfig(),
		Readiness: DefaultReadinessConfig(),
		Log:       LogConfig{Level: "info"},
		Serve:     ServeConfig{Engine: "auto"},
	}
}

// DefaultHelperConfig returns the stock provisioning values.
func DefaultHelperConfig() HelperConfig {
	return HelperConfig{
		PythonURL:       "https://www.python.org/ftp/python/3.11.9/python-3.11.9-embed-amd64.zip",
		GetPipURL:       "https://bootstrap.pypa.io/get-pip.py",
		BridgePackage:   "pywin32",
		MaxRedirects:    5,
		DownloadTimeout: 10 * time.Minute,
		CommandTimeout:  5 * time.Minute,
	}
}

// DefaultReadinessConfig returns the stock probe values.
func DefaultReadinessConfig() ReadinessConfig {
	return ReadinessConfig{
		PingTimeout:   time.Second,
		ProbeInterval: 300 * time.Millisecond,
		ProbeAttempts: 5,
	}
}

var validEngines = []string{"auto", "powershell", "say", "espeak"}

var validLevels = []string{"debug", "info", "warn", "error"}

// Validate checks if the configuration is valid and normalizes case.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	for _, raw := range []string{c.Helper.PythonURL, c.Helper.GetPipURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid download url %q", raw)
		}
	}
	if strings.TrimSpace(c.Helper.BridgePackage) == "" {
		return fmt.Errorf("bridge package must not be empty")
	}
	if c.Helper.MaxRedirects < 0 || c.Helper.MaxRedirects > 20 {
		return fmt.Errorf("max redirects must be between 0 and 20, got %d", c.Helper.MaxRedirects)
	}
	if c.Helper.DownloadTimeout <= 0 || c.Helper.CommandTimeout <= 0 {
		return fmt.Errorf("helper timeouts must be positive")
	}

	if c.Readiness.PingTimeout <= 0 {
		return fmt.Errorf("ping timeout must be positive, got %v", c.Readiness.PingTimeout)
	}
	if c.Readiness.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %v", c.Readiness.ProbeInterval)
	}
	if c.Readiness.ProbeAttempts < 1 || c.Readiness.ProbeAttempts > 50 {
		return fmt.Errorf("probe attempts must be between 1 and 50, got %d", c.Readiness.ProbeAttempts)
	}

	c.Serve.Engine = strings.ToLower(strings.TrimSpace(c.Serve.Engine))
	if !contains(validEngines, c.Serve.Engine) {
		return fmt.Errorf("invalid speech engine '%s': must be one of %v", c.Serve.Engine, validEngines)
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if !contains(validLevels, c.Log.Level) {
		return fmt.Errorf("invalid log level '%s': must be one of %v", c.Log.Level, validLevels)
	}

	return nil
}

// ResolveDataDir returns the helper data directory with ~ expanded.
func (c Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		p, err := homedir.Expand(c.DataDir)
		if err != nil {
			return "", fmt.Errorf("unable to expand data dir: %w", err)
		}
		return p, nil
	}
	p, err := gap.NewScope(gap.User, AppName).DataPath(DataDirName)
	if err != nil {
		return "", fmt.Errorf("unable to resolve data dir: %w", err)
	}
	return p, nil
}

// ResolveSettingsFile returns the settings file path with ~ expanded.
func (c Config) ResolveSettingsFile() (string, error) {
	if c.SettingsFile != "" {
		p, err := homedir.Expand(c.SettingsFile)
		if err != nil {
			return "", fmt.Errorf("unable to expand settings file: %w", err)
		}
		return p, nil
	}
	p, err := gap.NewScope(gap.User, AppName).ConfigPath("settings.yml")
	if err != nil {
		return "", fmt.Errorf("unable to resolve settings file: %w", err)
	}
	return p, nil
}

// ResolveLogFile returns the log file path, or "" when logging to stderr.
func (c Config) ResolveLogFile() (string, error) {
	switch c.Log.File {
	case "":
		return "", nil
	case "auto":
		return gap.NewScope(gap.User, AppName).LogPath(AppName + ".log")
	default:
		return homedir.Expand(c.Log.File)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
