package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// SetDefaults registers the stock values on v so they show up in
// viper.AllSettings and can be overridden by file, env or flags.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("port", d.Port)
	v.SetDefault("settings_file", d.SettingsFile)

	v.SetDefault("helper.python_url", d.Helper.PythonURL)
	v.SetDefault("helper.getpip_url", d.Helper.GetPipURL)
	v.SetDefault("helper.bridge_package", d.Helper.BridgePackage)
	v.SetDefault("helper.max_redirects", d.Helper.MaxRedirects)
	v.SetDefault("helper.download_timeout", d.Helper.DownloadTimeout)
	v.SetDefault("helper.command_timeout", d.Helper.CommandTimeout)

	v.SetDefault("readiness.ping_timeout", d.Readiness.PingTimeout)
	v.SetDefault("readiness.probe_interval", d.Readiness.ProbeInterval)
	v.SetDefault("readiness.probe_attempts", d.Readiness.ProbeAttempts)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("serve.engine", d.Serve.Engine)
	v.SetDefault("serve.metrics_addr", d.Serve.MetricsAddr)
}

// LoadFromViper builds a Config from v, then applies VCNARRATOR_* environment
// overrides and validates the result.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := Default()

	if v.IsSet("data_dir") {
		cfg.DataDir = v.GetString("data_dir")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("settings_file") {
		cfg.SettingsFile = v.GetString("settings_file")
	}

	cfg.Helper = loadHelperConfig(v)
	cfg.Readiness = loadReadinessConfig(v)

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.file") {
		cfg.Log.File = v.GetString("log.file")
	}
	if v.IsSet("serve.engine") {
		cfg.Serve.Engine = v.GetString("serve.engine")
	}
	if v.IsSet("serve.metrics_addr") {
		cfg.Serve.MetricsAddr = v.GetString("serve.metrics_addr")
	}

	// Only variables that are present override; no envDefault tags are used.
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadHelperConfig(v *viper.Viper) HelperConfig {
	cfg := DefaultHelperConfig()

	if v.IsSet("helper.python_url") {
		cfg.PythonURL = v.GetString("helper.python_url")
	}
	if v.IsSet("helper.getpip_url") {
		cfg.GetPipURL = v.GetString("helper.getpip_url")
	}
	if v.IsSet("helper.bridge_package") {
		cfg.BridgePackage = v.GetString("helper.bridge_package")
	}
	if v.IsSet("helper.max_redirects") {
		cfg.MaxRedirects = v.GetInt("helper.max_redirects")
	}
	if v.IsSet("helper.download_timeout") {
		cfg.DownloadTimeout = v.GetDuration("helper.download_timeout")
	}
	if v.IsSet("helper.command_timeout") {
		cfg.CommandTimeout = v.GetDuration("helper.command_timeout")
	}

	return cfg
}

func loadReadinessConfig(v *viper.Viper) ReadinessConfig {
	cfg := DefaultReadinessConfig()

	if v.IsSet("readiness.ping_timeout") {
		cfg.PingTimeout = v.GetDuration("readiness.ping_timeout")
	}
	if v.IsSet("readiness.probe_interval") {
		cfg.ProbeInterval = v.GetDuration("readiness.probe_interval")
	}
	if v.IsSet("readiness.probe_attempts") {
		cfg.ProbeAttempts = v.GetInt("readiness.probe_attempts")
	}

	return cfg
}
