package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# loopback port of the SAPI5 helper
port: 5550
# helper data directory (default: user data dir)
# data_dir: "~/.local/share/vcnarrator/VcNarratorTTS"
# user preferences (default: settings.yml next to this file)
# settings_file: "~/.config/vcnarrator/settings.yml"

# helper provisioning
helper:
  python_url: "https://www.python.org/ftp/python/3.11.9/python-3.11.9-embed-amd64.zip"
  getpip_url: "https://bootstrap.pypa.io/get-pip.py"
  bridge_package: "pywin32"
  max_redirects: 5
  download_timeout: "10m"
  command_timeout: "5m"

# readiness probing after the helper is started
readiness:
  ping_timeout: "1s"
  probe_interval: "300ms"
  probe_attempts: 5

log:
  # debug, info, warn or error
  level: "info"
  # empty logs to stderr, "auto" uses the user log dir
  file: ""

# built-in helper (vcnarrator serve) and system voice
serve:
  # speech engine: auto, powershell, say or espeak
  engine: "auto"
  # address for /metrics, empty disables it
  metrics_addr: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the vcnarrator config file",
	Long:    paragraph(fmt.Sprintf("\n%s the vcnarrator config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("vcnarrator config\nvcnarrator config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("vcnarrator", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
