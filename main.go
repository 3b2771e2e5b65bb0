// Package main provides the entry point for the vcnarrator CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srmooon/vcnarrator/internal/app"
	"github.com/srmooon/vcnarrator/internal/config"
	"github.com/srmooon/vcnarrator/internal/readiness"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cfg        config.Config
	closeLog   = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "vcnarrator",
		Short: "Read voice channel activity aloud, with an optional SAPI5 backend",
		Long: paragraph(
			fmt.Sprintf("\nRead voice channel activity %s, using the system voice or a local %s helper.",
				keyword("aloud"), keyword("SAPI5")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd.Flags().Changed("config"))
		},
	}
)

// loadConfig reads the explicit config file if one was given, then resolves
// the Config and sets up logging.
func loadConfig(explicit bool) error {
	if explicit && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		// a missing file is created by the config command
		if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	c, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = c

	closer, err := setupLog(cfg)
	if err != nil {
		return err
	}
	closeLog = closer
	log.Debug("Configuration loaded", "port", cfg.Port, "engine", cfg.Serve.Engine)
	return nil
}

// newApp wires the components for the loaded configuration. Notices are
// printed for the user.
func newApp() (*app.App, error) {
	return app.New(cfg,
		app.WithLogger(log.Default()),
		app.WithNotifier(func(n readiness.Notice) {
			fmt.Fprintln(os.Stderr, keyword(n.Message))
		}),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "config file")
	rootCmd.PersistentFlags().Int("port", config.Default().Port, "loopback port of the SAPI5 helper")
	rootCmd.PersistentFlags().String("data-dir", "", "helper data directory (default: user data dir)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", `log file path, or "auto" for the user log dir`)

	// Config bindings
	_ = viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(
		setupCmd, startCmd, stopCmd, statusCmd, uninstallCmd, providerCmd,
		voicesCmd, speakCmd, serveCmd, narrateCmd,
		configCmd, manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("VCNARRATOR_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	// created on demand by the config command
	configFile = filepath.Join(dirs[0], config.AppName+".yml")
}
