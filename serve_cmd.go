package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srmooon/vcnarrator/internal/protocol"
	"github.com/srmooon/vcnarrator/internal/speech"
	"github.com/srmooon/vcnarrator/internal/ttsserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the speech helper protocol with the system speech engine",
	Long: paragraph(fmt.Sprintf("\n%s the helper's loopback protocol in-process, backed by a command line speech engine. While it runs, status and speak treat it like the SAPI5 helper.",
		keyword("Serve"))),
	Example: paragraph("vcnarrator serve\nvcnarrator serve --engine espeak --metrics-addr 127.0.0.1:9550"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := speech.Select(cfg.Serve.Engine)
		if err != nil {
			return err
		}
		logger := log.Default().With("engine", engine.Name())
		voice := speech.NewCommandVoice(engine, logger)

		metrics := ttsserver.NewMetrics("vcnarrator")
		srv, err := ttsserver.New(cmd.Context(), voice,
			ttsserver.WithLogger(logger),
			ttsserver.WithMetrics(metrics),
			ttsserver.WithShutdownHook(voice.Purge),
		)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if cfg.Serve.MetricsAddr != "" {
			go func() {
				if err := metrics.ListenAndServe(ctx, cfg.Serve.MetricsAddr); err != nil {
					logger.Error("Metrics listener failed", "addr", cfg.Serve.MetricsAddr, "error", err)
				}
			}()
			logger.Info("Metrics listening", "addr", cfg.Serve.MetricsAddr)
		}

		return srv.ListenAndServe(ctx, protocol.ListenAddr(cfg.Port))
	},
}

func init() {
	serveCmd.Flags().String("engine", "auto", "speech engine: auto, powershell, say, espeak")
	serveCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	_ = viper.BindPFlag("serve.engine", serveCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("serve.metrics_addr", serveCmd.Flags().Lookup("metrics-addr"))
}
