package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/transitlake/transitlake"
)

var (
	configPath string
	listenHost string
	listenPort int
)

func init() {
	realtimeCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	realtimeCmd.Flags().StringVarP(&listenHost, "host", "", "0.0.0.0", "HTTP listen host")
	realtimeCmd.Flags().IntVarP(&listenPort, "port", "p", 8080, "HTTP listen port")
}

var realtimeCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Run the realtime reconciliation server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := transitlake.LoadConfig(configPath)
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		reader, err := openStore(true)
		if err != nil {
			return fmt.Errorf("opening reader store: %w", err)
		}
		defer reader.Close()

		writer, err := openStore(false)
		if err != nil {
			return fmt.Errorf("opening writer store: %w", err)
		}
		defer writer.Close()

		server, err := transitlake.NewServer(cfg, reader, writer, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.Run(ctx, fmt.Sprintf("%s:%d", listenHost, listenPort))
	},
}
