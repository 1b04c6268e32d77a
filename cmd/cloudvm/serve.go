package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacksonzamorano/cloudvm/cloudvm-config"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	host        string
	port        int
	workers     int
	memoryStore bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the API server with the specified configuration.

The server stops gracefully on SIGINT or SIGTERM: it stops accepting, finishes every
queued request, then exits.

Examples:
  # Start with the in-memory store
  cloudvm serve --memory-store

  # Start with a config file and more workers
  cloudvm serve --config cloudvm.yaml --workers 32`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "override listen host")
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", -1, "override listen port")
	serveCmd.Flags().IntVarP(&serveFlags.workers, "workers", "w", 0, "override worker count")
	serveCmd.Flags().BoolVar(&serveFlags.memoryStore, "memory-store", false, "keep data in memory instead of Postgres")
}

// loadConfig loads the configuration file and applies the serve flag overrides. Outside of
// --memory-store runs a signing key is required.
func loadConfig() (*cloudvm_config.Config, error) {
	cfg, err := cloudvm_config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if serveFlags.host != "" {
		cfg.Server.Host = serveFlags.host
	}
	if serveFlags.port >= 0 {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.workers > 0 {
		cfg.Server.Workers = serveFlags.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !serveFlags.memoryStore {
		if err := cfg.ValidateSecrets(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cloudvm_config.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg, serveFlags.memoryStore, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("starting cloudvm", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port,
		"workers", cfg.Server.Workers)
	if err := app.server.Run(ctx); err != nil {
		return err
	}
	logger.Info("cloudvm stopped")
	return nil
}
