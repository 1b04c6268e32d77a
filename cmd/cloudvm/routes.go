package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/jacksonzamorano/cloudvm/cloudvm-config"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table in match order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cloudvm_config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		app, err := buildApplication(context.Background(), cfg, true, logger)
		if err != nil {
			return err
		}
		defer app.Close()
		app.router.PrintTree(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
