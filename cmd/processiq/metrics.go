package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

func metricsCmd() *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "metrics <process.json>",
		Short: "Compute deterministic metrics for a process definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			process, err := loadProcess(args[0])
			if err != nil {
				return err
			}

			engine := services.NewMetricsEngine(newCLILogger(settings))
			metrics := engine.Compute(process)

			if markdown {
				fmt.Fprint(cmd.OutOrStdout(), services.FormatForModel(metrics))
				return nil
			}
			return printJSON(cmd.OutOrStdout(), metrics)
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "print the model-facing markdown rendering instead of JSON")
	return cmd
}
