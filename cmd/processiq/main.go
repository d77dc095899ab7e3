// Command processiq analyzes business processes from the terminal. The
// deterministic subcommands (score, metrics, roi) run fully offline;
// analyze talks to the configured model provider and serve runs the
// HTTP kernel.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "processiq",
		Short:         "Analyze business processes for bottlenecks, costs and improvements",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		analyzeCmd(),
		scoreCmd(),
		metricsCmd(),
		roiCmd(),
		serveCmd(),
	)
	return root
}

// newCLILogger logs to stderr so stdout stays clean for command output.
func newCLILogger(settings *config.Settings) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: settings.LogLevel,
	}))
}

func decodeJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadProcess(path string) (*domain.ProcessData, error) {
	var process domain.ProcessData
	if err := decodeJSONFile(path, &process); err != nil {
		return nil, err
	}
	if err := process.Validate(); err != nil {
		return nil, fmt.Errorf("invalid process in %s: %w", path, err)
	}
	return &process, nil
}

func loadConstraints(path string) (*domain.Constraints, error) {
	if path == "" {
		return nil, nil
	}
	var constraints domain.Constraints
	if err := decodeJSONFile(path, &constraints); err != nil {
		return nil, err
	}
	if err := constraints.Validate(); err != nil {
		return nil, fmt.Errorf("invalid constraints in %s: %w", path, err)
	}
	return &constraints, nil
}

func loadProfile(path string) (*domain.BusinessProfile, error) {
	if path == "" {
		return nil, nil
	}
	var profile domain.BusinessProfile
	if err := decodeJSONFile(path, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
