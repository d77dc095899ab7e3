package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/SkybrushThriftwood/processIQ/internal/adapters/providers"
	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

func analyzeCmd() *cobra.Command {
	var (
		constraintsPath string
		profilePath     string
		mode            string
		provider        string
		maxCycles       int
		asJSON          bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <process.json>",
		Short: "Run a full analysis of a process definition",
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
			constraints, err := loadConstraints(constraintsPath)
			if err != nil {
				return err
			}
			profile, err := loadProfile(profilePath)
			if err != nil {
				return err
			}

			logger := newCLILogger(settings)
			analyses, err := buildAnalysisService(logger, settings)
			if err != nil {
				return err
			}

			req := services.AnalysisRequest{
				Process:     process,
				Constraints: constraints,
				Profile:     profile,
				UserID:      "cli",
				Mode:        mode,
				Provider:    provider,
			}
			if maxCycles > 0 {
				req.MaxCycles = &maxCycles
			}

			report, err := analyses.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.IsError {
					return fmt.Errorf("analysis failed (%s)", report.ErrorCode)
				}
				return nil
			}
			if report.IsError {
				return errors.New(report.Message)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&constraintsPath, "constraints", "", "path to a constraints JSON file")
	cmd.Flags().StringVar(&profilePath, "profile", "", "path to a business profile JSON file")
	cmd.Flags().StringVar(&mode, "mode", "", "analysis mode: cost_optimized, balanced or deep_analysis")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider override: openai, anthropic or ollama")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "cap on investigation cycles (1-10)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

// buildAnalysisService wires a one-shot analysis stack. State lives in
// memory only; persistent history belongs to the kernel.
func buildAnalysisService(logger *slog.Logger, settings *config.Settings) (*services.AnalysisService, error) {
	presets, err := config.LoadPresets(settings.PresetsFile)
	if err != nil {
		return nil, fmt.Errorf("load model presets: %w", err)
	}
	cfg := &settings.App
	gateway := providers.NewGateway(logger, cfg, presets, settings.RequestTimeout)

	scorer, err := services.NewConfidenceScorer(logger, services.DefaultScorerWeights, cfg.Analysis.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	engine := services.NewMetricsEngine(logger)
	checkpoints := services.NewMemoryCheckpointStore()
	orchestrator := services.NewOrchestrator(logger, gateway, scorer, engine, checkpoints, cfg.Analysis)
	return services.NewAnalysisService(logger, orchestrator, scorer, gateway, checkpoints, nil, nil), nil
}

func printReport(w io.Writer, report *services.AnalysisReport) {
	fmt.Fprintln(w, report.Message)

	if insight := report.Insight; insight != nil {
		if insight.ProcessSummary != "" {
			fmt.Fprintf(w, "\n%s\n", insight.ProcessSummary)
		}
		if len(insight.Issues) > 0 {
			fmt.Fprintln(w, "\nIssues:")
			for _, issue := range insight.Issues {
				fmt.Fprintf(w, "  [%s] %s\n", issue.Severity, issue.Title)
				if issue.RootCauseHypothesis != "" {
					fmt.Fprintf(w, "        %s\n", issue.RootCauseHypothesis)
				}
			}
		}
		if len(insight.Recommendations) > 0 {
			fmt.Fprintln(w, "\nRecommendations:")
			for _, rec := range insight.Recommendations {
				fmt.Fprintf(w, "  - %s\n", rec.Title)
				if rec.Description != "" {
					fmt.Fprintf(w, "    %s\n", rec.Description)
				}
			}
		}
		if len(insight.InvestigationFindings) > 0 {
			fmt.Fprintln(w, "\nInvestigation findings:")
			for _, finding := range insight.InvestigationFindings {
				fmt.Fprintf(w, "  - %s\n", finding)
			}
		}
	}

	if report.NeedsInput && len(report.SuggestedQuestions) > 0 {
		fmt.Fprintln(w, "\nTo improve the analysis, answer:")
		for _, q := range report.SuggestedQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
	if report.ThreadID != "" {
		fmt.Fprintf(w, "\nThread: %s\n", report.ThreadID)
	}
}
