package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

func scoreCmd() *cobra.Command {
	var (
		constraintsPath string
		profilePath     string
		asJSON          bool
	)
	cmd := &cobra.Command{
		Use:   "score <process.json>",
		Short: "Score how well a process definition supports analysis",
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
			scorer, err := services.NewConfidenceScorer(logger, services.DefaultScorerWeights, settings.App.Analysis.ConfidenceThreshold)
			if err != nil {
				return err
			}
			score := scorer.Score(process, constraints, profile)

			if asJSON {
				return printJSON(cmd.OutOrStdout(), score)
			}

			out := cmd.OutOrStdout()
			sufficiency := "insufficient"
			if score.Sufficient {
				sufficiency = "sufficient"
			}
			fmt.Fprintf(out, "Confidence: %.2f (%s), %s for analysis at threshold %.2f\n",
				score.Score, score.Level, sufficiency, score.Threshold)

			components := make([]string, 0, len(score.Breakdown))
			for name := range score.Breakdown {
				components = append(components, name)
			}
			sort.Strings(components)
			for _, name := range components {
				fmt.Fprintf(out, "  %-12s %.2f\n", name, score.Breakdown[name])
			}

			if len(score.DataGaps) > 0 {
				fmt.Fprintln(out, "\nData gaps:")
				for _, gap := range score.DataGaps {
					fmt.Fprintf(out, "  - %s\n", gap)
				}
			}
			if len(score.Suggestions) > 0 {
				fmt.Fprintln(out, "\nSuggestions:")
				for _, s := range score.Suggestions {
					fmt.Fprintf(out, "  - %s\n", s)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&constraintsPath, "constraints", "", "path to a constraints JSON file")
	cmd.Flags().StringVar(&profilePath, "profile", "", "path to a business profile JSON file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the score as JSON")
	return cmd
}
