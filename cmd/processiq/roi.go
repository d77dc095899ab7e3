package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

var suggestionTypes = map[string]domain.SuggestionType{
	string(domain.SuggestionAutomation):           domain.SuggestionAutomation,
	string(domain.SuggestionProcessRedesign):      domain.SuggestionProcessRedesign,
	string(domain.SuggestionResourceReallocation): domain.SuggestionResourceReallocation,
	string(domain.SuggestionTraining):             domain.SuggestionTraining,
	string(domain.SuggestionToolUpgrade):          domain.SuggestionToolUpgrade,
	string(domain.SuggestionElimination):          domain.SuggestionElimination,
	string(domain.SuggestionParallelization):      domain.SuggestionParallelization,
}

func roiCmd() *cobra.Command {
	var (
		stepName       string
		suggestionType string
		cost           float64
		executions     int
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "roi <process.json>",
		Short: "Project annual savings for an improvement applied to one step",
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
			if stepName == "" {
				return fmt.Errorf("--step is required")
			}
			if _, ok := process.GetStep(stepName); !ok {
				return fmt.Errorf("step %q not found in process %q", stepName, process.Name)
			}
			kind, ok := suggestionTypes[suggestionType]
			if !ok {
				return fmt.Errorf("unknown suggestion type %q", suggestionType)
			}

			calculator := services.NewROICalculator(newCLILogger(settings))
			estimate := calculator.Estimate(process, services.EstimateRequest{
				StepName:           stepName,
				Type:               kind,
				ImplementationCost: cost,
				ExecutionsPerYear:  executions,
			})

			if asJSON {
				return printJSON(cmd.OutOrStdout(), estimate)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Annual savings for %q (%s):\n", stepName, kind)
			fmt.Fprintf(out, "  Pessimistic: $%.2f\n", estimate.PessimisticAnnualSavings)
			fmt.Fprintf(out, "  Likely:      $%.2f\n", estimate.LikelyAnnualSavings)
			fmt.Fprintf(out, "  Optimistic:  $%.2f\n", estimate.OptimisticAnnualSavings)
			fmt.Fprintf(out, "  Expected:    $%.2f\n", estimate.ExpectedValue())
			fmt.Fprintf(out, "  Confidence:  %.2f\n", estimate.Confidence)
			if estimate.PaybackMonths != nil {
				fmt.Fprintf(out, "  Payback:     %.1f months\n", *estimate.PaybackMonths)
			}
			if len(estimate.Assumptions) > 0 {
				fmt.Fprintln(out, "\nAssumptions:")
				for _, a := range estimate.Assumptions {
					fmt.Fprintf(out, "  - %s\n", a)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stepName, "step", "", "exact name of the step the improvement targets")
	cmd.Flags().StringVar(&suggestionType, "type", string(domain.SuggestionAutomation), "improvement type (automation, process_redesign, resource_reallocation, training, tool_upgrade, elimination, parallelization)")
	cmd.Flags().Float64Var(&cost, "cost", 0, "one-time implementation cost in dollars")
	cmd.Flags().IntVar(&executions, "executions", 0, "executions per year (0 assumes 1000)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the estimate as JSON")
	return cmd
}
