package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// NewInvestigationTools builds the fixed read-only tool set for one
// analysis run. Tools consult the run state at call time and never mutate
// it. Metrics come cached from the initial analysis; a run resumed without
// them recomputes from the process data on first use.
func NewInvestigationTools(logger *slog.Logger, engine *MetricsEngine, state *domain.AgentState, cached *domain.ProcessMetrics) *domain.ToolRegistry {
	metricsFor := func() *domain.ProcessMetrics {
		if cached != nil {
			return cached
		}
		logger.Debug("process metrics not cached, recomputing")
		cached = engine.Compute(state.Process)
		return cached
	}

	registry := domain.NewToolRegistry()
	for _, tool := range []*domain.ToolDef{
		newDependencyImpactTool(logger, metricsFor),
		newRootCauseTool(logger, metricsFor, state),
		newFeasibilityTool(logger, state),
	} {
		if err := registry.Register(tool); err != nil {
			logger.Error("failed to register investigation tool", "tool", tool.Name, "error", err)
		}
	}
	return registry
}

// newDependencyImpactTool reports how one step cascades into the work that
// depends on it.
func newDependencyImpactTool(logger *slog.Logger, metricsFor func() *domain.ProcessMetrics) *domain.ToolDef {
	return &domain.ToolDef{
		Name:        "analyze_dependency_impact",
		Description: "Analyze how a specific process step impacts downstream work. Use this when a step appears problematic and you need to understand the cascade effect on everything that depends on it.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"step_name": map[string]interface{}{
					"type":        "string",
					"description": "The exact name of the step to investigate.",
				},
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The specific aspect of dependency impact to analyze.",
				},
			},
			"required": []string{"step_name", "question"},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				StepName string `json:"step_name"`
				Question string `json:"question"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			logger.Info("tool called", "tool", "analyze_dependency_impact", "step", in.StepName)

			metrics := metricsFor()
			sm, ok := metrics.GetStepMetrics(in.StepName)
			if !ok {
				return fmt.Sprintf("Step '%s' not found in process data.", in.StepName), nil
			}

			lines := []string{
				fmt.Sprintf("Step '%s':", in.StepName),
				fmt.Sprintf("  Time: %.1fh (%.0f%% of total)", sm.TimeHours, sm.TimePct),
				fmt.Sprintf("  Cost: $%.0f (%.0f%% of total)", sm.Cost, sm.CostPct),
				fmt.Sprintf("  Error rate: %.0f%%", sm.ErrorRatePct),
				fmt.Sprintf("  Resources: %d", sm.Resources),
				fmt.Sprintf("  Type: %s", sm.StepType),
				fmt.Sprintf("  Downstream steps blocked by this: %d", sm.DownstreamCount),
				fmt.Sprintf("  Upstream dependencies: %d", sm.UpstreamCount),
				fmt.Sprintf("  Question being investigated: %s", in.Question),
			}
			if sm.IsLongest {
				lines = append(lines, "  Flag: longest step in process")
			}
			if sm.IsHighestError {
				lines = append(lines, "  Flag: highest error rate in process")
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

// newRootCauseTool checks a hypothesis against the data of the steps an
// issue touches, falling back to process-wide patterns when the issue
// names no steps.
func newRootCauseTool(logger *slog.Logger, metricsFor func() *domain.ProcessMetrics, state *domain.AgentState) *domain.ToolDef {
	return &domain.ToolDef{
		Name:        "validate_root_cause",
		Description: "Test whether a root cause hypothesis is consistent with the process data. Use this before committing to an explanation for a pattern or issue.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"issue_title": map[string]interface{}{
					"type":        "string",
					"description": "The issue you are investigating (from your initial analysis).",
				},
				"hypothesis": map[string]interface{}{
					"type":        "string",
					"description": "Your proposed explanation for why this issue exists.",
				},
			},
			"required": []string{"issue_title", "hypothesis"},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				IssueTitle string `json:"issue_title"`
				Hypothesis string `json:"hypothesis"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			logger.Info("tool called", "tool", "validate_root_cause", "issue", in.IssueTitle)

			metrics := metricsFor()

			var affected []string
			if state.Insight != nil {
				for i := range state.Insight.Issues {
					if strings.EqualFold(state.Insight.Issues[i].Title, in.IssueTitle) {
						affected = state.Insight.Issues[i].AffectedSteps
						break
					}
				}
			}

			lines := []string{
				"Hypothesis: " + in.Hypothesis,
				"Issue: " + in.IssueTitle,
				"",
				"Affected step data:",
			}

			if len(affected) > 0 {
				for _, name := range affected {
					sm, ok := metrics.GetStepMetrics(name)
					if !ok {
						continue
					}
					lines = append(lines, fmt.Sprintf("  %s: %.1fh, %.0f%% errors, type=%s, downstream=%d",
						name, sm.TimeHours, sm.ErrorRatePct, sm.StepType, sm.DownstreamCount))
				}
			} else {
				lines = append(lines,
					"  (no affected steps found - searching process-wide patterns)",
					fmt.Sprintf("  Review steps: %d (%.0f%%)", metrics.Patterns.ReviewStepCount, metrics.Patterns.ReviewPctOfSteps),
					fmt.Sprintf("  Longest chain: %d", metrics.Patterns.SequentialChainLength),
					fmt.Sprintf("  External touchpoints: %d", metrics.Patterns.ExternalTouchpoints),
				)
			}

			if c := state.Constraints; c != nil {
				lines = append(lines, "", "Active constraints (may be relevant):")
				if c.CannotHire {
					lines = append(lines, "  - Cannot hire new staff")
				}
				if c.MustMaintainAuditTrail {
					lines = append(lines, "  - Must maintain audit trail")
				}
				if c.BudgetLimit != nil && *c.BudgetLimit != 0 {
					lines = append(lines, fmt.Sprintf("  - Budget limit: $%s", commaInt(int(math.Round(*c.BudgetLimit)))))
				}
			}

			return strings.Join(lines, "\n"), nil
		},
	}
}

// newFeasibilityTool lists the constraints a recommendation has to clear.
func newFeasibilityTool(logger *slog.Logger, state *domain.AgentState) *domain.ToolDef {
	return &domain.ToolDef{
		Name:        "check_constraint_feasibility",
		Description: "Verify whether a recommendation would conflict with user constraints. Use this before finalizing any significant recommendation.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"recommendation_concept": map[string]interface{}{
					"type":        "string",
					"description": "The recommendation you are considering.",
				},
				"concern": map[string]interface{}{
					"type":        "string",
					"description": "Which constraint or requirement you are checking against.",
				},
			},
			"required": []string{"recommendation_concept", "concern"},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				RecommendationConcept string `json:"recommendation_concept"`
				Concern               string `json:"concern"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			concept := in.RecommendationConcept
			if len(concept) > 50 {
				concept = concept[:50]
			}
			logger.Info("tool called", "tool", "check_constraint_feasibility", "recommendation", concept)

			c := state.Constraints
			if c == nil {
				return "No constraints defined. Recommendation appears feasible.", nil
			}

			var active []string
			if c.BudgetLimit != nil && *c.BudgetLimit != 0 {
				active = append(active, fmt.Sprintf("Budget limit: $%s", commaInt(int(math.Round(*c.BudgetLimit)))))
			}
			if c.CannotHire {
				active = append(active, "Cannot hire new staff")
			}
			if c.MustMaintainAuditTrail {
				active = append(active, "Must maintain audit trail")
			}
			if c.MaxImplementationWeeks != nil && *c.MaxImplementationWeeks != 0 {
				active = append(active, fmt.Sprintf("Max implementation time: %d weeks", *c.MaxImplementationWeeks))
			}
			if c.MaxErrorRateIncreasePct != 0 {
				active = append(active, fmt.Sprintf("Max error rate increase: %g%%", c.MaxErrorRateIncreasePct))
			}
			active = append(active, c.CustomConstraints...)

			if len(active) == 0 {
				return "No binding constraints. Recommendation appears feasible.", nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Checking: '%s'\n", in.RecommendationConcept)
			fmt.Fprintf(&b, "Concern: %s\n", in.Concern)
			b.WriteString("Active constraints:")
			for _, constraint := range active {
				b.WriteString("\n- " + constraint)
			}
			return b.String(), nil
		},
	}
}
