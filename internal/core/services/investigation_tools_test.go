package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

func investigationFixture(t *testing.T) (*domain.AgentState, *domain.ProcessMetrics) {
	t.Helper()
	budget := 50000.0
	state := &domain.AgentState{
		Process: &domain.ProcessData{
			Name: "Purchase requests",
			Steps: []domain.ProcessStep{
				{StepName: "Submit request", AverageTimeHours: 1, CostPerInstance: 10, ErrorRatePct: 2, ResourcesNeeded: 1},
				{StepName: "Review request", AverageTimeHours: 4, CostPerInstance: 40, ErrorRatePct: 10, ResourcesNeeded: 1, DependsOn: []string{"Submit request"}},
				{StepName: "Send to vendor", AverageTimeHours: 3, CostPerInstance: 50, ResourcesNeeded: 2, DependsOn: []string{"Review request"}},
			},
		},
		Insight: &domain.AnalysisInsight{
			Issues: []domain.Issue{
				{Title: "Review bottleneck", Severity: "high", AffectedSteps: []string{"Review request"}},
			},
		},
		Constraints: &domain.Constraints{CannotHire: true, BudgetLimit: &budget},
	}
	metrics := NewMetricsEngine(testLogger()).Compute(state.Process)
	return state, metrics
}

func execTool(t *testing.T, reg *domain.ToolRegistry, name, args string) string {
	t.Helper()
	return reg.Execute(context.Background(), domain.ToolCall{
		ID:        "call-1",
		Name:      name,
		Arguments: json.RawMessage(args),
	})
}

func TestInvestigationToolNames(t *testing.T) {
	state, metrics := investigationFixture(t)
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	assert.Equal(t, []string{
		"analyze_dependency_impact",
		"validate_root_cause",
		"check_constraint_feasibility",
	}, reg.Names())
}

func TestAnalyzeDependencyImpact(t *testing.T) {
	state, metrics := investigationFixture(t)
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "analyze_dependency_impact",
		`{"step_name":"Review request","question":"Why is review so slow?"}`)

	assert.Equal(t, "Step 'Review request':\n"+
		"  Time: 4.0h (50% of total)\n"+
		"  Cost: $40 (40% of total)\n"+
		"  Error rate: 10%\n"+
		"  Resources: 1\n"+
		"  Type: review\n"+
		"  Downstream steps blocked by this: 1\n"+
		"  Upstream dependencies: 1\n"+
		"  Question being investigated: Why is review so slow?\n"+
		"  Flag: longest step in process\n"+
		"  Flag: highest error rate in process", out)
}

func TestAnalyzeDependencyImpactUnknownStep(t *testing.T) {
	state, metrics := investigationFixture(t)
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "analyze_dependency_impact",
		`{"step_name":"Nonexistent","question":"?"}`)

	assert.Equal(t, "Step 'Nonexistent' not found in process data.", out)
}

func TestAnalyzeDependencyImpactRecomputesWithoutCache(t *testing.T) {
	state, _ := investigationFixture(t)
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, nil)

	out := execTool(t, reg, "analyze_dependency_impact",
		`{"step_name":"Submit request","question":"cascade"}`)

	assert.Contains(t, out, "Step 'Submit request':")
	assert.Contains(t, out, "  Downstream steps blocked by this: 2")
	assert.Contains(t, out, "  Upstream dependencies: 0")
}

func TestValidateRootCauseMatchesIssueCaseInsensitively(t *testing.T) {
	state, metrics := investigationFixture(t)
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "validate_root_cause",
		`{"issue_title":"review BOTTLENECK","hypothesis":"Approvals concentrate on one manager"}`)

	assert.Equal(t, "Hypothesis: Approvals concentrate on one manager\n"+
		"Issue: review BOTTLENECK\n"+
		"\n"+
		"Affected step data:\n"+
		"  Review request: 4.0h, 10% errors, type=review, downstream=1\n"+
		"\n"+
		"Active constraints (may be relevant):\n"+
		"  - Cannot hire new staff\n"+
		"  - Budget limit: $50,000", out)
}

func TestValidateRootCauseFallsBackToProcessPatterns(t *testing.T) {
	state, metrics := investigationFixture(t)
	state.Constraints = nil
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "validate_root_cause",
		`{"issue_title":"Unknown issue","hypothesis":"Too many handoffs"}`)

	assert.Equal(t, "Hypothesis: Too many handoffs\n"+
		"Issue: Unknown issue\n"+
		"\n"+
		"Affected step data:\n"+
		"  (no affected steps found - searching process-wide patterns)\n"+
		"  Review steps: 1 (33%)\n"+
		"  Longest chain: 3\n"+
		"  External touchpoints: 1", out)
}

func TestCheckConstraintFeasibility(t *testing.T) {
	state, metrics := investigationFixture(t)
	weeks := 8
	state.Constraints.MustMaintainAuditTrail = true
	state.Constraints.MaxImplementationWeeks = &weeks
	state.Constraints.MaxErrorRateIncreasePct = 2.5
	state.Constraints.CustomConstraints = []string{"Keep SOC2 evidence intact"}
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "check_constraint_feasibility",
		`{"recommendation_concept":"Automate the review step","concern":"budget"}`)

	assert.Equal(t, "Checking: 'Automate the review step'\n"+
		"Concern: budget\n"+
		"Active constraints:\n"+
		"- Budget limit: $50,000\n"+
		"- Cannot hire new staff\n"+
		"- Must maintain audit trail\n"+
		"- Max implementation time: 8 weeks\n"+
		"- Max error rate increase: 2.5%\n"+
		"- Keep SOC2 evidence intact", out)
}

func TestCheckConstraintFeasibilityNoConstraints(t *testing.T) {
	state, metrics := investigationFixture(t)
	state.Constraints = nil
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "check_constraint_feasibility",
		`{"recommendation_concept":"Automate review","concern":"budget"}`)

	assert.Equal(t, "No constraints defined. Recommendation appears feasible.", out)
}

func TestCheckConstraintFeasibilityNoBindingConstraints(t *testing.T) {
	state, metrics := investigationFixture(t)
	state.Constraints = &domain.Constraints{}
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "check_constraint_feasibility",
		`{"recommendation_concept":"Automate review","concern":"budget"}`)

	assert.Equal(t, "No binding constraints. Recommendation appears feasible.", out)
}

func TestUnknownToolProducesExplanatoryResult(t *testing.T) {
	state, metrics := investigationFixture(t)
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "does_not_exist", `{}`)

	assert.Equal(t, "Tool 'does_not_exist' is not available. Available tools: "+
		"analyze_dependency_impact, validate_root_cause, check_constraint_feasibility.", out)
}

func TestInvalidToolArgumentsAreStringified(t *testing.T) {
	state, metrics := investigationFixture(t)
	reg := NewInvestigationTools(testLogger(), NewMetricsEngine(testLogger()), state, metrics)

	out := execTool(t, reg, "validate_root_cause", `not json`)

	assert.Contains(t, out, "Tool 'validate_root_cause' failed:")
	assert.Contains(t, out, "invalid arguments")
}
