package services

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// improvementFactors are the typical reductions a suggestion type delivers.
// The cost multiplier describes ongoing cost after the change; it is
// reported in assumptions but does not enter the savings arithmetic.
type improvementFactors struct {
	TimeReduction  float64
	ErrorReduction float64
	CostMultiplier float64
}

var defaultImprovementFactors = map[domain.SuggestionType]improvementFactors{
	domain.SuggestionAutomation:           {TimeReduction: 0.70, ErrorReduction: 0.80, CostMultiplier: 0.3},
	domain.SuggestionProcessRedesign:      {TimeReduction: 0.40, ErrorReduction: 0.30, CostMultiplier: 0.7},
	domain.SuggestionResourceReallocation: {TimeReduction: 0.25, ErrorReduction: 0.15, CostMultiplier: 0.9},
	domain.SuggestionTraining:             {TimeReduction: 0.15, ErrorReduction: 0.40, CostMultiplier: 0.95},
	domain.SuggestionToolUpgrade:          {TimeReduction: 0.35, ErrorReduction: 0.25, CostMultiplier: 0.6},
	domain.SuggestionElimination:          {TimeReduction: 1.0, ErrorReduction: 1.0, CostMultiplier: 0.0},
	domain.SuggestionParallelization:      {TimeReduction: 0.50, ErrorReduction: 0.0, CostMultiplier: 1.1},
}

const (
	// defaultExecutionsPerYear is assumed when the caller gives none.
	defaultExecutionsPerYear = 1000
	// defaultROIConfidence is the base confidence of an estimate.
	defaultROIConfidence = 0.7
	// defaultHourlyRate stands in when a step has cost but no time data.
	defaultHourlyRate = 75.0
)

// EstimateRequest carries the inputs for one ROI estimate.
type EstimateRequest struct {
	StepName           string
	Type               domain.SuggestionType
	ImplementationCost float64
	ExecutionsPerYear  int
}

// ROICalculator projects annual savings for a suggestion applied to one
// step. Deterministic; never calls the model.
type ROICalculator struct {
	logger *slog.Logger
}

// NewROICalculator creates the calculator.
func NewROICalculator(logger *slog.Logger) *ROICalculator {
	return &ROICalculator{logger: logger}
}

// Estimate produces a three-scenario estimate. A step name that does not
// exist in the process yields the zero estimate with zero confidence.
func (c *ROICalculator) Estimate(process *domain.ProcessData, req EstimateRequest) *domain.ROIEstimate {
	step, ok := process.GetStep(req.StepName)
	if !ok {
		c.logger.Error("step not found for ROI estimate", "step", req.StepName, "process", process.Name)
		return emptyROIEstimate()
	}

	factors, ok := defaultImprovementFactors[req.Type]
	if !ok {
		factors = defaultImprovementFactors[domain.SuggestionProcessRedesign]
	}

	executions := req.ExecutionsPerYear
	if executions <= 0 {
		executions = defaultExecutionsPerYear
	}

	likely := annualSavings(step, factors, 1.0, executions)
	pessimistic := annualSavings(step, factors, 0.5, executions)
	optimistic := annualSavings(step, factors, 1.3, executions)

	var payback *float64
	if likely > 0 && req.ImplementationCost > 0 {
		months := req.ImplementationCost / likely * 12
		payback = &months
	}

	estimate := &domain.ROIEstimate{
		PessimisticAnnualSavings: pessimistic,
		LikelyAnnualSavings:      likely,
		OptimisticAnnualSavings:  optimistic,
		Assumptions:              buildAssumptions(step, factors, req, executions),
		Confidence:               defaultROIConfidence,
		PaybackMonths:            payback,
	}

	c.logger.Debug("roi calculated",
		"step", req.StepName,
		"type", string(req.Type),
		"pessimistic", pessimistic,
		"likely", likely,
		"optimistic", optimistic,
	)
	return estimate
}

func annualSavings(step *domain.ProcessStep, factors improvementFactors, multiplier float64, executions int) float64 {
	timeReduction := math.Min(factors.TimeReduction*multiplier, 1.0)
	errorReduction := math.Min(factors.ErrorReduction*multiplier, 1.0)

	hourlyRate := defaultHourlyRate
	if step.AverageTimeHours > 0 {
		hourlyRate = step.CostPerInstance / step.AverageTimeHours
	}

	timeSavedHours := step.AverageTimeHours * timeReduction
	timeSavingsPerExecution := timeSavedHours * hourlyRate

	// Each error is assumed to cost twice the step cost to rework.
	errorCostPerExecution := step.CostPerInstance * 2 * (step.ErrorRatePct / 100)
	errorSavingsPerExecution := errorCostPerExecution * errorReduction

	return (timeSavingsPerExecution + errorSavingsPerExecution) * float64(executions)
}

func buildAssumptions(step *domain.ProcessStep, factors improvementFactors, req EstimateRequest, executions int) []string {
	assumptions := []string{
		fmt.Sprintf("Process executes %s times per year", commaInt(executions)),
		fmt.Sprintf("Current step cost: $%.2f per execution", step.CostPerInstance),
		fmt.Sprintf("Current step time: %.1f hours", step.AverageTimeHours),
	}

	if factors.TimeReduction > 0 {
		assumptions = append(assumptions,
			fmt.Sprintf("Expected time reduction: %.0f%% (based on %s)", factors.TimeReduction*100, req.Type))
	}
	if factors.ErrorReduction > 0 && step.ErrorRatePct > 0 {
		assumptions = append(assumptions,
			fmt.Sprintf("Expected error reduction: %.0f%%", factors.ErrorReduction*100),
			"Error rework cost estimated at 2x step cost")
	}
	if req.ImplementationCost > 0 {
		assumptions = append(assumptions,
			fmt.Sprintf("Implementation cost: $%s", commaInt(int(math.Round(req.ImplementationCost)))))
	}
	return assumptions
}

func emptyROIEstimate() *domain.ROIEstimate {
	return &domain.ROIEstimate{
		Assumptions: []string{"Unable to calculate ROI - step not found"},
		Confidence:  0,
	}
}

// commaInt renders an integer with thousands separators.
func commaInt(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}
