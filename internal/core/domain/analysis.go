package domain

// SeverityLevel grades how much a bottleneck hurts.
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityCritical SeverityLevel = "critical"
)

// SuggestionType is the improvement lever a suggestion pulls.
type SuggestionType string

const (
	SuggestionAutomation           SuggestionType = "automation"
	SuggestionProcessRedesign      SuggestionType = "process_redesign"
	SuggestionResourceReallocation SuggestionType = "resource_reallocation"
	SuggestionTraining             SuggestionType = "training"
	SuggestionToolUpgrade          SuggestionType = "tool_upgrade"
	SuggestionElimination          SuggestionType = "elimination"
	SuggestionParallelization      SuggestionType = "parallelization"
)

// Bottleneck is a step identified as dragging the process down.
type Bottleneck struct {
	StepName         string             `json:"step_name"`
	Severity         SeverityLevel      `json:"severity"`
	ImpactScore      float64            `json:"impact_score"`
	Reason           string             `json:"reason"`
	DownstreamImpact string             `json:"downstream_impact,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
}

// ROIEstimate is a three-scenario annual savings projection for one
// suggestion applied to one step.
type ROIEstimate struct {
	PessimisticAnnualSavings float64  `json:"pessimistic_annual_savings"`
	LikelyAnnualSavings      float64  `json:"likely_annual_savings"`
	OptimisticAnnualSavings  float64  `json:"optimistic_annual_savings"`
	Assumptions              []string `json:"assumptions"`
	Confidence               float64  `json:"confidence"`
	PaybackMonths            *float64 `json:"payback_months,omitempty"`
}

// ExpectedValue collapses the three scenarios with the PERT formula
// (pessimistic + 4*likely + optimistic) / 6.
func (r *ROIEstimate) ExpectedValue() float64 {
	return (r.PessimisticAnnualSavings + 4*r.LikelyAnnualSavings + r.OptimisticAnnualSavings) / 6
}

// Suggestion is one concrete improvement proposal.
type Suggestion struct {
	ID                     string         `json:"id"`
	BottleneckStep         string         `json:"bottleneck_step"`
	Type                   SuggestionType `json:"suggestion_type"`
	Title                  string         `json:"title"`
	Description            string         `json:"description"`
	ImplementationSteps    []string       `json:"implementation_steps,omitempty"`
	EstimatedCost          float64        `json:"estimated_cost"`
	ROI                    *ROIEstimate   `json:"roi,omitempty"`
	Reasoning              string         `json:"reasoning,omitempty"`
	AlternativesConsidered []string       `json:"alternatives_considered,omitempty"`
}

// AnalysisResult aggregates the deterministic analysis of one process.
type AnalysisResult struct {
	ProcessName       string       `json:"process_name"`
	Bottlenecks       []Bottleneck `json:"bottlenecks,omitempty"`
	Suggestions       []Suggestion `json:"suggestions,omitempty"`
	OverallConfidence float64      `json:"overall_confidence"`
	DataGaps          []string     `json:"data_gaps,omitempty"`
	Summary           string       `json:"summary,omitempty"`
}
