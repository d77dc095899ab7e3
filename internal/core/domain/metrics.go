package domain

// StepType classifies what kind of work a step is, inferred from its name.
type StepType string

const (
	StepTypeReview         StepType = "review"
	StepTypeExternal       StepType = "external"
	StepTypeHandoff        StepType = "handoff"
	StepTypeCreative       StepType = "creative"
	StepTypeAdministrative StepType = "administrative"
	StepTypeProcessing     StepType = "processing"
	StepTypeUnknown        StepType = "unknown"
)

// StepMetrics is the computed profile of one step within its process.
type StepMetrics struct {
	StepName            string   `json:"step_name"`
	StepIndex           int      `json:"step_index"`
	TimeHours           float64  `json:"time_hours"`
	TimePct             float64  `json:"time_pct"`
	Cost                float64  `json:"cost"`
	CostPct             float64  `json:"cost_pct"`
	ErrorRatePct        float64  `json:"error_rate_pct"`
	Resources           int      `json:"resources"`
	DownstreamCount     int      `json:"downstream_count"`
	UpstreamCount       int      `json:"upstream_count"`
	IsParallelCandidate bool     `json:"is_parallel_candidate"`
	StepType            StepType `json:"step_type"`
	IsLongest           bool     `json:"is_longest"`
	IsMostExpensive     bool     `json:"is_most_expensive"`
	IsHighestError      bool     `json:"is_highest_error"`
}

// PatternMetrics aggregates structural patterns across the process.
type PatternMetrics struct {
	ReviewStepCount       int     `json:"review_step_count"`
	HandoffCount          int     `json:"handoff_count"`
	ExternalTouchpoints   int     `json:"external_touchpoints"`
	CreativeStepCount     int     `json:"creative_step_count"`
	ReviewPctOfSteps      float64 `json:"review_pct_of_steps"`
	TimeInReviewsPct      float64 `json:"time_in_reviews_pct"`
	TimeInCreativePct     float64 `json:"time_in_creative_pct"`
	SequentialChainLength int     `json:"sequential_chain_length"`
	ParallelOpportunities int     `json:"parallel_opportunities"`
}

// ProcessMetrics is the full deterministic profile of a process.
type ProcessMetrics struct {
	ProcessName     string         `json:"process_name"`
	TotalTimeHours  float64        `json:"total_time_hours"`
	TotalCost       float64        `json:"total_cost"`
	StepCount       int            `json:"step_count"`
	Steps           []StepMetrics  `json:"steps"`
	Patterns        PatternMetrics `json:"patterns"`
	HasAllTimes     bool           `json:"has_all_times"`
	HasAllCosts     bool           `json:"has_all_costs"`
	HasErrorRates   bool           `json:"has_error_rates"`
	HasDependencies bool           `json:"has_dependencies"`
}

// GetStepMetrics returns the metrics row for the exact step name.
func (m *ProcessMetrics) GetStepMetrics(name string) (*StepMetrics, bool) {
	for i := range m.Steps {
		if m.Steps[i].StepName == name {
			return &m.Steps[i], true
		}
	}
	return nil, false
}

// ConfidenceScore is the scorer's verdict on how analyzable the input is.
type ConfidenceScore struct {
	Score       float64            `json:"score"`
	Level       string             `json:"level"`
	Breakdown   map[string]float64 `json:"breakdown"`
	DataGaps    []string           `json:"data_gaps,omitempty"`
	Suggestions []string           `json:"suggestions,omitempty"`
	Sufficient  bool               `json:"sufficient"`
	Threshold   float64            `json:"threshold"`
}
