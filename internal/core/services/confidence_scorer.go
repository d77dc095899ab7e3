package services

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// ScorerWeights are the component weights of the confidence score. They
// must sum to 1.0.
type ScorerWeights struct {
	Process     float64
	Constraints float64
	Profile     float64
}

// DefaultScorerWeights weight process data heaviest: it is what the
// analysis actually runs on.
var DefaultScorerWeights = ScorerWeights{Process: 0.6, Constraints: 0.25, Profile: 0.15}

// DefaultConfidenceThreshold is the score below which input is considered
// insufficient for a solid analysis.
const DefaultConfidenceThreshold = 0.6

// ConfidenceScorer grades how analyzable the input data is. Deterministic;
// never calls the model.
type ConfidenceScorer struct {
	logger    *slog.Logger
	weights   ScorerWeights
	threshold float64
}

// NewConfidenceScorer creates a scorer. A zero threshold falls back to the
// default. Weights that do not sum to 1.0 are a construction error.
func NewConfidenceScorer(logger *slog.Logger, weights ScorerWeights, threshold float64) (*ConfidenceScorer, error) {
	sum := weights.Process + weights.Constraints + weights.Profile
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, domain.NewDataInvariantError("weights", fmt.Sprintf("component weights must sum to 1.0, got %v", sum))
	}
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &ConfidenceScorer{logger: logger, weights: weights, threshold: threshold}, nil
}

// Threshold returns the sufficiency threshold in use.
func (c *ConfidenceScorer) Threshold() float64 { return c.threshold }

// Score computes the weighted confidence for the given input. The result
// records sufficiency against the scorer's threshold at scoring time.
func (c *ConfidenceScorer) Score(process *domain.ProcessData, constraints *domain.Constraints, profile *domain.BusinessProfile) *domain.ConfidenceScore {
	var gaps, suggestions []string

	processScore, processGaps, processSuggestions := c.scoreProcess(process)
	gaps = append(gaps, processGaps...)
	suggestions = append(suggestions, processSuggestions...)

	constraintsScore, constraintsGaps, constraintsSuggestions := c.scoreConstraints(constraints)
	gaps = append(gaps, constraintsGaps...)
	suggestions = append(suggestions, constraintsSuggestions...)

	profileScore, profileGaps, profileSuggestions := c.scoreProfile(profile)
	gaps = append(gaps, profileGaps...)
	suggestions = append(suggestions, profileSuggestions...)

	score := processScore*c.weights.Process +
		constraintsScore*c.weights.Constraints +
		profileScore*c.weights.Profile

	result := &domain.ConfidenceScore{
		Score: score,
		Level: confidenceLevel(score),
		Breakdown: map[string]float64{
			"process_completeness":     processScore,
			"constraints_completeness": constraintsScore,
			"profile_completeness":     profileScore,
		},
		DataGaps:    gaps,
		Suggestions: suggestions,
		Sufficient:  score >= c.threshold,
		Threshold:   c.threshold,
	}

	c.logger.Debug("confidence scored",
		"score", score,
		"level", result.Level,
		"gaps", len(gaps),
		"sufficient", result.Sufficient,
	)
	return result
}

func (c *ConfidenceScorer) scoreProcess(process *domain.ProcessData) (float64, []string, []string) {
	var gaps, suggestions []string

	if process == nil || len(process.Steps) == 0 {
		gaps = append(gaps, "No process steps defined")
		suggestions = append(suggestions, "Add at least one process step")
		return 0, gaps, suggestions
	}

	stepScores := make([]float64, 0, len(process.Steps))
	for i := range process.Steps {
		step := &process.Steps[i]
		score := 1.0
		if step.ErrorRatePct == 0 {
			score -= 0.15
			gaps = append(gaps, fmt.Sprintf("error rate for '%s'", step.StepName))
		}
		if step.CostPerInstance == 0 {
			score -= 0.2
			gaps = append(gaps, fmt.Sprintf("cost for '%s'", step.StepName))
		}
		if step.AverageTimeHours == 0 {
			score -= 0.3
			gaps = append(gaps, fmt.Sprintf("time for '%s'", step.StepName))
		}
		stepScores = append(stepScores, math.Max(0, score))
	}

	if len(process.Steps) > 1 {
		anyDeps := false
		for i := range process.Steps {
			if len(process.Steps[i].DependsOn) > 0 {
				anyDeps = true
				break
			}
		}
		if !anyDeps {
			gaps = append(gaps, "No dependencies defined between steps")
			suggestions = append(suggestions, "Define step dependencies to enable cascade analysis")
			for i := range stepScores {
				stepScores[i] *= 0.9
			}
		}
	}

	if strings.TrimSpace(process.Description) == "" {
		suggestions = append(suggestions, "Add a process description for better context")
	}

	var sum float64
	for _, s := range stepScores {
		sum += s
	}
	avg := sum / float64(len(stepScores))

	// Larger processes give the analysis more signal to work with.
	if len(process.Steps) >= 5 {
		avg = math.Min(avg+0.05, 1.0)
	}
	return avg, gaps, suggestions
}

func (c *ConfidenceScorer) scoreConstraints(constraints *domain.Constraints) (float64, []string, []string) {
	var gaps, suggestions []string

	if constraints == nil {
		gaps = append(gaps, "No constraints provided")
		suggestions = append(suggestions, "Define business constraints (budget, hiring, timeline)")
		return 0.3, gaps, suggestions
	}

	score := 0.5
	if constraints.BudgetLimit != nil {
		score += 0.15
	} else {
		suggestions = append(suggestions, "Consider adding a budget limit for better filtering")
	}
	if constraints.MaxImplementationWeeks != nil {
		score += 0.15
	}
	if len(constraints.CustomConstraints) > 0 {
		score += 0.1
	}
	if constraints.CannotHire || constraints.MustMaintainAuditTrail {
		score += 0.1
	}
	return math.Min(score, 1.0), gaps, suggestions
}

func (c *ConfidenceScorer) scoreProfile(profile *domain.BusinessProfile) (float64, []string, []string) {
	var gaps, suggestions []string

	if profile == nil {
		gaps = append(gaps, "No business profile provided")
		suggestions = append(suggestions, "Add business context (industry, company size, regulatory environment)")
		return 0.2, gaps, suggestions
	}

	score := 0.4
	if profile.Industry != "" && profile.CompanySize != "" {
		score += 0.2
	}
	if len(profile.PreviousImprovements) > 0 {
		score += 0.1
	}
	if len(profile.PreferredFrameworks) > 0 {
		score += 0.1
	}
	if len(profile.RejectedApproaches) > 0 {
		score += 0.15
	}
	return math.Min(score, 1.0), gaps, suggestions
}

func confidenceLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.6:
		return "moderate"
	case score >= 0.4:
		return "low"
	default:
		return "very low"
	}
}

// criticalGapKeywords mark the gaps that hurt analysis quality most.
var criticalGapKeywords = []string{
	"time",
	"cost",
	"error rate",
	"no process steps",
	"no constraints",
}

// CriticalGaps reorders gaps so the most impactful come first; relative
// order within each group is preserved.
func CriticalGaps(gaps []string) []string {
	var critical, other []string
	for _, gap := range gaps {
		low := strings.ToLower(gap)
		matched := false
		for _, kw := range criticalGapKeywords {
			if strings.Contains(low, kw) {
				matched = true
				break
			}
		}
		if matched {
			critical = append(critical, gap)
		} else {
			other = append(other, gap)
		}
	}
	return append(critical, other...)
}
