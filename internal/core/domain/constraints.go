package domain

import (
	"fmt"
	"strings"
)

// Priority orients recommendations toward what the business cares about most.
type Priority string

const (
	PriorityCostReduction      Priority = "cost_reduction"
	PriorityTimeReduction      Priority = "time_reduction"
	PriorityQualityImprovement Priority = "quality_improvement"
	PriorityCompliance         Priority = "compliance"
)

// Constraints captures the business limits an analysis must respect.
// Nil pointer fields mean the limit was not provided.
type Constraints struct {
	BudgetLimit             *float64 `json:"budget_limit,omitempty"`
	CannotHire              bool     `json:"cannot_hire"`
	MaxErrorRateIncreasePct float64  `json:"max_error_rate_increase_pct"`
	MustMaintainAuditTrail  bool     `json:"must_maintain_audit_trail"`
	MaxImplementationWeeks  *int     `json:"max_implementation_weeks,omitempty"`
	Priority                Priority `json:"priority"`
	CustomConstraints       []string `json:"custom_constraints,omitempty"`
}

// Validate checks field ranges.
func (c *Constraints) Validate() error {
	if c.BudgetLimit != nil && *c.BudgetLimit < 0 {
		return NewDataInvariantError("budget_limit", "budget limit cannot be negative")
	}
	if c.MaxErrorRateIncreasePct < 0 {
		return NewDataInvariantError("max_error_rate_increase_pct", "error rate increase cannot be negative")
	}
	if c.MaxImplementationWeeks != nil && *c.MaxImplementationWeeks < 1 {
		return NewDataInvariantError("max_implementation_weeks", "implementation window must be at least one week")
	}
	return nil
}

// IsHiringAllowed reports whether new staff can be added.
func (c *Constraints) IsHiringAllowed() bool { return !c.CannotHire }

// HasBudgetLimit reports whether a budget ceiling was provided.
func (c *Constraints) HasBudgetLimit() bool { return c.BudgetLimit != nil }

// EffectivePriority returns the priority, defaulting to cost reduction.
func (c *Constraints) EffectivePriority() Priority {
	if c.Priority == "" {
		return PriorityCostReduction
	}
	return c.Priority
}

// ConflictResult reports how a suggestion fares against the constraints.
type ConflictResult struct {
	IsValid   bool     `json:"is_valid"`
	Conflicts []string `json:"conflicts,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// HasConflicts reports whether any hard conflict was found.
func (r *ConflictResult) HasConflicts() bool { return len(r.Conflicts) > 0 }

// CheckSuggestionAgainstConstraints flags suggestions that violate hard
// limits (budget overruns, hiring under a freeze) and warns about soft
// tensions.
func CheckSuggestionAgainstConstraints(s *Suggestion, c *Constraints) *ConflictResult {
	result := &ConflictResult{IsValid: true}
	if c == nil {
		return result
	}

	if c.BudgetLimit != nil && s.EstimatedCost > *c.BudgetLimit {
		result.Conflicts = append(result.Conflicts,
			fmt.Sprintf("estimated cost $%.0f exceeds budget limit $%.0f", s.EstimatedCost, *c.BudgetLimit))
	}

	if c.CannotHire {
		text := strings.ToLower(s.Title + " " + s.Description)
		if strings.Contains(text, "hire") || strings.Contains(text, "new staff") || strings.Contains(text, "additional headcount") {
			result.Conflicts = append(result.Conflicts,
				"suggestion requires new staff but hiring is frozen")
		} else if s.Type == SuggestionResourceReallocation {
			result.Warnings = append(result.Warnings,
				"resource reallocation under a hiring freeze may strain existing staff")
		}
	}

	result.IsValid = len(result.Conflicts) == 0
	return result
}
