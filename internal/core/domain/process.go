package domain

import (
	"fmt"
	"strings"
)

// ProcessStep is one step of a described business process. Zero values on
// the numeric fields mean "not provided"; the confidence scorer treats them
// as data gaps rather than real measurements.
type ProcessStep struct {
	StepName         string   `json:"step_name"`
	AverageTimeHours float64  `json:"average_time_hours"`
	ResourcesNeeded  int      `json:"resources_needed"`
	ErrorRatePct     float64  `json:"error_rate_pct"`
	CostPerInstance  float64  `json:"cost_per_instance"`
	EstimatedFields  []string `json:"estimated_fields,omitempty"`
	DependsOn        []string `json:"depends_on,omitempty"`
}

// Validate checks the step's field ranges.
func (s *ProcessStep) Validate() error {
	if strings.TrimSpace(s.StepName) == "" {
		return NewDataInvariantError("step_name", "step name cannot be empty")
	}
	if s.AverageTimeHours < 0 {
		return NewDataInvariantError("average_time_hours", fmt.Sprintf("step %q: time cannot be negative", s.StepName))
	}
	if s.ResourcesNeeded < 1 {
		return NewDataInvariantError("resources_needed", fmt.Sprintf("step %q: at least one resource is required", s.StepName))
	}
	if s.ErrorRatePct < 0 || s.ErrorRatePct > 100 {
		return NewDataInvariantError("error_rate_pct", fmt.Sprintf("step %q: error rate must be between 0 and 100", s.StepName))
	}
	if s.CostPerInstance < 0 {
		return NewDataInvariantError("cost_per_instance", fmt.Sprintf("step %q: cost cannot be negative", s.StepName))
	}
	return nil
}

// ParseDependencies splits a free-form dependency string into names.
// Accepts semicolon or comma separated lists.
func ParseDependencies(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	var deps []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			deps = append(deps, p)
		}
	}
	return deps
}

// ProcessData is the full description of a business process under analysis.
type ProcessData struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []ProcessStep `json:"steps"`
}

// Validate checks the process and every step.
func (p *ProcessData) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewDataInvariantError("name", "process name cannot be empty")
	}
	if len(p.Steps) == 0 {
		return NewDataInvariantError("steps", "process must have at least one step")
	}
	seen := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		if err := p.Steps[i].Validate(); err != nil {
			return err
		}
		if seen[p.Steps[i].StepName] {
			return NewDataInvariantError("steps", fmt.Sprintf("duplicate step name %q", p.Steps[i].StepName))
		}
		seen[p.Steps[i].StepName] = true
	}
	return nil
}

// TotalTimeHours sums the average time of all steps.
func (p *ProcessData) TotalTimeHours() float64 {
	var total float64
	for i := range p.Steps {
		total += p.Steps[i].AverageTimeHours
	}
	return total
}

// TotalCost sums the per-instance cost of all steps.
func (p *ProcessData) TotalCost() float64 {
	var total float64
	for i := range p.Steps {
		total += p.Steps[i].CostPerInstance
	}
	return total
}

// StepNames returns the step names in order.
func (p *ProcessData) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i := range p.Steps {
		names[i] = p.Steps[i].StepName
	}
	return names
}

// GetStep returns the step with the exact given name.
func (p *ProcessData) GetStep(name string) (*ProcessStep, bool) {
	for i := range p.Steps {
		if p.Steps[i].StepName == name {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the process.
func (p *ProcessData) Clone() *ProcessData {
	cp := &ProcessData{Name: p.Name, Description: p.Description}
	cp.Steps = make([]ProcessStep, len(p.Steps))
	for i := range p.Steps {
		cp.Steps[i] = p.Steps[i]
		cp.Steps[i].EstimatedFields = append([]string(nil), p.Steps[i].EstimatedFields...)
		cp.Steps[i].DependsOn = append([]string(nil), p.Steps[i].DependsOn...)
	}
	return cp
}

// MergeProcessData merges an update into a base process and returns a new
// copy. Steps are matched by exact name: non-zero fields of the update
// overwrite the base, zero fields keep the base value. Steps that only
// exist in the update are appended in order. Neither input is mutated and
// the result never contains duplicate step names.
func MergeProcessData(base, update *ProcessData) *ProcessData {
	if base == nil {
		if update == nil {
			return nil
		}
		return update.Clone()
	}
	if update == nil {
		return base.Clone()
	}

	merged := base.Clone()
	if strings.TrimSpace(update.Name) != "" {
		merged.Name = update.Name
	}
	if strings.TrimSpace(update.Description) != "" {
		merged.Description = update.Description
	}

	index := make(map[string]int, len(merged.Steps))
	for i := range merged.Steps {
		index[merged.Steps[i].StepName] = i
	}

	for i := range update.Steps {
		us := update.Steps[i]
		pos, exists := index[us.StepName]
		if !exists {
			merged.Steps = append(merged.Steps, *(&us).clone())
			index[us.StepName] = len(merged.Steps) - 1
			continue
		}
		dst := &merged.Steps[pos]
		if us.AverageTimeHours != 0 {
			dst.AverageTimeHours = us.AverageTimeHours
		}
		if us.ResourcesNeeded != 0 {
			dst.ResourcesNeeded = us.ResourcesNeeded
		}
		if us.ErrorRatePct != 0 {
			dst.ErrorRatePct = us.ErrorRatePct
		}
		if us.CostPerInstance != 0 {
			dst.CostPerInstance = us.CostPerInstance
		}
		if len(us.EstimatedFields) > 0 {
			dst.EstimatedFields = append([]string(nil), us.EstimatedFields...)
		}
		if len(us.DependsOn) > 0 {
			dst.DependsOn = append([]string(nil), us.DependsOn...)
		}
	}
	return merged
}

func (s *ProcessStep) clone() *ProcessStep {
	cp := *s
	cp.EstimatedFields = append([]string(nil), s.EstimatedFields...)
	cp.DependsOn = append([]string(nil), s.DependsOn...)
	return &cp
}
