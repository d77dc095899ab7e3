package services

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// Step type inference patterns, matched against the lowercased step name.
// Priority order: review beats external beats handoff and so on.
var (
	reviewPattern     = regexp.MustCompile(`\breview|\bapproval\b|\bapprove|\bcheck\b|\bvalidat|\bverif|\binspect|\bqc\b|\bqa\b`)
	externalPattern   = regexp.MustCompile(`\bclient\b|\bcustomer\b|\bvendor\b|\bexternal\b|\bfeedback\b|\bhappy\b`)
	handoffPattern    = regexp.MustCompile(`\bsend\b|\bsubmit\b|\bshare\b|\btransfer\b|\bforward\b|\bdeliver\b|\bhandoff\b|\bhand off\b`)
	creativePattern   = regexp.MustCompile(`\bdesign\b|\bcreate\b|\bdevelop\b|\bwrite\b|\bbuild\b|\bsolution\b|\bwork on\b|\bimplement\b`)
	adminPattern      = regexp.MustCompile(`\binvoice\b|\bdocument\b|\brecord\b|\bfile\b|\blog\b|\breport\b`)
	processingPattern = regexp.MustCompile(`\bprocess\b|\bprepare\b|\banalyze\b|\bcollect\b|\bgather\b|\btask\b`)
)

// MetricsEngine computes deterministic facts about a process. It never
// judges: percentages, counts and relationships go to the model, which
// decides what is waste and what is value.
type MetricsEngine struct {
	logger *slog.Logger
}

// NewMetricsEngine creates the engine.
func NewMetricsEngine(logger *slog.Logger) *MetricsEngine {
	return &MetricsEngine{logger: logger}
}

// Compute calculates all metrics for a process. An empty process yields
// zeroed metrics.
func (e *MetricsEngine) Compute(process *domain.ProcessData) *domain.ProcessMetrics {
	if len(process.Steps) == 0 {
		e.logger.Warn("empty process, returning minimal metrics", "process", process.Name)
		return &domain.ProcessMetrics{ProcessName: process.Name, Steps: []domain.StepMetrics{}}
	}

	totalTime := process.TotalTimeHours()
	totalCost := process.TotalCost()

	downstream := buildDownstreamMap(process)
	upstream := buildUpstreamMap(process)

	var maxTime, maxCost, maxError float64
	anyError := false
	for i := range process.Steps {
		s := &process.Steps[i]
		if s.AverageTimeHours > maxTime {
			maxTime = s.AverageTimeHours
		}
		if s.CostPerInstance > maxCost {
			maxCost = s.CostPerInstance
		}
		if s.ErrorRatePct > 0 {
			anyError = true
			if s.ErrorRatePct > maxError {
				maxError = s.ErrorRatePct
			}
		}
	}
	if !anyError {
		maxError = 0
	}

	steps := make([]domain.StepMetrics, 0, len(process.Steps))
	for idx := range process.Steps {
		s := &process.Steps[idx]
		downCount := len(downstream[s.StepName])
		upCount := len(upstream[s.StepName])

		timePct := 0.0
		if totalTime > 0 {
			timePct = s.AverageTimeHours / totalTime * 100
		}
		costPct := 0.0
		if totalCost > 0 {
			costPct = s.CostPerInstance / totalCost * 100
		}

		steps = append(steps, domain.StepMetrics{
			StepName:            s.StepName,
			StepIndex:           idx,
			TimeHours:           s.AverageTimeHours,
			TimePct:             timePct,
			Cost:                s.CostPerInstance,
			CostPct:             costPct,
			ErrorRatePct:        s.ErrorRatePct,
			Resources:           s.ResourcesNeeded,
			DownstreamCount:     downCount,
			UpstreamCount:       upCount,
			IsParallelCandidate: downCount == 0,
			StepType:            inferStepType(s.StepName),
			IsLongest:           s.AverageTimeHours == maxTime && maxTime > 0,
			IsMostExpensive:     s.CostPerInstance == maxCost && maxCost > 0,
			IsHighestError:      s.ErrorRatePct == maxError && maxError > 0,
		})
	}

	patterns := calculatePatternMetrics(steps, process)

	hasAllTimes := true
	hasAllCosts := true
	hasErrorRates := false
	hasDependencies := false
	for i := range process.Steps {
		s := &process.Steps[i]
		if s.AverageTimeHours <= 0 {
			hasAllTimes = false
		}
		if s.CostPerInstance <= 0 {
			hasAllCosts = false
		}
		if s.ErrorRatePct > 0 {
			hasErrorRates = true
		}
		if len(s.DependsOn) > 0 {
			hasDependencies = true
		}
	}

	e.logger.Info("metrics calculated",
		"process", process.Name,
		"steps", len(steps),
		"total_time_hours", totalTime,
		"total_cost", totalCost,
		"reviews", patterns.ReviewStepCount,
		"external", patterns.ExternalTouchpoints,
	)

	return &domain.ProcessMetrics{
		ProcessName:     process.Name,
		TotalTimeHours:  totalTime,
		TotalCost:       totalCost,
		StepCount:       len(process.Steps),
		Steps:           steps,
		Patterns:        patterns,
		HasAllTimes:     hasAllTimes,
		HasAllCosts:     hasAllCosts,
		HasErrorRates:   hasErrorRates,
		HasDependencies: hasDependencies,
	}
}

func inferStepType(stepName string) domain.StepType {
	name := strings.ToLower(stepName)
	switch {
	case reviewPattern.MatchString(name):
		return domain.StepTypeReview
	case externalPattern.MatchString(name):
		return domain.StepTypeExternal
	case handoffPattern.MatchString(name):
		return domain.StepTypeHandoff
	case creativePattern.MatchString(name):
		return domain.StepTypeCreative
	case adminPattern.MatchString(name):
		return domain.StepTypeAdministrative
	case processingPattern.MatchString(name):
		return domain.StepTypeProcessing
	default:
		return domain.StepTypeUnknown
	}
}

// buildDownstreamMap maps each step to every step that transitively
// depends on it. Dependencies naming unknown steps are ignored.
func buildDownstreamMap(process *domain.ProcessData) map[string][]string {
	direct := make(map[string][]string, len(process.Steps))
	for i := range process.Steps {
		direct[process.Steps[i].StepName] = nil
	}
	for i := range process.Steps {
		s := &process.Steps[i]
		for _, dep := range s.DependsOn {
			if _, ok := direct[dep]; ok {
				direct[dep] = append(direct[dep], s.StepName)
			}
		}
	}

	result := make(map[string][]string, len(direct))
	for name := range direct {
		result[name] = transitive(name, direct, make(map[string]bool))
	}
	return result
}

// buildUpstreamMap maps each step to everything it transitively depends
// on. Unlike the downstream map, names of steps that do not exist still
// count as upstream entries.
func buildUpstreamMap(process *domain.ProcessData) map[string][]string {
	direct := make(map[string][]string, len(process.Steps))
	for i := range process.Steps {
		s := &process.Steps[i]
		direct[s.StepName] = append([]string(nil), s.DependsOn...)
	}

	result := make(map[string][]string, len(direct))
	for name := range direct {
		result[name] = transitive(name, direct, make(map[string]bool))
	}
	return result
}

// transitive walks the adjacency map from start. The visited set is shared
// across the whole walk so reconvergent paths stay linear and cycles
// terminate.
func transitive(start string, direct map[string][]string, visited map[string]bool) []string {
	if visited[start] {
		return nil
	}
	visited[start] = true

	var result []string
	seen := make(map[string]bool)
	for _, child := range direct[start] {
		if !seen[child] {
			seen[child] = true
			result = append(result, child)
		}
		for _, grandchild := range transitive(child, direct, visited) {
			if !seen[grandchild] {
				seen[grandchild] = true
				result = append(result, grandchild)
			}
		}
	}
	return result
}

func calculatePatternMetrics(steps []domain.StepMetrics, process *domain.ProcessData) domain.PatternMetrics {
	var reviewCount, handoffCount, externalCount, creativeCount, parallelOps int
	var totalTime, reviewTime, creativeTime float64

	for i := range steps {
		s := &steps[i]
		totalTime += s.TimeHours
		switch s.StepType {
		case domain.StepTypeReview:
			reviewCount++
			reviewTime += s.TimeHours
		case domain.StepTypeHandoff:
			handoffCount++
		case domain.StepTypeExternal:
			externalCount++
		case domain.StepTypeCreative:
			creativeCount++
			creativeTime += s.TimeHours
		}
		if s.IsParallelCandidate {
			parallelOps++
		}
	}

	reviewPct := 0.0
	if len(steps) > 0 {
		reviewPct = float64(reviewCount) / float64(len(steps)) * 100
	}
	reviewTimePct := 0.0
	creativeTimePct := 0.0
	if totalTime > 0 {
		reviewTimePct = reviewTime / totalTime * 100
		creativeTimePct = creativeTime / totalTime * 100
	}

	return domain.PatternMetrics{
		ReviewStepCount:       reviewCount,
		HandoffCount:          handoffCount,
		ExternalTouchpoints:   externalCount,
		CreativeStepCount:     creativeCount,
		ReviewPctOfSteps:      reviewPct,
		TimeInReviewsPct:      reviewTimePct,
		TimeInCreativePct:     creativeTimePct,
		SequentialChainLength: longestChain(process),
		ParallelOpportunities: parallelOps,
	}
}

// longestChain finds the longest run of sequential dependencies. Memoized
// DFS; a node seen again while still on the stack breaks the cycle with
// length zero so cyclic input stays finite.
func longestChain(process *domain.ProcessData) int {
	if len(process.Steps) == 0 {
		return 0
	}

	adj := make(map[string][]string, len(process.Steps))
	for i := range process.Steps {
		adj[process.Steps[i].StepName] = nil
	}
	for i := range process.Steps {
		s := &process.Steps[i]
		for _, dep := range s.DependsOn {
			if _, ok := adj[dep]; ok {
				adj[dep] = append(adj[dep], s.StepName)
			}
		}
	}

	memo := make(map[string]int, len(adj))
	onStack := make(map[string]bool, len(adj))

	var dfs func(node string) int
	dfs = func(node string) int {
		if v, ok := memo[node]; ok {
			return v
		}
		if onStack[node] {
			return 0
		}
		onStack[node] = true
		maxChild := 0
		for _, child := range adj[node] {
			if l := dfs(child); l > maxChild {
				maxChild = l
			}
		}
		onStack[node] = false
		memo[node] = 1 + maxChild
		return memo[node]
	}

	longest := 0
	for i := range process.Steps {
		if l := dfs(process.Steps[i].StepName); l > longest {
			longest = l
		}
	}
	return longest
}

// FormatForModel renders metrics as structured Markdown the model can
// reason about.
func FormatForModel(m *domain.ProcessMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Process: %s\n", m.ProcessName)
	b.WriteString("\n## Summary\n")
	fmt.Fprintf(&b, "- Total steps: %d\n", m.StepCount)
	fmt.Fprintf(&b, "- Total time: %.1f hours\n", m.TotalTimeHours)
	fmt.Fprintf(&b, "- Total cost: $%.2f\n", m.TotalCost)
	b.WriteString("\n## Step Details\n\n")
	b.WriteString("| # | Step | Time | Time% | Cost | Cost% | Errors | Resources | Type | Downstream |\n")
	b.WriteString("|---|------|------|-------|------|-------|--------|-----------|------|------------|\n")

	for i := range m.Steps {
		s := &m.Steps[i]
		var flags []string
		if s.IsLongest {
			flags = append(flags, "longest")
		}
		if s.IsMostExpensive {
			flags = append(flags, "costly")
		}
		if s.IsHighestError {
			flags = append(flags, "error-prone")
		}
		flagStr := ""
		if len(flags) > 0 {
			flagStr = " (" + strings.Join(flags, ", ") + ")"
		}
		fmt.Fprintf(&b, "| %d | %s%s | %.1fh | %.0f%% | $%.0f | %.0f%% | %.0f%% | %d | %s | %d |\n",
			s.StepIndex+1, s.StepName, flagStr,
			s.TimeHours, s.TimePct,
			s.Cost, s.CostPct,
			s.ErrorRatePct, s.Resources,
			s.StepType, s.DownstreamCount)
	}

	p := &m.Patterns
	b.WriteString("\n## Patterns Detected\n")
	fmt.Fprintf(&b, "- Review steps: %d (%.0f%% of steps)\n", p.ReviewStepCount, p.ReviewPctOfSteps)
	fmt.Fprintf(&b, "- Time in reviews: %.0f%%\n", p.TimeInReviewsPct)
	fmt.Fprintf(&b, "- External touchpoints: %d\n", p.ExternalTouchpoints)
	fmt.Fprintf(&b, "- Creative work steps: %d (%.0f%% of time)\n", p.CreativeStepCount, p.TimeInCreativePct)
	fmt.Fprintf(&b, "- Longest sequential chain: %d steps\n", p.SequentialChainLength)
	fmt.Fprintf(&b, "- Parallel opportunities: %d steps\n", p.ParallelOpportunities)
	b.WriteString("\n## Data Quality\n")
	fmt.Fprintf(&b, "- Has all timing data: %s\n", yesNo(m.HasAllTimes))
	fmt.Fprintf(&b, "- Has all cost data: %s\n", yesNo(m.HasAllCosts))
	fmt.Fprintf(&b, "- Has error rates: %s\n", yesNo(m.HasErrorRates))
	fmt.Fprintf(&b, "- Has dependency info: %s", yesNo(m.HasDependencies))

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
