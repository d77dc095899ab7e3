// Package prompts assembles every model prompt in the system. Builders are
// pure string assembly so behavior is testable without a model.
package prompts

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

const systemBase = `You are ProcessIQ, a senior operations consultant who analyzes business processes.

Your job is to find where a process genuinely loses time, money, or quality, and to say so plainly. You reason about the process like an experienced practitioner:
- Metrics flag candidates; judgment decides. A long step is not automatically a problem. A review step is not automatically waste.
- Distinguish core value work from overhead. Some expensive steps are exactly why the customer pays.
- Ground every claim in the data you were given. If the data cannot support a claim, lower your confidence instead of inventing evidence.
- Respect the stated business constraints. A recommendation the business cannot act on is worse than none.
- Prefer a small number of high-conviction findings over an exhaustive list of maybes.

Be direct and concrete. Write for a busy operations manager, not for another consultant.`

// System returns the base system prompt, extended with business context
// when a profile is available.
func System(profile *domain.BusinessProfile) string {
	if profile == nil {
		return systemBase
	}
	ctx := BusinessContext(profile)
	if ctx == "" {
		return systemBase
	}
	return systemBase + "\n\nBusiness context:\n" + ctx
}

// BusinessContext renders the profile as prompt-ready lines. Empty fields
// are omitted; an all-empty profile renders as "".
func BusinessContext(p *domain.BusinessProfile) string {
	if p == nil {
		return ""
	}
	var lines []string
	if label := p.IndustryLabel(); label != "" {
		lines = append(lines, "Industry: "+label)
	}
	if p.CompanySize != "" {
		lines = append(lines, "Company size: "+string(p.CompanySize))
	}
	if p.RegulatoryEnvironment != "" {
		lines = append(lines, "Regulatory environment: "+string(p.RegulatoryEnvironment))
	}
	if len(p.TypicalConstraints) > 0 {
		lines = append(lines, "Typical constraints: "+strings.Join(p.TypicalConstraints, ", "))
	}
	if len(p.PreferredFrameworks) > 0 {
		lines = append(lines, "Preferred frameworks: "+strings.Join(p.PreferredFrameworks, ", "))
	}
	if len(p.PreviousImprovements) > 0 {
		lines = append(lines, "Previous improvements: "+strings.Join(p.PreviousImprovements, ", "))
	}
	if len(p.RejectedApproaches) > 0 {
		lines = append(lines, "Approaches rejected before: "+strings.Join(p.RejectedApproaches, ", "))
	}
	if p.Notes != "" {
		lines = append(lines, "Notes: "+p.Notes)
	}
	return strings.Join(lines, "\n")
}

// ConstraintsSummary renders active constraints as one semicolon-joined
// line for prompts. Unset limits are skipped.
func ConstraintsSummary(c *domain.Constraints) string {
	if c == nil {
		return "No specific constraints"
	}
	var parts []string
	if c.BudgetLimit != nil && *c.BudgetLimit != 0 {
		parts = append(parts, "Budget limit: $"+groupThousands(int64(math.Round(*c.BudgetLimit))))
	}
	if c.CannotHire {
		parts = append(parts, "Cannot hire new staff")
	}
	if c.MustMaintainAuditTrail {
		parts = append(parts, "Must maintain audit trail")
	}
	if c.MaxImplementationWeeks != nil && *c.MaxImplementationWeeks != 0 {
		parts = append(parts, fmt.Sprintf("Max implementation time: %d weeks", *c.MaxImplementationWeeks))
	}
	if c.MaxErrorRateIncreasePct != 0 {
		parts = append(parts, fmt.Sprintf("Max acceptable error rate increase: %g%%", c.MaxErrorRateIncreasePct))
	}
	if c.Priority != "" {
		parts = append(parts, "Priority: "+string(c.Priority))
	}
	if len(parts) == 0 {
		return "No specific constraints"
	}
	return strings.Join(parts, "; ")
}

// FeedbackHistory renders past suggestion outcomes for a process so the
// model can avoid re-proposing what the business already rejected.
// Records render in the order given; an empty history renders as "".
func FeedbackHistory(memories []domain.AnalysisMemory) string {
	var b strings.Builder
	for _, m := range memories {
		if len(m.SuggestionsAccepted) > 0 {
			fmt.Fprintf(&b, "Accepted previously: %s\n", strings.Join(m.SuggestionsAccepted, "; "))
		}
		if len(m.SuggestionsRejected) > 0 {
			fmt.Fprintf(&b, "Rejected previously: %s\n", strings.Join(m.SuggestionsRejected, "; "))
			for _, reason := range m.RejectionReasons {
				fmt.Fprintf(&b, "  Reason given: %s\n", reason)
			}
		}
		if m.OutcomeNotes != "" {
			fmt.Fprintf(&b, "Outcome notes: %s\n", m.OutcomeNotes)
		}
	}
	return strings.TrimSpace(b.String())
}

// Analysis builds the core analysis prompt. The model receives computed
// metrics as text and must return the structured verdict as JSON.
// Optional sections are skipped when empty.
func Analysis(metricsText, businessContext, constraintsSummary, concerns, feedbackHistory string) string {
	var b strings.Builder
	b.WriteString(`Analyze this business process. The metrics below were computed from the user's data; your job is the judgment layer on top of them.

## Process metrics

`)
	b.WriteString(metricsText)
	if businessContext != "" {
		b.WriteString("\n\n## Business context\n\n")
		b.WriteString(businessContext)
	}
	if constraintsSummary != "" {
		b.WriteString("\n\n## Constraints\n\n")
		b.WriteString(constraintsSummary)
	}
	if concerns != "" {
		b.WriteString("\n\n## User concerns\n\n")
		b.WriteString(concerns)
	}
	if feedbackHistory != "" {
		b.WriteString("\n\n## Feedback on previous recommendations\n\n")
		b.WriteString(feedbackHistory)
	}
	b.WriteString(`

## What to do

1. Summarize what this process is for in one or two sentences.
2. Name the structural patterns you see (long review chains, external hand-offs, error-prone steps, single-person bottlenecks).
3. Identify real issues. For each one, state which steps are affected, your root cause hypothesis, and the evidence from the metrics that supports it.
4. For each issue worth fixing, give a recommendation: what to change, the expected benefit, how feasible it is under the constraints, and the concrete next steps.
5. Just as important: name steps that look expensive in the metrics but are core value work, and say why they should be left alone.
6. List the follow-up questions that would most improve this analysis.

## Output format

Respond with a single JSON object and nothing else:

{
  "process_summary": "...",
  "patterns": ["..."],
  "issues": [
    {
      "title": "...",
      "severity": "high|medium|low",
      "affected_steps": ["step name"],
      "root_cause_hypothesis": "...",
      "evidence": ["..."]
    }
  ],
  "recommendations": [
    {
      "title": "...",
      "addresses_issue": "issue title",
      "description": "...",
      "expected_benefit": "...",
      "feasibility": "...",
      "risks": ["..."],
      "affected_steps": ["step name"],
      "prerequisites": ["..."],
      "plain_explanation": "one paragraph a non-specialist understands",
      "concrete_next_steps": ["..."]
    }
  ],
  "not_problems": [
    {
      "step_name": "...",
      "why_not_a_problem": "...",
      "appears_problematic_because": "..."
    }
  ],
  "follow_up_questions": ["..."],
  "confidence_notes": "what you are unsure about and why",
  "reasoning": "short account of how you reached these conclusions"
}

Every "addresses_issue" must repeat the exact title of an issue from "issues". Use only step names that appear in the metrics.`)
	return b.String()
}

// Investigation seeds the tool loop after a successful initial analysis:
// the issues found so far plus the instruction to verify before finalizing.
func Investigation(insight *domain.AnalysisInsight) string {
	var b strings.Builder
	b.WriteString("Your initial analysis identified the following issues:\n\n")
	for i := range insight.Issues {
		issue := &insight.Issues[i]
		fmt.Fprintf(&b, "%d. %s (severity: %s)", i+1, issue.Title, issue.Severity)
		if len(issue.AffectedSteps) > 0 {
			fmt.Fprintf(&b, " affecting: %s", strings.Join(issue.AffectedSteps, ", "))
		}
		b.WriteString("\n")
		if issue.RootCauseHypothesis != "" {
			fmt.Fprintf(&b, "   Hypothesis: %s\n", issue.RootCauseHypothesis)
		}
	}
	b.WriteString(`
Before the analysis is finalized, investigate as needed using the available tools:
- analyze_dependency_impact: quantify how one step affects the rest of the process.
- validate_root_cause: test a root cause hypothesis against the step data.
- check_constraint_feasibility: check a recommendation against the active constraints.

Call tools only where the extra data would change or strengthen a conclusion. When you have what you need, reply without tool calls and the analysis will be finalized.`)
	return b.String()
}

// Clarification asks the model to generate questions for the user when
// the provided data is too thin to analyze. confidence is 0..1.
func Clarification(confidence float64, phase string, dataGaps, partialResults []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `The process analysis cannot proceed with acceptable confidence.

Current confidence: %.0f%%
Phase: %s
`, confidence*100, phase)
	if len(dataGaps) > 0 {
		b.WriteString("\nMissing data:\n")
		for _, gap := range dataGaps {
			b.WriteString("- " + gap + "\n")
		}
	}
	if len(partialResults) > 0 {
		b.WriteString("\nWhat the analysis produced so far:\n")
		for _, r := range partialResults {
			b.WriteString("- " + r + "\n")
		}
	}
	b.WriteString(`
Write at most 3 short questions that would close the most important gaps. Ask for one thing per question, in plain language, and make rough answers acceptable ("a ballpark figure is fine"). Output the questions as a numbered list and nothing else.`)
	return b.String()
}

// ImprovementSuggestions asks for data-quality hints right after
// extraction, before any analysis has run.
func ImprovementSuggestions(processName string, stepCount, withTime, withCost, withErrors, withDeps int, dataGaps []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `A process was just extracted from the user's description. Suggest how the user could improve the data before analysis.

Process: %s
Steps: %d
Steps with time estimates: %d of %d
Steps with cost data: %d of %d
Steps with error rates: %d of %d
Steps with dependencies: %d of %d
`, processName, stepCount, withTime, stepCount, withCost, stepCount, withErrors, stepCount, withDeps, stepCount)
	if len(dataGaps) > 0 {
		b.WriteString("\nKnown gaps:\n")
		for _, gap := range dataGaps {
			b.WriteString("- " + gap + "\n")
		}
	}
	b.WriteString(`
Write 2 or 3 short, encouraging suggestions for what to add and why it matters for the analysis. Address the user directly. Output the suggestions as a numbered list and nothing else.`)
	return b.String()
}

// Followup builds the prompt for answering a question about a finished
// analysis. history carries recent conversational turns, oldest first.
func Followup(insight *domain.AnalysisInsight, question string, history []domain.Message, businessContext, constraintsSummary string) string {
	var b strings.Builder
	b.WriteString("The user has a question about a completed process analysis.\n\n## Analysis results\n\n")
	if insight.ProcessSummary != "" {
		b.WriteString(insight.ProcessSummary + "\n")
	}
	if len(insight.Issues) > 0 {
		b.WriteString("\nIssues found:\n")
		for i := range insight.Issues {
			issue := &insight.Issues[i]
			fmt.Fprintf(&b, "- %s (severity: %s)", issue.Title, issue.Severity)
			if issue.RootCauseHypothesis != "" {
				b.WriteString(": " + issue.RootCauseHypothesis)
			}
			b.WriteString("\n")
		}
	}
	if len(insight.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for i := range insight.Recommendations {
			rec := &insight.Recommendations[i]
			fmt.Fprintf(&b, "- %s: %s\n", rec.Title, rec.Description)
		}
	}
	if len(insight.NotProblems) > 0 {
		b.WriteString("\nSteps judged healthy:\n")
		for i := range insight.NotProblems {
			np := &insight.NotProblems[i]
			fmt.Fprintf(&b, "- %s: %s\n", np.StepName, np.WhyNotAProblem)
		}
	}
	if len(insight.InvestigationFindings) > 0 {
		b.WriteString("\nInvestigation findings:\n")
		for _, f := range insight.InvestigationFindings {
			b.WriteString("- " + f + "\n")
		}
	}
	if businessContext != "" {
		b.WriteString("\n## Business context\n\n" + businessContext + "\n")
	}
	if constraintsSummary != "" {
		b.WriteString("\n## Constraints\n\n" + constraintsSummary + "\n")
	}
	if len(history) > 0 {
		b.WriteString("\n## Recent conversation\n\n")
		for _, msg := range history {
			label := "Advisor"
			if msg.Role == domain.RoleUser {
				label = "User"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, msg.Content)
		}
	}
	b.WriteString("\n## Question\n\n" + question + `

Answer the question directly using the analysis above. If the analysis does not cover it, say so rather than speculating. Keep the answer short.`)
	return b.String()
}

// groupThousands formats n with comma separators.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
