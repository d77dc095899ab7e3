package domain

import "strings"

// Issue is one problem the model identified in the process.
type Issue struct {
	Title               string   `json:"title"`
	Severity            string   `json:"severity"`
	AffectedSteps       []string `json:"affected_steps,omitempty"`
	RootCauseHypothesis string   `json:"root_cause_hypothesis,omitempty"`
	Evidence            []string `json:"evidence,omitempty"`
}

// Recommendation is one improvement the model proposes, linked to the
// issue it addresses by title.
type Recommendation struct {
	Title             string   `json:"title"`
	AddressesIssue    string   `json:"addresses_issue"`
	Description       string   `json:"description"`
	ExpectedBenefit   string   `json:"expected_benefit,omitempty"`
	Feasibility       string   `json:"feasibility,omitempty"`
	Risks             []string `json:"risks,omitempty"`
	AffectedSteps     []string `json:"affected_steps,omitempty"`
	Prerequisites     []string `json:"prerequisites,omitempty"`
	PlainExplanation  string   `json:"plain_explanation,omitempty"`
	ConcreteNextSteps []string `json:"concrete_next_steps,omitempty"`
}

// NotAProblem marks a step that looks suspicious in the metrics but is
// actually core value work.
type NotAProblem struct {
	StepName                  string `json:"step_name"`
	WhyNotAProblem            string `json:"why_not_a_problem"`
	AppearsProblematicBecause string `json:"appears_problematic_because,omitempty"`
}

// AnalysisInsight is the model's structured analysis of a process.
// InvestigationFindings is not model output: the orchestrator folds the
// tool results collected during investigation into it when finalizing.
type AnalysisInsight struct {
	ProcessSummary        string           `json:"process_summary"`
	Patterns              []string         `json:"patterns,omitempty"`
	Issues                []Issue          `json:"issues,omitempty"`
	Recommendations       []Recommendation `json:"recommendations,omitempty"`
	NotProblems           []NotAProblem    `json:"not_problems,omitempty"`
	InvestigationFindings []string         `json:"investigation_findings,omitempty"`
	FollowUpQuestions     []string         `json:"follow_up_questions,omitempty"`
	ConfidenceNotes       string           `json:"confidence_notes,omitempty"`
	Reasoning             string           `json:"reasoning,omitempty"`
}

// HighSeverityCount counts issues flagged high.
func (a *AnalysisInsight) HighSeverityCount() int {
	n := 0
	for i := range a.Issues {
		if a.Issues[i].Severity == "high" {
			n++
		}
	}
	return n
}

// NormalizeLinks rewrites each recommendation's AddressesIssue to the
// canonical issue title it refers to. Resolution is best effort: exact
// match, then case-insensitive, then unique substring. Links that cannot
// be resolved are left untouched.
func (a *AnalysisInsight) NormalizeLinks() {
	if len(a.Issues) == 0 || len(a.Recommendations) == 0 {
		return
	}
	for i := range a.Recommendations {
		ref := a.Recommendations[i].AddressesIssue
		if ref == "" {
			continue
		}
		if title, ok := a.resolveIssueTitle(ref); ok {
			a.Recommendations[i].AddressesIssue = title
		}
	}
}

func (a *AnalysisInsight) resolveIssueTitle(ref string) (string, bool) {
	for i := range a.Issues {
		if a.Issues[i].Title == ref {
			return ref, true
		}
	}
	lowRef := strings.ToLower(strings.TrimSpace(ref))
	for i := range a.Issues {
		if strings.ToLower(a.Issues[i].Title) == lowRef {
			return a.Issues[i].Title, true
		}
	}
	match := ""
	count := 0
	for i := range a.Issues {
		lowTitle := strings.ToLower(a.Issues[i].Title)
		if strings.Contains(lowTitle, lowRef) || strings.Contains(lowRef, lowTitle) {
			match = a.Issues[i].Title
			count++
		}
	}
	if count == 1 {
		return match, true
	}
	return "", false
}

// ClarifyingQuestion is one question to put to the user when input data is
// too thin to analyze well.
type ClarifyingQuestion struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	TargetField *string  `json:"target_field,omitempty"`
	InputType   string   `json:"input_type"`
	Options     []string `json:"options,omitempty"`
	Default     string   `json:"default,omitempty"`
	Hint        string   `json:"hint,omitempty"`
	Required    bool     `json:"required"`
}

// ClarificationResponse is the user's answer to one question.
type ClarificationResponse struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
	Skipped    bool   `json:"skipped"`
}

// ClarificationBundle groups the questions for one pause.
type ClarificationBundle struct {
	Questions         []ClarifyingQuestion `json:"questions"`
	Context           string               `json:"context,omitempty"`
	CanProceedWithout bool                 `json:"can_proceed_without"`
}
