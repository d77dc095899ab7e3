package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/SkybrushThriftwood/processIQ/internal/prompts"
)

// stage is one node of the analysis state machine.
type stage int

const (
	stageCheckContext stage = iota
	stageRequestClarification
	stageInitialAnalysis
	stageInvestigate
	stageToolExec
	stageFinalize
	stageAwaitInput
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageCheckContext:
		return "check_context"
	case stageRequestClarification:
		return "request_clarification"
	case stageInitialAnalysis:
		return "initial_analysis"
	case stageInvestigate:
		return "investigate"
	case stageToolExec:
		return "tool_exec"
	case stageFinalize:
		return "finalize"
	case stageAwaitInput:
		return "await_input"
	case stageDone:
		return "done"
	}
	return "unknown"
}

// postInteractionThreshold is the lower confidence bar applied once the
// user has had a chance to add data. Below it the run keeps asking;
// at or above it the analysis proceeds with what it has.
const postInteractionThreshold = 0.4

// analysisFailedMessage is the user-facing error after the model call and
// its single retry both failed.
const analysisFailedMessage = "LLM analysis failed. Please try again."

// Orchestrator drives one analysis run through the state machine:
//
//	CheckContext -> {RequestClarification <-> CheckContext}
//	             -> InitialAnalysis -> {Investigate <-> ToolExec}* -> Finalize
//
// A run is strictly sequential: one transition, at most one model call,
// repeat. Each stage applies its state updates at the end and the state is
// checkpointed after every transition, so an interrupted run resumes from
// the last completed stage. Stage failures never escape Run: they route to
// Finalize with the error recorded on the state.
type Orchestrator struct {
	logger      *slog.Logger
	gateway     ports.ModelGateway
	scorer      *ConfidenceScorer
	engine      *MetricsEngine
	checkpoints ports.CheckpointStore
	cfg         domain.AnalysisSettings
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(
	logger *slog.Logger,
	gateway ports.ModelGateway,
	scorer *ConfidenceScorer,
	engine *MetricsEngine,
	checkpoints ports.CheckpointStore,
	cfg domain.AnalysisSettings,
) *Orchestrator {
	return &Orchestrator{
		logger:      logger,
		gateway:     gateway,
		scorer:      scorer,
		engine:      engine,
		checkpoints: checkpoints,
		cfg:         cfg,
	}
}

// runContext is per-run scratch space for values the stages share but
// that do not belong in the serialized state.
type runContext struct {
	metrics *domain.ProcessMetrics
	tools   *domain.ToolRegistry
}

// Run advances the state machine until the run completes or pauses for
// user input. The returned error is non-nil only when the run could not
// start (missing process data) or was cancelled; model and tool failures
// finalize the run with the error recorded on the state instead.
func (o *Orchestrator) Run(ctx context.Context, threadID string, state *domain.AgentState) error {
	if state == nil || state.Process == nil {
		return domain.NewDataInvariantError("process", "analysis run requires process data")
	}

	run := &runContext{}
	st := o.entryStage(state)
	o.logger.Info("starting analysis run",
		"thread_id", threadID,
		"phase", string(state.Phase),
		"entry_stage", st.String())

	for st != stageDone && st != stageAwaitInput {
		if err := ctx.Err(); err != nil {
			state.Error = err.Error()
			o.finalize(state)
			o.checkpoint(ctx, threadID, state)
			return err
		}
		st = o.step(ctx, run, state, st)
		o.checkpoint(ctx, threadID, state)
	}

	o.logger.Info("analysis run stopped",
		"thread_id", threadID,
		"phase", string(state.Phase),
		"stage", st.String())
	return nil
}

// entryStage maps the checkpointed phase back onto the state machine.
func (o *Orchestrator) entryStage(state *domain.AgentState) stage {
	switch state.Phase {
	case domain.PhaseAwaitingInput:
		if state.UserResponse != "" {
			o.logger.Debug("user response received, re-checking context")
			state.UserResponse = ""
			return stageCheckContext
		}
		if state.Confidence != nil && state.Confidence.Score >= postInteractionThreshold {
			o.logger.Debug("no new input but confidence acceptable, proceeding",
				"confidence", state.Confidence.Score)
			return stageInitialAnalysis
		}
		return stageCheckContext
	case domain.PhaseNeedsClarification:
		return stageRequestClarification
	case domain.PhaseAnalysis:
		if state.Insight != nil && len(state.Messages) > 0 {
			return stageInvestigate
		}
		return stageInitialAnalysis
	case domain.PhaseFinalization:
		return stageFinalize
	case domain.PhaseComplete:
		return stageDone
	default:
		return stageCheckContext
	}
}

func (o *Orchestrator) step(ctx context.Context, run *runContext, state *domain.AgentState, st stage) stage {
	switch st {
	case stageCheckContext:
		return o.checkContext(state)
	case stageRequestClarification:
		return o.requestClarification(ctx, state)
	case stageInitialAnalysis:
		return o.initialAnalysis(ctx, run, state)
	case stageInvestigate:
		return o.investigate(ctx, run, state)
	case stageToolExec:
		return o.execTools(ctx, run, state)
	case stageFinalize:
		return o.finalize(state)
	default:
		return stageDone
	}
}

// checkpoint persists the state after a stage. The write is detached from
// the request context so cancellation cannot lose the last transition.
// Failures are logged, not fatal: a run with a stale checkpoint is still
// better than one aborted mid-flight.
func (o *Orchestrator) checkpoint(ctx context.Context, threadID string, state *domain.AgentState) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.Put(context.WithoutCancel(ctx), threadID, state); err != nil {
		o.logger.Warn("failed to checkpoint run state", "thread_id", threadID, "error", err)
	}
}

func (o *Orchestrator) checkContext(state *domain.AgentState) stage {
	o.logger.Info("stage: check context sufficiency")

	score := o.scorer.Score(state.Process, state.Constraints, state.Profile)
	reasoning := fmt.Sprintf("Context check: confidence=%.1f%% (%s)", score.Score*100, score.Level)

	if !score.Sufficient {
		critical := CriticalGaps(score.DataGaps)
		reasoning += fmt.Sprintf(", identified %d critical gaps", len(critical))
		o.logger.Info("context insufficient, needs clarification", "confidence", score.Score)

		state.Confidence = score
		state.DataGaps = score.DataGaps
		state.NeedsClarification = true
		state.ClarificationQuestions = firstN(score.Suggestions, 3)
		state.AppendTrace(reasoning)
		state.Phase = domain.PhaseNeedsClarification
		return stageRequestClarification
	}

	o.logger.Info("context sufficient, proceeding to analysis", "confidence", score.Score)
	state.Confidence = score
	state.DataGaps = score.DataGaps
	state.NeedsClarification = false
	state.AppendTrace(reasoning)
	state.Phase = domain.PhaseAnalysis
	return stageInitialAnalysis
}

func (o *Orchestrator) requestClarification(ctx context.Context, state *domain.AgentState) stage {
	o.logger.Info("stage: request clarification, awaiting user input")

	confidence := 0.5
	if state.Confidence != nil {
		confidence = state.Confidence.Score
	}

	llmQuestions, usedModel := o.clarificationQuestions(ctx, state, confidence)

	questions := llmQuestions
	if len(questions) == 0 {
		questions = state.ClarificationQuestions
	}
	if len(questions) == 0 {
		for _, gap := range firstN(state.DataGaps, 3) {
			questions = append(questions, "Please provide: "+gap)
		}
	}

	reasoning := fmt.Sprintf("Requesting clarification: %d questions", len(questions))
	if usedModel {
		reasoning += " (LLM generated)"
	}

	state.ClarificationQuestions = questions
	state.AppendTrace(reasoning)
	state.Phase = domain.PhaseAwaitingInput
	return stageAwaitInput
}

// clarificationQuestions asks the model to phrase the questions. The
// second return reports whether the model produced anything at all; a
// reply that parses into zero questions is still used verbatim. Failures
// degrade to the caller's fallback chain instead of retrying.
func (o *Orchestrator) clarificationQuestions(ctx context.Context, state *domain.AgentState, confidence float64) ([]string, bool) {
	if !o.cfg.ExplanationsEnabled {
		return nil, false
	}

	content, err := o.gateway.Generate(ctx, ports.ModelCall{
		Task:     domain.TaskClarification,
		Provider: state.Provider,
		Mode:     state.AnalysisMode,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: prompts.System(nil)},
			{Role: domain.RoleUser, Content: prompts.Clarification(confidence, "initial_analysis", state.DataGaps, nil)},
		},
	})
	if err != nil {
		o.logger.Warn("clarification question generation failed", "error", err)
		return nil, false
	}

	questions := parseQuestionLines(content)
	if len(questions) == 0 {
		o.logger.Warn("could not parse model response into questions, using as-is")
		return []string{content}, true
	}
	o.logger.Info("model generated clarification questions", "count", len(questions))
	return firstN(questions, 3), true
}

func (o *Orchestrator) initialAnalysis(ctx context.Context, run *runContext, state *domain.AgentState) stage {
	o.logger.Info("stage: initial analysis")

	run.metrics = o.engine.Compute(state.Process)
	metricsText := FormatForModel(run.metrics)
	o.logger.Debug("metrics calculated",
		"steps", run.metrics.StepCount,
		"total_hours", run.metrics.TotalTimeHours,
		"reviews", run.metrics.Patterns.ReviewStepCount,
		"external", run.metrics.Patterns.ExternalTouchpoints)

	insight, err := o.runAnalysis(ctx, state, metricsText)
	if err != nil {
		o.logger.Warn("model analysis failed, no insight produced", "error", err)
		state.Error = analysisFailedMessage
		state.AppendTrace("LLM analysis failed")
		state.Phase = domain.PhaseFinalization
		return stageFinalize
	}

	insight.NormalizeLinks()
	o.logger.Info("model analysis complete",
		"issues", len(insight.Issues),
		"recommendations", len(insight.Recommendations),
		"not_problems", len(insight.NotProblems))

	state.Insight = insight
	state.Messages = []domain.Message{
		{Role: domain.RoleSystem, Content: prompts.System(state.Profile)},
		{Role: domain.RoleUser, Content: prompts.Investigation(insight)},
	}
	state.AppendTrace(fmt.Sprintf(
		"LLM analysis: %d issues identified, %d recommendations, %d steps identified as core value (not waste)",
		len(insight.Issues), len(insight.Recommendations), len(insight.NotProblems)))
	return o.routeAfterAnalysis(state)
}

// runAnalysis runs the structured analysis call, retrying exactly once on
// a transient failure (empty reply, transport fault or malformed output).
func (o *Orchestrator) runAnalysis(ctx context.Context, state *domain.AgentState, metricsText string) (*domain.AnalysisInsight, error) {
	if !o.cfg.ExplanationsEnabled {
		o.logger.Debug("model explanations disabled, skipping analysis call")
		return nil, errors.New("model analysis disabled by configuration")
	}

	var industry string
	if state.Profile != nil {
		industry = state.Profile.IndustryLabel()
	}
	var constraintsSummary string
	if state.Constraints != nil {
		constraintsSummary = prompts.ConstraintsSummary(state.Constraints)
	}

	call := ports.ModelCall{
		Task:     domain.TaskAnalysis,
		Provider: state.Provider,
		Mode:     state.AnalysisMode,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: prompts.System(state.Profile)},
			{Role: domain.RoleUser, Content: prompts.Analysis(metricsText, industry, constraintsSummary, "", state.FeedbackHistory)},
		},
	}

	insight, err := o.gateway.GenerateInsight(ctx, call)
	if err == nil {
		return insight, nil
	}
	if !errors.Is(err, domain.ErrModelTransient) {
		return nil, err
	}
	o.logger.Warn("analysis call failed, retrying once", "error", err)
	return o.gateway.GenerateInsight(ctx, call)
}

// routeAfterAnalysis skips investigation when it is disabled or the
// analysis found nothing actionable.
func (o *Orchestrator) routeAfterAnalysis(state *domain.AgentState) stage {
	maxCycles := o.maxCycles(state)
	if maxCycles == 0 {
		o.logger.Debug("investigation disabled (max_cycles=0)")
		return stageFinalize
	}
	if state.Insight == nil || len(state.Insight.Issues) == 0 {
		o.logger.Debug("no issues found, skipping investigation")
		return stageFinalize
	}
	o.logger.Debug("proceeding to investigation", "issues", len(state.Insight.Issues))
	return stageInvestigate
}

// maxCycles returns the effective investigation budget. A set override
// wins even when zero, which is how a caller disables investigation for
// one run.
func (o *Orchestrator) maxCycles(state *domain.AgentState) int {
	if state.MaxCyclesOverride != nil {
		return *state.MaxCyclesOverride
	}
	return o.cfg.MaxCycles
}

func (o *Orchestrator) investigate(ctx context.Context, run *runContext, state *domain.AgentState) stage {
	if !o.gateway.SupportsTools(state.Provider) {
		o.logger.Info("provider does not support tool calling, skipping investigation",
			"provider", state.Provider)
		state.AppendTrace("Investigation skipped: provider does not support tool calling")
		return stageFinalize
	}

	if run.tools == nil {
		run.tools = NewInvestigationTools(o.logger, o.engine, state, run.metrics)
	}
	o.logger.Info("stage: investigate", "cycle", state.CycleCount)

	resp, err := o.chatWithRetry(ctx, ports.ModelCall{
		Task:     domain.TaskAnalysis,
		Provider: state.Provider,
		Mode:     state.AnalysisMode,
		Messages: state.Messages,
		Tools:    run.tools.Defs(),
	})
	if err != nil {
		o.logger.Warn("investigation call failed, finalizing with current results", "error", err)
		state.Error = err.Error()
		return stageFinalize
	}

	state.Messages = append(state.Messages, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	maxCycles := o.maxCycles(state)
	if len(resp.ToolCalls) > 0 && state.CycleCount < maxCycles {
		state.CycleCount++
		state.AppendTrace(fmt.Sprintf("Investigation cycle %d: model requested %d tool call(s)",
			state.CycleCount, len(resp.ToolCalls)))
		return stageToolExec
	}

	o.logger.Debug("investigation loop ended",
		"cycles", state.CycleCount, "tool_calls", len(resp.ToolCalls))
	state.AppendTrace(fmt.Sprintf("Investigation complete after %d cycle(s)", state.CycleCount))
	return stageFinalize
}

// chatWithRetry mirrors the analysis retry policy for the tool loop.
func (o *Orchestrator) chatWithRetry(ctx context.Context, call ports.ModelCall) (*ports.ChatResponse, error) {
	resp, err := o.gateway.Chat(ctx, call)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, domain.ErrModelTransient) {
		return nil, err
	}
	o.logger.Warn("investigation call failed, retrying once", "error", err)
	return o.gateway.Chat(ctx, call)
}

// execTools runs every tool call from the last assistant message in the
// order issued. Results are appended to the message history in that same
// order; the model conditions on it on the next investigate pass.
func (o *Orchestrator) execTools(ctx context.Context, run *runContext, state *domain.AgentState) stage {
	last, ok := state.LastMessage()
	if !ok || len(last.ToolCalls) == 0 {
		o.logger.Warn("tool execution stage reached without pending tool calls")
		return stageInvestigate
	}

	calls := last.ToolCalls
	o.logger.Info("stage: execute investigation tools", "count", len(calls))

	results := make([]domain.Message, 0, len(calls))
	for _, call := range calls {
		output := run.tools.Execute(ctx, call)
		o.logger.Debug("tool executed", "tool", call.Name, "output_chars", len(output))
		results = append(results, domain.Message{
			Role:       domain.RoleTool,
			Content:    output,
			ToolCallID: call.ID,
			Name:       call.Name,
		})
	}

	state.Messages = append(state.Messages, results...)
	state.AppendTrace(fmt.Sprintf("Executed %d investigation tool(s)", len(calls)))
	return stageInvestigate
}

// finalize folds the investigation's tool outputs into the insight,
// writes the closing trace entry and marks the run complete. Reading the
// outputs back from the message history keeps the fold correct across a
// resumed run.
func (o *Orchestrator) finalize(state *domain.AgentState) stage {
	o.logger.Info("stage: finalize analysis")

	if state.Insight != nil {
		var findings []string
		for i := range state.Messages {
			if state.Messages[i].Role == domain.RoleTool {
				findings = append(findings, state.Messages[i].Name+": "+state.Messages[i].Content)
			}
		}
		if len(findings) > 0 {
			state.Insight.InvestigationFindings = findings
		}
	}

	confidence := 0.0
	if state.Confidence != nil {
		confidence = state.Confidence.Score
	}

	switch {
	case state.Error != "":
		state.AppendTrace("Analysis finalized with error: " + state.Error)
	case state.Insight != nil:
		state.AppendTrace(fmt.Sprintf("Analysis finalized: %d issues, %d recommendations, confidence=%.0f%%",
			len(state.Insight.Issues), len(state.Insight.Recommendations), confidence*100))
	default:
		state.AppendTrace("Analysis finalized with no results")
	}

	o.logger.Info("analysis finalized", "confidence_pct", confidence*100)
	state.Phase = domain.PhaseComplete
	return stageDone
}

// parseQuestionLines extracts questions from a numbered or bulleted model
// reply. Only single-digit numbering parses; anything else falls through
// so the caller can use the raw reply.
func parseQuestionLines(content string) []string {
	var questions []string
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if len(line) > 2 && line[0] >= '0' && line[0] <= '9' && isQuestionSeparator(line[1]) {
			questions = append(questions, strings.TrimSpace(line[2:]))
		} else if strings.HasPrefix(line, "-") {
			questions = append(questions, strings.TrimSpace(line[1:]))
		}
	}
	return questions
}

func isQuestionSeparator(c byte) bool {
	return c == '.' || c == ')' || c == ':'
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
