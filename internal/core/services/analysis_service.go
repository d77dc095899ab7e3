package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/SkybrushThriftwood/processIQ/internal/prompts"
	"github.com/google/uuid"
)

// Error codes surfaced on AnalysisReport so API callers can branch without
// parsing messages.
const (
	ErrCodeNoResults     = "no_results"
	ErrCodeEmptyInput    = "empty_input"
	ErrCodeUnknownThread = "unknown_thread"
	ErrCodeConfiguration = "configuration_error"
	ErrCodeModelFailure  = "model_transient_error"
	ErrCodeInvalidData   = "data_invariant_error"
	ErrCodeUnexpected    = "unexpected_error"
)

// feedbackHistoryLimit caps how many past analysis records feed the prompt.
const feedbackHistoryLimit = 5

// followupHistoryLimit caps the conversational turns passed to the model.
const followupHistoryLimit = 10

// AnalysisRequest carries everything needed to start an analysis run.
// ThreadID continues an existing conversation; when empty a new thread is
// minted, scoped to UserID when one is given.
type AnalysisRequest struct {
	Process     *domain.ProcessData
	Constraints *domain.Constraints
	Profile     *domain.BusinessProfile
	ThreadID    string
	UserID      string
	Mode        string
	Provider    string
	MaxCycles   *int
}

// FollowupRequest is a question about a finished analysis. History carries
// recent conversational turns, oldest first; the caller owns the chat
// transcript, the service only keeps analysis state.
type FollowupRequest struct {
	ThreadID string
	Question string
	History  []domain.Message
}

// AnalysisReport is the structured outcome of every front-door operation.
// Failures are reported, not raised: IsError and ErrorCode classify what
// went wrong while partial progress (trace, insight) stays readable.
type AnalysisReport struct {
	Message                string                  `json:"message"`
	Process                *domain.ProcessData     `json:"process,omitempty"`
	Insight                *domain.AnalysisInsight `json:"insight,omitempty"`
	Confidence             *domain.ConfidenceScore `json:"confidence,omitempty"`
	ThreadID               string                  `json:"thread_id"`
	NeedsInput             bool                    `json:"needs_input"`
	SuggestedQuestions     []string                `json:"suggested_questions,omitempty"`
	ImprovementSuggestions string                  `json:"improvement_suggestions,omitempty"`
	DraftInsight           *domain.AnalysisInsight `json:"draft_insight,omitempty"`
	ReasoningTrace         []string                `json:"reasoning_trace,omitempty"`
	IsError                bool                    `json:"is_error"`
	ErrorCode              string                  `json:"error_code,omitempty"`
}

// AnalysisService is the front door for analysis runs: it resolves thread
// identity, drives the orchestrator and turns run state into an
// AnalysisReport the kernel and CLI can hand back as-is.
type AnalysisService struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
	scorer       *ConfidenceScorer
	gateway      ports.ModelGateway
	checkpoints  ports.CheckpointStore
	history      ports.RunHistoryRepository
	memories     ports.MemoryRepository
}

// NewAnalysisService wires the service. history and memories may be nil
// when persistence is disabled; the service then skips bookkeeping and
// feedback history.
func NewAnalysisService(
	logger *slog.Logger,
	orchestrator *Orchestrator,
	scorer *ConfidenceScorer,
	gateway ports.ModelGateway,
	checkpoints ports.CheckpointStore,
	history ports.RunHistoryRepository,
	memories ports.MemoryRepository,
) *AnalysisService {
	return &AnalysisService{
		logger:       logger,
		orchestrator: orchestrator,
		scorer:       scorer,
		gateway:      gateway,
		checkpoints:  checkpoints,
		history:      history,
		memories:     memories,
	}
}

// NewThreadID mints a thread id. With a user id the thread is scoped to
// that user as "{userID}:{conversationID}" so their runs can be listed.
func NewThreadID(userID string) string {
	if userID == "" {
		return uuid.NewString()
	}
	return userID + ":" + uuid.NewString()
}

// UserIDFromThread extracts the user id from a scoped thread id, or ""
// for an unscoped one.
func UserIDFromThread(threadID string) string {
	if i := strings.Index(threadID, ":"); i > 0 {
		return threadID[:i]
	}
	return ""
}

// Analyze runs a full analysis on confirmed process data and reports the
// outcome. A clarification pause comes back as NeedsInput with the
// questions to relay; the caller resumes through RespondToClarification.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisReport, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = NewThreadID(req.UserID)
	}

	var processName string
	if req.Process != nil {
		processName = req.Process.Name
	}
	s.logger.Info("starting analysis", "process", processName, "thread_id", threadID)

	confidence := s.scorer.Score(req.Process, req.Constraints, req.Profile)

	state := domain.NewInitialState(req.Process, req.Constraints, req.Profile, req.Mode, req.Provider)
	state.MaxCyclesOverride = req.MaxCycles
	state.FeedbackHistory = s.feedbackHistory(ctx, processName)

	return s.run(ctx, threadID, state, confidence)
}

// RespondToClarification resumes a paused run with the user's answer. The
// answer is folded into the profile notes so both the confidence scorer
// and later prompts see it as business context.
func (s *AnalysisService) RespondToClarification(ctx context.Context, threadID, response string) (*AnalysisReport, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return &AnalysisReport{
			Message:    "I didn't receive any input. Please describe your process or upload a file.",
			ThreadID:   threadID,
			NeedsInput: true,
			IsError:    true,
			ErrorCode:  ErrCodeEmptyInput,
		}, nil
	}

	state, ok, err := s.loadState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &AnalysisReport{
			Message:   "No saved conversation found for this thread. Please start a new analysis.",
			ThreadID:  threadID,
			IsError:   true,
			ErrorCode: ErrCodeUnknownThread,
		}, nil
	}

	s.logger.Info("resuming analysis with user response", "thread_id", threadID)
	mergeUserContext(state, response)
	state.UserResponse = response

	confidence := s.scorer.Score(state.Process, state.Constraints, state.Profile)
	return s.run(ctx, threadID, state, confidence)
}

// run drives the orchestrator and assembles the report. Precedence follows
// what the user should see first: a pause for input, then results, then a
// recorded failure, then the empty outcome.
func (s *AnalysisService) run(ctx context.Context, threadID string, state *domain.AgentState, confidence *domain.ConfidenceScore) (*AnalysisReport, error) {
	if err := s.orchestrator.Run(ctx, threadID, state); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return s.errorReport(threadID, err), nil
	}

	s.recordOutcome(ctx, threadID, state)

	if state.NeedsClarification && len(state.ClarificationQuestions) > 0 {
		s.logger.Info("analysis paused for clarification",
			"thread_id", threadID, "questions", len(state.ClarificationQuestions))
		return &AnalysisReport{
			Message:            "I need a bit more information to provide better recommendations.",
			Process:            state.Process,
			Confidence:         confidence,
			ThreadID:           threadID,
			NeedsInput:         true,
			SuggestedQuestions: state.ClarificationQuestions,
			ReasoningTrace:     state.ReasoningTrace,
		}, nil
	}

	if state.Insight != nil {
		s.logger.Info("analysis complete",
			"thread_id", threadID,
			"issues", len(state.Insight.Issues),
			"recommendations", len(state.Insight.Recommendations))
		return &AnalysisReport{
			Message:        InsightSummary(state.Insight),
			Process:        state.Process,
			Insight:        state.Insight,
			Confidence:     confidence,
			ThreadID:       threadID,
			ReasoningTrace: state.ReasoningTrace,
		}, nil
	}

	if state.Error != "" {
		s.logger.Warn("analysis finalized with error", "thread_id", threadID, "error", state.Error)
		return &AnalysisReport{
			Message:        state.Error,
			Process:        state.Process,
			Confidence:     confidence,
			ThreadID:       threadID,
			ReasoningTrace: state.ReasoningTrace,
			IsError:        true,
			ErrorCode:      ErrCodeModelFailure,
		}, nil
	}

	s.logger.Warn("analysis produced no results", "thread_id", threadID)
	return &AnalysisReport{
		Message:        "Analysis completed but could not generate recommendations. This may indicate insufficient data.",
		Process:        state.Process,
		Confidence:     confidence,
		ThreadID:       threadID,
		ReasoningTrace: state.ReasoningTrace,
		IsError:        true,
		ErrorCode:      ErrCodeNoResults,
	}, nil
}

// Followup answers a question about a completed analysis using the saved
// insight and whatever business context the thread carries. Model failures
// degrade to an apologetic message rather than an error return.
func (s *AnalysisService) Followup(ctx context.Context, req FollowupRequest) (*AnalysisReport, error) {
	state, ok, err := s.loadState(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	if !ok || state.Insight == nil {
		return &AnalysisReport{
			Message:  "No analysis results available. Run an analysis first, then ask follow-up questions.",
			ThreadID: req.ThreadID,
		}, nil
	}

	var businessContext, constraintsSummary string
	if state.Profile != nil {
		businessContext = prompts.BusinessContext(state.Profile)
	}
	if state.Constraints != nil {
		constraintsSummary = prompts.ConstraintsSummary(state.Constraints)
	}

	answer, err := s.gateway.Generate(ctx, ports.ModelCall{
		Task:     domain.TaskClarification,
		Provider: state.Provider,
		Mode:     state.AnalysisMode,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: prompts.System(state.Profile)},
			{Role: domain.RoleUser, Content: prompts.Followup(
				state.Insight, req.Question, lastN(req.History, followupHistoryLimit),
				businessContext, constraintsSummary)},
		},
	})
	if err != nil {
		var transient *domain.ModelTransientError
		if errors.As(err, &transient) && transient.Kind == domain.TransientEmpty {
			s.logger.Warn("model returned empty follow-up answer", "thread_id", req.ThreadID)
			return &AnalysisReport{
				Message:  "I wasn't able to generate a response. Could you rephrase your question?",
				ThreadID: req.ThreadID,
			}, nil
		}
		s.logger.Error("follow-up question failed", "thread_id", req.ThreadID, "error", err)
		return &AnalysisReport{
			Message:   "Something went wrong while processing your question. Please try again.",
			ThreadID:  req.ThreadID,
			IsError:   true,
			ErrorCode: ErrCodeModelFailure,
		}, nil
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return &AnalysisReport{
			Message:  "I wasn't able to generate a response. Could you rephrase your question?",
			ThreadID: req.ThreadID,
		}, nil
	}
	return &AnalysisReport{Message: answer, ThreadID: req.ThreadID}, nil
}

// errorReport maps a run error onto the report taxonomy.
func (s *AnalysisService) errorReport(threadID string, err error) *AnalysisReport {
	s.logger.Error("analysis failed", "thread_id", threadID, "error", err)

	report := &AnalysisReport{ThreadID: threadID, IsError: true}
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		report.Message = cfgErr.UserMessage
		report.ErrorCode = ErrCodeConfiguration
	case errors.Is(err, domain.ErrDataInvariant):
		report.Message = err.Error()
		report.ErrorCode = ErrCodeInvalidData
	case errors.Is(err, domain.ErrModelTransient):
		report.Message = err.Error()
		report.ErrorCode = ErrCodeModelFailure
	default:
		report.Message = fmt.Sprintf("Analysis failed unexpectedly: %v", err)
		report.ErrorCode = ErrCodeUnexpected
	}
	return report
}

// loadState reads the thread's checkpoint. A nil store behaves like a miss.
func (s *AnalysisService) loadState(ctx context.Context, threadID string) (*domain.AgentState, bool, error) {
	if s.checkpoints == nil {
		return nil, false, nil
	}
	state, ok, err := s.checkpoints.Get(ctx, threadID)
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint for thread %s: %w", threadID, err)
	}
	return state, ok, nil
}

// feedbackHistory pulls recent suggestion outcomes for the process into
// prompt form. A missing repo or a lookup failure degrades to no history.
func (s *AnalysisService) feedbackHistory(ctx context.Context, processName string) string {
	if s.memories == nil || processName == "" {
		return ""
	}
	records, err := s.memories.ListMemories(ctx, processName, feedbackHistoryLimit)
	if err != nil {
		s.logger.Warn("failed to load analysis memories", "process", processName, "error", err)
		return ""
	}
	return prompts.FeedbackHistory(records)
}

// recordOutcome persists the finished run and its suggestion record. Both
// writes are best effort and detached from the request context; a run is
// never failed by bookkeeping.
func (s *AnalysisService) recordOutcome(ctx context.Context, threadID string, state *domain.AgentState) {
	if state.Phase != domain.PhaseComplete {
		return
	}

	now := time.Now().Unix()
	if s.history != nil {
		rec := ports.RunRecord{
			ID:             uuid.NewString(),
			ThreadID:       threadID,
			UserID:         UserIDFromThread(threadID),
			Phase:          string(state.Phase),
			Error:          state.Error,
			ReasoningTrace: state.ReasoningTrace,
			CreatedAtUnix:  now,
			UpdatedAtUnix:  now,
		}
		if state.Process != nil {
			rec.ProcessName = state.Process.Name
		}
		if state.Insight != nil {
			rec.IssueCount = len(state.Insight.Issues)
			rec.RecommendationCount = len(state.Insight.Recommendations)
		}
		if state.Confidence != nil {
			rec.Confidence = state.Confidence.Score
		}
		if err := s.history.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn("failed to save run record", "thread_id", threadID, "error", err)
		}
	}

	if s.memories != nil && state.Insight != nil && state.Process != nil {
		mem := domain.AnalysisMemory{
			ID:          uuid.NewString(),
			Timestamp:   time.Now().UTC(),
			ProcessName: state.Process.Name,
		}
		for _, issue := range state.Insight.Issues {
			mem.BottlenecksFound = append(mem.BottlenecksFound, issue.Title)
		}
		for _, rec := range state.Insight.Recommendations {
			mem.SuggestionsOffered = append(mem.SuggestionsOffered, rec.Title)
		}
		if err := s.memories.SaveMemory(context.WithoutCancel(ctx), mem); err != nil {
			s.logger.Warn("failed to save analysis memory", "thread_id", threadID, "error", err)
		}
	}
}

// mergeUserContext folds a free-text user reply into the profile notes so
// later scoring and prompting treat it as known business context.
func mergeUserContext(state *domain.AgentState, response string) {
	switch {
	case state.Profile == nil:
		state.Profile = &domain.BusinessProfile{
			Industry:    domain.IndustryOther,
			CompanySize: domain.SizeSmall,
			Notes:       response,
		}
	case state.Profile.Notes != "":
		state.Profile.Notes += "\n" + response
	default:
		state.Profile.Notes = response
	}
}

// InsightSummary is the one-line result message for a finished analysis.
func InsightSummary(insight *domain.AnalysisInsight) string {
	if insight == nil {
		return "Analysis complete."
	}

	var parts []string
	if len(insight.Issues) > 0 {
		if high := insight.HighSeverityCount(); high > 0 {
			parts = append(parts, fmt.Sprintf("%d significant issue%s", high, plural(high)))
		} else {
			parts = append(parts, fmt.Sprintf("%d issue%s", len(insight.Issues), plural(len(insight.Issues))))
		}
	}
	if n := len(insight.Recommendations); n > 0 {
		parts = append(parts, fmt.Sprintf("%d recommendation%s", n, plural(n)))
	}
	if n := len(insight.NotProblems); n > 0 {
		parts = append(parts, fmt.Sprintf("%d area%s that look fine", n, plural(n)))
	}

	if len(parts) == 0 {
		return "Analysis complete."
	}
	return fmt.Sprintf("Analysis complete. Found %s.", strings.Join(parts, ", "))
}

// stepNamePattern pulls the quoted step name out of a gap description
// like "cost for 'Manager review'".
var stepNamePattern = regexp.MustCompile(`for ['"](.+?)['"]`)

// TargetedQuestions turns confidence data gaps into concrete follow-up
// questions for the user. Deterministic, no model call. The list opens
// with a confirmation question and holds at most four gap questions;
// with no recognizable gaps it falls back to three generic ones.
func TargetedQuestions(confidence *domain.ConfidenceScore) []string {
	var questions []string
	if confidence != nil {
		for _, gap := range confidence.DataGaps {
			lower := strings.ToLower(gap)
			switch {
			case strings.Contains(lower, "time for"):
				if step := stepNameFromGap(gap); step != "" {
					questions = append(questions,
						fmt.Sprintf("How long does '%s' typically take? Even a rough estimate helps.", step))
				}
			case strings.Contains(lower, "cost for"):
				if step := stepNameFromGap(gap); step != "" {
					questions = append(questions,
						fmt.Sprintf("What does '%s' cost per instance? Include labor and tools.", step))
				}
			case strings.Contains(lower, "error rate for"):
				if step := stepNameFromGap(gap); step != "" {
					questions = append(questions,
						fmt.Sprintf("How often does '%s' need rework or fail? Even 'rarely' vs 'often' helps.", step))
				}
			case strings.Contains(lower, "no dependencies"):
				questions = append(questions,
					"Which steps depend on others being done first? This helps identify where delays cascade.")
			case strings.Contains(lower, "no constraints"):
				questions = append(questions,
					"Are there any budget limits, hiring freezes, or timeline constraints I should know about?")
			case strings.Contains(lower, "no business profile"):
				questions = append(questions,
					"What industry are you in? This helps me tailor recommendations.")
			}
		}
	}

	seen := make(map[string]struct{}, len(questions))
	unique := make([]string, 0, 4)
	for _, q := range questions {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		unique = append(unique, q)
		if len(unique) == 4 {
			break
		}
	}

	if len(unique) > 0 {
		return append([]string{"Does this look correct?"}, unique...)
	}
	return []string{
		"Does this look correct?",
		"Would you like to add any missing steps?",
		"Are there any constraints I should know about?",
	}
}

func stepNameFromGap(gap string) string {
	m := stepNamePattern.FindStringSubmatch(gap)
	if m == nil {
		return ""
	}
	return m[1]
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}

func lastN(msgs []domain.Message, n int) []domain.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
