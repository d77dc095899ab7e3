package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

func newTestAnalysisService(t *testing.T, gw ports.ModelGateway, store ports.CheckpointStore, history ports.RunHistoryRepository, memories ports.MemoryRepository) *AnalysisService {
	t.Helper()
	scorer, err := NewConfidenceScorer(testLogger(), DefaultScorerWeights, 0.6)
	require.NoError(t, err)
	orch := NewOrchestrator(testLogger(), gw, scorer, NewMetricsEngine(testLogger()), store, enabledSettings())
	return NewAnalysisService(testLogger(), orch, scorer, gw, store, history, memories)
}

func richRequest() AnalysisRequest {
	st := richState()
	return AnalysisRequest{
		Process:     st.Process,
		Constraints: st.Constraints,
		Profile:     st.Profile,
		Mode:        st.AnalysisMode,
		Provider:    st.Provider,
	}
}

func TestAnalysisServiceAnalyzePausesForClarification(t *testing.T) {
	gw := &fakeGateway{generateContent: "1. How long does each step take?\n2. What does each step cost?"}
	store := NewMemoryCheckpointStore()
	svc := newTestAnalysisService(t, gw, store, nil, nil)

	report, err := svc.Analyze(context.Background(), AnalysisRequest{Process: sparseState().Process})
	require.NoError(t, err)

	assert.Equal(t, "I need a bit more information to provide better recommendations.", report.Message)
	assert.True(t, report.NeedsInput)
	assert.False(t, report.IsError)
	assert.NotEmpty(t, report.ThreadID)
	require.NotNil(t, report.Confidence)
	assert.InDelta(t, 0.315, report.Confidence.Score, 1e-9)
	assert.Equal(t, []string{
		"How long does each step take?",
		"What does each step cost?",
	}, report.SuggestedQuestions)
	assert.NotEmpty(t, report.ReasoningTrace)

	saved, ok, getErr := store.Get(context.Background(), report.ThreadID)
	require.NoError(t, getErr)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseAwaitingInput, saved.Phase)
}

func TestAnalysisServiceAnalyzeCompletesAndRecords(t *testing.T) {
	gw := &fakeGateway{
		toolSupport:  true,
		insightQueue: []insightStep{{insight: approvalInsight()}},
		chatQueue:    []chatStep{noToolsReply()},
	}
	store := NewMemoryCheckpointStore()
	history := NewMemoryRunHistory()
	memories := NewMemoryAnalysisMemories()
	svc := newTestAnalysisService(t, gw, store, history, memories)

	req := richRequest()
	req.UserID = "u-100"
	report, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Analysis complete. Found 1 significant issue, 1 recommendation.", report.Message)
	assert.False(t, report.IsError)
	assert.False(t, report.NeedsInput)
	require.NotNil(t, report.Insight)
	assert.True(t, strings.HasPrefix(report.ThreadID, "u-100:"))
	require.NotNil(t, report.Confidence)
	assert.InDelta(t, 0.93, report.Confidence.Score, 1e-9)

	runs, listErr := history.ListRunsByUser(context.Background(), "u-100", 0)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	rec := runs[0]
	assert.Equal(t, report.ThreadID, rec.ThreadID)
	assert.Equal(t, "u-100", rec.UserID)
	assert.Equal(t, "Purchase approvals", rec.ProcessName)
	assert.Equal(t, string(domain.PhaseComplete), rec.Phase)
	assert.Equal(t, 1, rec.IssueCount)
	assert.Equal(t, 1, rec.RecommendationCount)
	assert.InDelta(t, 0.93, rec.Confidence, 1e-9)
	assert.Empty(t, rec.Error)
	assert.NotEmpty(t, rec.ReasoningTrace)

	mems, memErr := memories.ListMemories(context.Background(), "Purchase approvals", 0)
	require.NoError(t, memErr)
	require.Len(t, mems, 1)
	assert.Equal(t, []string{"Approval bottleneck"}, mems[0].BottlenecksFound)
	assert.Equal(t, []string{"Delegate small approvals"}, mems[0].SuggestionsOffered)
	assert.False(t, mems[0].Timestamp.IsZero())
}

func TestAnalysisServiceFeedbackHistoryReachesPrompt(t *testing.T) {
	memories := NewMemoryAnalysisMemories()
	require.NoError(t, memories.SaveMemory(context.Background(), domain.AnalysisMemory{
		ID:                  "m1",
		ProcessName:         "Purchase approvals",
		SuggestionsAccepted: []string{"Automated intake form"},
		SuggestionsRejected: []string{"Outsource approvals"},
		RejectionReasons:    []string{"Compliance requires in-house sign-off"},
	}))

	gw := &fakeGateway{insightQueue: []insightStep{{insight: &domain.AnalysisInsight{ProcessSummary: "Healthy process."}}}}
	svc := newTestAnalysisService(t, gw, NewMemoryCheckpointStore(), nil, memories)

	report, err := svc.Analyze(context.Background(), richRequest())
	require.NoError(t, err)
	assert.Equal(t, "Analysis complete.", report.Message)

	require.Len(t, gw.insightSeen, 1)
	prompt := gw.insightSeen[0].Messages[1].Content
	assert.Contains(t, prompt, "## Feedback on previous recommendations")
	assert.Contains(t, prompt, "Accepted previously: Automated intake form")
	assert.Contains(t, prompt, "Rejected previously: Outsource approvals")
	assert.Contains(t, prompt, "Reason given: Compliance requires in-house sign-off")
}

func TestAnalysisServiceAnalyzeSurfacesModelFailure(t *testing.T) {
	transient := domain.NewModelTransientError(domain.TransientTransport, "model unreachable", nil)
	gw := &fakeGateway{insightQueue: []insightStep{{err: transient}, {err: transient}}}
	history := NewMemoryRunHistory()
	svc := newTestAnalysisService(t, gw, NewMemoryCheckpointStore(), history, nil)

	req := richRequest()
	req.UserID = "u-7"
	report, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, report.IsError)
	assert.Equal(t, ErrCodeModelFailure, report.ErrorCode)
	assert.Equal(t, "LLM analysis failed. Please try again.", report.Message)
	assert.Nil(t, report.Insight)
	assert.Contains(t, report.ReasoningTrace, "LLM analysis failed")

	// the failed run still lands in history with its error recorded
	runs, listErr := history.ListRunsByUser(context.Background(), "u-7", 0)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, "LLM analysis failed. Please try again.", runs[0].Error)
	assert.Equal(t, 0, runs[0].IssueCount)
}

func TestAnalysisServiceAnalyzeRejectsNilProcess(t *testing.T) {
	svc := newTestAnalysisService(t, &fakeGateway{}, NewMemoryCheckpointStore(), nil, nil)

	report, err := svc.Analyze(context.Background(), AnalysisRequest{})
	require.NoError(t, err)

	assert.True(t, report.IsError)
	assert.Equal(t, ErrCodeInvalidData, report.ErrorCode)
	assert.NotEmpty(t, report.Message)
	assert.NotEmpty(t, report.ThreadID)
}

func TestAnalysisServiceAnalyzeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestAnalysisService(t, &fakeGateway{}, NewMemoryCheckpointStore(), nil, nil)
	report, err := svc.Analyze(ctx, richRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestAnalysisServiceRespondEmptyInput(t *testing.T) {
	svc := newTestAnalysisService(t, &fakeGateway{}, NewMemoryCheckpointStore(), nil, nil)

	report, err := svc.RespondToClarification(context.Background(), "t-1", "  \n ")
	require.NoError(t, err)

	assert.True(t, report.IsError)
	assert.Equal(t, ErrCodeEmptyInput, report.ErrorCode)
	assert.Equal(t, "I didn't receive any input. Please describe your process or upload a file.", report.Message)
	assert.True(t, report.NeedsInput)
	assert.Equal(t, "t-1", report.ThreadID)
}

func TestAnalysisServiceRespondUnknownThread(t *testing.T) {
	svc := newTestAnalysisService(t, &fakeGateway{}, NewMemoryCheckpointStore(), nil, nil)

	report, err := svc.RespondToClarification(context.Background(), "missing", "here you go")
	require.NoError(t, err)

	assert.True(t, report.IsError)
	assert.Equal(t, ErrCodeUnknownThread, report.ErrorCode)
	assert.Equal(t, "No saved conversation found for this thread. Please start a new analysis.", report.Message)
}

func TestAnalysisServiceRespondMergesAnswerAndRechecks(t *testing.T) {
	gw := &fakeGateway{generateContent: "1. How long does the step take?"}
	store := NewMemoryCheckpointStore()
	svc := newTestAnalysisService(t, gw, store, nil, nil)

	first, err := svc.Analyze(context.Background(), AnalysisRequest{Process: sparseState().Process})
	require.NoError(t, err)
	require.True(t, first.NeedsInput)

	second, err := svc.RespondToClarification(context.Background(), first.ThreadID, "We are a small retail shop.")
	require.NoError(t, err)

	// one free-text answer is not enough data, so the run pauses again
	assert.True(t, second.NeedsInput)
	assert.Equal(t, first.ThreadID, second.ThreadID)
	require.NotNil(t, second.Confidence)
	assert.InDelta(t, 0.375, second.Confidence.Score, 1e-9)

	saved, ok, getErr := store.Get(context.Background(), first.ThreadID)
	require.NoError(t, getErr)
	require.True(t, ok)
	require.NotNil(t, saved.Profile)
	assert.Equal(t, domain.IndustryOther, saved.Profile.Industry)
	assert.Equal(t, "We are a small retail shop.", saved.Profile.Notes)
	assert.Empty(t, saved.UserResponse)
	assert.Contains(t, saved.ReasoningTrace, "Context check: confidence=37.5% (very low), identified 4 critical gaps")
}

func TestMergeUserContext(t *testing.T) {
	state := &domain.AgentState{}

	mergeUserContext(state, "first note")
	require.NotNil(t, state.Profile)
	assert.Equal(t, domain.IndustryOther, state.Profile.Industry)
	assert.Equal(t, domain.SizeSmall, state.Profile.CompanySize)
	assert.Equal(t, "first note", state.Profile.Notes)

	mergeUserContext(state, "second note")
	assert.Equal(t, "first note\nsecond note", state.Profile.Notes)
}

func TestAnalysisServiceFollowupWithoutResults(t *testing.T) {
	svc := newTestAnalysisService(t, &fakeGateway{}, NewMemoryCheckpointStore(), nil, nil)

	report, err := svc.Followup(context.Background(), FollowupRequest{ThreadID: "t-1", Question: "What should I fix first?"})
	require.NoError(t, err)

	assert.False(t, report.IsError)
	assert.Equal(t, "No analysis results available. Run an analysis first, then ask follow-up questions.", report.Message)
}

func TestAnalysisServiceFollowupAnswers(t *testing.T) {
	gw := &fakeGateway{generateContent: "Start with the approval bottleneck; it blocks everything downstream."}
	store := NewMemoryCheckpointStore()

	state := richState()
	state.Insight = approvalInsight()
	state.Phase = domain.PhaseComplete
	require.NoError(t, store.Put(context.Background(), "t-9", state))

	svc := newTestAnalysisService(t, gw, store, nil, nil)
	report, err := svc.Followup(context.Background(), FollowupRequest{
		ThreadID: "t-9",
		Question: "Where do I start?",
		History: []domain.Message{
			{Role: domain.RoleUser, Content: "Thanks for the analysis."},
			{Role: domain.RoleAssistant, Content: "Happy to walk through it."},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Start with the approval bottleneck; it blocks everything downstream.", report.Message)
	assert.Equal(t, "t-9", report.ThreadID)
	assert.False(t, report.IsError)

	require.Len(t, gw.generateSeen, 1)
	call := gw.generateSeen[0]
	assert.Equal(t, domain.TaskClarification, call.Task)
	assert.Equal(t, "openai", call.Provider)
	require.Len(t, call.Messages, 2)
	prompt := call.Messages[1].Content
	assert.Contains(t, prompt, "## Question\n\nWhere do I start?")
	assert.Contains(t, prompt, "User: Thanks for the analysis.")
	assert.Contains(t, prompt, "Advisor: Happy to walk through it.")
	assert.Contains(t, prompt, "- Approval bottleneck (severity: high)")
	assert.Contains(t, prompt, "## Business context")
	assert.Contains(t, prompt, "## Constraints")
	assert.Contains(t, prompt, "Budget limit: $50,000")
}

func TestAnalysisServiceFollowupDegrades(t *testing.T) {
	store := NewMemoryCheckpointStore()
	state := richState()
	state.Insight = approvalInsight()
	state.Phase = domain.PhaseComplete
	require.NoError(t, store.Put(context.Background(), "t-9", state))

	ask := func(t *testing.T, gw *fakeGateway) *AnalysisReport {
		t.Helper()
		svc := newTestAnalysisService(t, gw, store, nil, nil)
		report, err := svc.Followup(context.Background(), FollowupRequest{ThreadID: "t-9", Question: "And?"})
		require.NoError(t, err)
		return report
	}

	t.Run("empty reply asks to rephrase", func(t *testing.T) {
		gw := &fakeGateway{generateErr: domain.NewModelTransientError(domain.TransientEmpty, "no content", nil)}
		report := ask(t, gw)
		assert.False(t, report.IsError)
		assert.Equal(t, "I wasn't able to generate a response. Could you rephrase your question?", report.Message)
	})

	t.Run("blank reply asks to rephrase", func(t *testing.T) {
		gw := &fakeGateway{generateContent: "   \n"}
		report := ask(t, gw)
		assert.False(t, report.IsError)
		assert.Equal(t, "I wasn't able to generate a response. Could you rephrase your question?", report.Message)
	})

	t.Run("transport failure apologizes", func(t *testing.T) {
		gw := &fakeGateway{generateErr: domain.NewModelTransientError(domain.TransientTransport, "connection refused", nil)}
		report := ask(t, gw)
		assert.True(t, report.IsError)
		assert.Equal(t, ErrCodeModelFailure, report.ErrorCode)
		assert.Equal(t, "Something went wrong while processing your question. Please try again.", report.Message)
	})
}

func TestThreadIDHelpers(t *testing.T) {
	anon := NewThreadID("")
	assert.NotEmpty(t, anon)
	assert.Empty(t, UserIDFromThread(anon))

	scoped := NewThreadID("user-7")
	assert.True(t, strings.HasPrefix(scoped, "user-7:"))
	assert.Equal(t, "user-7", UserIDFromThread(scoped))
	assert.NotEqual(t, scoped, NewThreadID("user-7"))
}

func TestInsightSummary(t *testing.T) {
	cases := []struct {
		name    string
		insight *domain.AnalysisInsight
		want    string
	}{
		{"nil insight", nil, "Analysis complete."},
		{"empty insight", &domain.AnalysisInsight{}, "Analysis complete."},
		{
			"high severity counted separately",
			&domain.AnalysisInsight{
				Issues: []domain.Issue{
					{Title: "A", Severity: "high"},
					{Title: "B", Severity: "medium"},
				},
			},
			"Analysis complete. Found 1 significant issue.",
		},
		{
			"no high severity counts all issues",
			&domain.AnalysisInsight{
				Issues: []domain.Issue{
					{Title: "A", Severity: "medium"},
					{Title: "B", Severity: "low"},
				},
			},
			"Analysis complete. Found 2 issues.",
		},
		{
			"all parts joined",
			&domain.AnalysisInsight{
				Issues: []domain.Issue{{Title: "A", Severity: "high"}},
				Recommendations: []domain.Recommendation{
					{Title: "R1"}, {Title: "R2"},
				},
				NotProblems: []domain.NotAProblem{{StepName: "S"}},
			},
			"Analysis complete. Found 1 significant issue, 2 recommendations, 1 area that look fine.",
		},
		{
			"recommendations only",
			&domain.AnalysisInsight{
				Recommendations: []domain.Recommendation{{Title: "R1"}, {Title: "R2"}, {Title: "R3"}},
			},
			"Analysis complete. Found 3 recommendations.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InsightSummary(tc.insight))
		})
	}
}

func TestTargetedQuestions(t *testing.T) {
	t.Run("maps gaps to questions capped at four", func(t *testing.T) {
		conf := &domain.ConfidenceScore{DataGaps: []string{
			"time for 'Submit invoice'",
			"cost for 'Submit invoice'",
			"error rate for 'Submit invoice'",
			"No dependencies defined between steps",
			"No constraints provided",
			"No business profile provided",
		}}
		got := TargetedQuestions(conf)
		require.Len(t, got, 5)
		assert.Equal(t, "Does this look correct?", got[0])
		assert.Equal(t, "How long does 'Submit invoice' typically take? Even a rough estimate helps.", got[1])
		assert.Equal(t, "What does 'Submit invoice' cost per instance? Include labor and tools.", got[2])
		assert.Equal(t, "How often does 'Submit invoice' need rework or fail? Even 'rarely' vs 'often' helps.", got[3])
		assert.Equal(t, "Which steps depend on others being done first? This helps identify where delays cascade.", got[4])
	})

	t.Run("dedupes repeated questions", func(t *testing.T) {
		conf := &domain.ConfidenceScore{DataGaps: []string{
			"time for 'Review'",
			"time for 'Review'",
			"No constraints provided",
		}}
		got := TargetedQuestions(conf)
		require.Len(t, got, 3)
		assert.Equal(t, "How long does 'Review' typically take? Even a rough estimate helps.", got[1])
		assert.Equal(t, "Are there any budget limits, hiring freezes, or timeline constraints I should know about?", got[2])
	})

	t.Run("falls back to generic questions", func(t *testing.T) {
		want := []string{
			"Does this look correct?",
			"Would you like to add any missing steps?",
			"Are there any constraints I should know about?",
		}
		assert.Equal(t, want, TargetedQuestions(nil))
		assert.Equal(t, want, TargetedQuestions(&domain.ConfidenceScore{}))
		// a gap without a quoted step name produces no question
		assert.Equal(t, want, TargetedQuestions(&domain.ConfidenceScore{DataGaps: []string{"time for the intake step"}}))
	})
}
