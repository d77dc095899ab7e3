package duckdb

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestCheckpointRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	state := &domain.AgentState{
		Process: &domain.ProcessData{
			Name: "Expense Approval",
			Steps: []domain.ProcessStep{
				{StepName: "submit", AverageTimeHours: 0.5, ResourcesNeeded: 1},
				{StepName: "approve", AverageTimeHours: 24, ResourcesNeeded: 2, DependsOn: []string{"submit"}},
			},
		},
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You analyze business processes."},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
				{ID: "tc-1", Name: "get_step_details", Arguments: json.RawMessage(`{"step_name":"approve"}`)},
			}},
			{Role: domain.RoleTool, ToolCallID: "tc-1", Name: "get_step_details", Content: `{"error_rate_pct":12}`},
		},
		ReasoningTrace: []string{"extracted 2 steps", "started investigation"},
		Phase:          domain.PhaseAnalysis,
		AnalysisMode:   "balanced",
		Provider:       "openai",
		CycleCount:     1,
	}

	require.NoError(t, repo.Put(ctx, "alice:run-1", state))

	got, ok, err := repo.Get(ctx, "alice:run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseAnalysis, got.Phase)
	assert.Equal(t, "Expense Approval", got.Process.Name)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "tc-1", got.Messages[1].ToolCalls[0].ID)
	assert.JSONEq(t, `{"step_name":"approve"}`, string(got.Messages[1].ToolCalls[0].Arguments))
	assert.Equal(t, []string{"extracted 2 steps", "started investigation"}, got.ReasoningTrace)
	assert.Equal(t, 1, got.CycleCount)

	state.Phase = domain.PhaseComplete
	state.CycleCount = 2
	require.NoError(t, repo.Put(ctx, "alice:run-1", state))

	got, ok, err = repo.Get(ctx, "alice:run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseComplete, got.Phase)
	assert.Equal(t, 2, got.CycleCount)
}

func TestCheckpointMissAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, ok, err := repo.Get(ctx, "alice:absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	require.NoError(t, repo.Put(ctx, "alice:run-1", &domain.AgentState{Phase: domain.PhaseInitialization}))
	require.NoError(t, repo.Delete(ctx, "alice:run-1"))

	_, ok, err = repo.Get(ctx, "alice:run-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a thread with no checkpoint is not an error.
	require.NoError(t, repo.Delete(ctx, "alice:absent"))
}

func TestRunHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC).Unix()
	runs := []ports.RunRecord{
		{
			ID: "run-1", ThreadID: "alice:t1", UserID: "alice",
			ProcessName: "Expense Approval", Phase: "complete",
			IssueCount: 2, RecommendationCount: 3, Confidence: 0.72,
			ReasoningTrace: []string{"extracted 5 steps"},
			CreatedAtUnix:  base, UpdatedAtUnix: base + 30,
		},
		{
			ID: "run-2", ThreadID: "alice:t2", UserID: "alice",
			ProcessName: "Invoice Processing", Phase: "error",
			Error:         "model_transient_error",
			CreatedAtUnix: base + 60, UpdatedAtUnix: base + 90,
		},
		{
			ID: "run-3", ThreadID: "bob:t1", UserID: "bob",
			ProcessName: "Onboarding", Phase: "complete",
			CreatedAtUnix: base + 120, UpdatedAtUnix: base + 150,
		},
	}
	for _, rec := range runs {
		require.NoError(t, repo.SaveRun(ctx, rec))
	}

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Expense Approval", got.ProcessName)
	assert.Equal(t, 2, got.IssueCount)
	assert.InDelta(t, 0.72, got.Confidence, 1e-9)
	assert.Equal(t, []string{"extracted 5 steps"}, got.ReasoningTrace)

	_, err = repo.GetRun(ctx, "run-404")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	list, err := repo.ListRunsByUser(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[0].ID)
	assert.Equal(t, "run-1", list[1].ID)

	list, err = repo.ListRunsByUser(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "run-2", list[0].ID)

	list, err = repo.ListRunsByUser(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestRunHistoryUpdateKeepsCreationTime(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := ports.RunRecord{
		ID: "run-1", ThreadID: "alice:t1", UserID: "alice",
		ProcessName: "Expense Approval", Phase: "analysis",
		CreatedAtUnix: 1_700_000_000, UpdatedAtUnix: 1_700_000_000,
	}
	require.NoError(t, repo.SaveRun(ctx, rec))

	rec.Phase = "complete"
	rec.IssueCount = 4
	rec.CreatedAtUnix = 1_700_009_999
	rec.UpdatedAtUnix = 1_700_000_120
	require.NoError(t, repo.SaveRun(ctx, rec))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "complete", got.Phase)
	assert.Equal(t, 4, got.IssueCount)
	assert.Equal(t, int64(1_700_000_000), got.CreatedAtUnix)
	assert.Equal(t, int64(1_700_000_120), got.UpdatedAtUnix)
}

func TestMemories(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	mems := []domain.AnalysisMemory{
		{
			ID: "mem-1", Timestamp: base, ProcessName: "Expense Approval",
			BottlenecksFound:    []string{"approve"},
			SuggestionsOffered:  []string{"delegate approvals", "batch small claims"},
			SuggestionsAccepted: []string{"delegate approvals"},
			SuggestionsRejected: []string{"batch small claims"},
			RejectionReasons:    []string{"audit policy"},
			OutcomeNotes:        "cycle time halved",
		},
		{ID: "mem-2", Timestamp: base.Add(time.Hour), ProcessName: "expense approval"},
		{ID: "mem-3", Timestamp: base.Add(2 * time.Hour), ProcessName: "Invoice Processing"},
	}
	for _, mem := range mems {
		require.NoError(t, repo.SaveMemory(ctx, mem))
	}

	// Process names match case-insensitively, newest first.
	list, err := repo.ListMemories(ctx, "EXPENSE APPROVAL", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "mem-2", list[0].ID)
	assert.Equal(t, "mem-1", list[1].ID)
	assert.Equal(t, []string{"delegate approvals", "batch small claims"}, list[1].SuggestionsOffered)
	assert.Equal(t, []string{"audit policy"}, list[1].RejectionReasons)
	assert.Equal(t, "cycle time halved", list[1].OutcomeNotes)
	assert.True(t, list[1].Timestamp.Equal(base))

	list, err = repo.ListMemories(ctx, "Expense Approval", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mem-2", list[0].ID)

	list, err = repo.ListMemories(ctx, "Unknown Process", 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetSetting(ctx, "app_config")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, repo.SaveSetting(ctx, "app_config", `{"providers":{"default":"openai"}}`))
	got, err := repo.GetSetting(ctx, "app_config")
	require.NoError(t, err)
	assert.Equal(t, `{"providers":{"default":"openai"}}`, got)

	require.NoError(t, repo.SaveSetting(ctx, "app_config", `{"providers":{"default":"ollama"}}`))
	got, err = repo.GetSetting(ctx, "app_config")
	require.NoError(t, err)
	assert.Equal(t, `{"providers":{"default":"ollama"}}`, got)
}

func TestRepositoryReopensFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "processiq.db")
	ctx := context.Background()

	repo, err := NewRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.SaveSetting(ctx, "app_config", `{"analysis":{"mode":"deep_analysis"}}`))
	require.NoError(t, repo.Put(ctx, "alice:t1", &domain.AgentState{Phase: domain.PhaseAwaitingInput}))
	require.NoError(t, repo.Close())

	repo, err = NewRepository(path)
	require.NoError(t, err)
	defer repo.Close() //nolint:errcheck

	got, err := repo.GetSetting(ctx, "app_config")
	require.NoError(t, err)
	assert.Equal(t, `{"analysis":{"mode":"deep_analysis"}}`, got)

	state, ok, err := repo.Get(ctx, "alice:t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseAwaitingInput, state.Phase)
}
