package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

func TestMemoryCheckpointStoreRoundTrip(t *testing.T) {
	store := NewMemoryCheckpointStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, ok)

	state := sparseState()
	state.Phase = domain.PhaseAwaitingInput
	require.NoError(t, store.Put(ctx, "t-1", state))

	// the store holds a copy, not the caller's pointer
	state.Phase = domain.PhaseComplete

	got, ok, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseAwaitingInput, got.Phase)

	// and hands out copies too
	got.Process.Name = "changed"
	again, _, err := store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Invoice handling", again.Process.Name)

	require.NoError(t, store.Delete(ctx, "t-1"))
	_, ok, err = store.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryRunHistory(t *testing.T) {
	history := NewMemoryRunHistory()
	ctx := context.Background()

	_, err := history.GetRun(ctx, "r-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, history.SaveRun(ctx, ports.RunRecord{ID: "r-1", UserID: "u-1", ProcessName: "A", CreatedAtUnix: 100, UpdatedAtUnix: 100}))
	require.NoError(t, history.SaveRun(ctx, ports.RunRecord{ID: "r-2", UserID: "u-1", ProcessName: "B", CreatedAtUnix: 200, UpdatedAtUnix: 200}))
	require.NoError(t, history.SaveRun(ctx, ports.RunRecord{ID: "r-3", UserID: "u-2", ProcessName: "C", CreatedAtUnix: 300, UpdatedAtUnix: 300}))

	got, err := history.GetRun(ctx, "r-2")
	require.NoError(t, err)
	assert.Equal(t, "B", got.ProcessName)

	// replacing a record keeps its original creation time
	require.NoError(t, history.SaveRun(ctx, ports.RunRecord{ID: "r-1", UserID: "u-1", ProcessName: "A2", CreatedAtUnix: 999, UpdatedAtUnix: 400}))
	got, err = history.GetRun(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "A2", got.ProcessName)
	assert.Equal(t, int64(100), got.CreatedAtUnix)
	assert.Equal(t, int64(400), got.UpdatedAtUnix)

	runs, err := history.ListRunsByUser(ctx, "u-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r-2", runs[0].ID)
	assert.Equal(t, "r-1", runs[1].ID)

	limited, err := history.ListRunsByUser(ctx, "u-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "r-2", limited[0].ID)
}

func TestMemoryAnalysisMemories(t *testing.T) {
	memories := NewMemoryAnalysisMemories()
	ctx := context.Background()

	require.NoError(t, memories.SaveMemory(ctx, domain.AnalysisMemory{ID: "m-1", ProcessName: "Invoice Handling"}))
	require.NoError(t, memories.SaveMemory(ctx, domain.AnalysisMemory{ID: "m-2", ProcessName: "invoice handling"}))
	require.NoError(t, memories.SaveMemory(ctx, domain.AnalysisMemory{ID: "m-3", ProcessName: "Other"}))

	got, err := memories.ListMemories(ctx, "INVOICE HANDLING", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m-2", got[0].ID)
	assert.Equal(t, "m-1", got[1].ID)

	one, err := memories.ListMemories(ctx, "invoice handling", 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "m-2", one[0].ID)

	none, err := memories.ListMemories(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
