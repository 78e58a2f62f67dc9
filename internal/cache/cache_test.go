package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FishWoWater/meshtask/internal/task"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(mr.Addr(), "", 0, logger)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c, mr
}

func sampleTasks() []task.Task {
	return []task.Task{
		{ID: "t1", JobID: "j1", Type: task.TypeTextToMesh, Status: task.StatusQueued, CreatedAt: time.Now().UTC()},
		{ID: "t2", Type: task.TypeImageToMesh, Status: task.StatusProcessing, CreatedAt: time.Now().UTC()},
	}
}

func TestCache_SaveLoadRoundtrip(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, sampleTasks(), "alice"))

	got, err := c.Load(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "j1", got[0].JobID)
	assert.Equal(t, task.StatusProcessing, got[1].Status)
}

func TestCache_LoadMissingSlot(t *testing.T) {
	c, _ := setupTestCache(t)

	got, err := c.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCache_OwnerIsolation(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, sampleTasks(), "bob"))

	got, err := c.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got, "another owner's tasks must not leak")
	assert.False(t, mr.Exists(tasksKey), "mismatched slot must be discarded")
}

func TestCache_AnonymousLoadSkipsOwnerCheck(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, sampleTasks(), "bob"))

	got, err := c.Load(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCache_VersionMismatchDiscardsSlot(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, sampleTasks(), ""))

	// tamper with the stored version tag
	require.NoError(t, mr.Set(tasksKey, `{"version":"0","tasks":[],"last_sync":"2026-01-01T00:00:00Z"}`))

	got, err := c.Load(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, mr.Exists(tasksKey), "stale slot must be cleared")
}

func TestCache_CorruptSlotDiscarded(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(tasksKey, "{not json"))

	got, err := c.Load(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, mr.Exists(tasksKey))
}

func TestCache_Clear(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, sampleTasks(), ""))
	require.NoError(t, c.Clear(ctx))
	assert.False(t, mr.Exists(tasksKey))
}

func TestCache_IdentityRoundtrip(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	got, err := c.Identity(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "missing identity slot means anonymous")

	require.NoError(t, c.SaveIdentity(ctx, Identity{Owner: "alice", Token: "tok"}))

	got, err = c.Identity(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "tok", got.Token)
}
