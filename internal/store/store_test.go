package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FishWoWater/meshtask/internal/task"
)

type fakePersister struct {
	saves [][]task.Task
	err   error
}

func (p *fakePersister) Save(_ context.Context, tasks []task.Task) error {
	p.saves = append(p.saves, tasks)
	return p.err
}

func setupStore(t *testing.T) (*Store, *fakePersister) {
	t.Helper()
	p := &fakePersister{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(p, logger), p
}

func TestStore_CreateAssignsUniqueIDs(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, s.Tasks(), 100)
}

func TestStore_CreateDefaults(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()

	id := s.Create(ctx, task.Task{Type: task.TypeImageToMesh})

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, task.StatusQueued, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Len(t, s.Active(), 1)
	assert.Len(t, p.saves, 1, "create must persist")
}

func TestStore_IndexConsistency(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	id := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})

	inIndexes := func() (bool, bool, bool) {
		in := func(tasks []task.Task) bool {
			for _, tk := range tasks {
				if tk.ID == id {
					return true
				}
			}
			return false
		}
		return in(s.Active()), in(s.Completed()), in(s.Failed())
	}

	a, c, f := inIndexes()
	assert.True(t, a)
	assert.False(t, c)
	assert.False(t, f)

	processing := task.StatusProcessing
	s.Update(ctx, id, task.Patch{Status: &processing})
	a, c, f = inIndexes()
	assert.True(t, a)
	assert.False(t, c)
	assert.False(t, f)

	completed := task.StatusCompleted
	s.Update(ctx, id, task.Patch{Status: &completed})
	a, c, f = inIndexes()
	assert.False(t, a)
	assert.True(t, c)
	assert.False(t, f)

	// manual retry moves the task back to the active index
	queued := task.StatusQueued
	s.Update(ctx, id, task.Patch{Status: &queued})
	a, c, f = inIndexes()
	assert.True(t, a)
	assert.False(t, c)
	assert.False(t, f)
}

func TestStore_UpdateUnknownIDIsNoop(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()

	processing := task.StatusProcessing
	s.Update(ctx, "no-such-id", task.Patch{Status: &processing})

	assert.Empty(t, s.Tasks())
	assert.Empty(t, p.saves, "no-op must not persist")
}

func TestStore_UpdateDropsInvalidPatch(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	id := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})

	msg := "boom"
	s.Update(ctx, id, task.Patch{Error: &msg})

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Empty(t, got.Error)
	assert.Equal(t, task.StatusQueued, got.Status)
}

func TestStore_UpdateDropsIllegalTransition(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	id := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})
	completed := task.StatusCompleted
	s.Update(ctx, id, task.Patch{Status: &completed})

	processing := task.StatusProcessing
	s.Update(ctx, id, task.Patch{Status: &processing})

	got, _ := s.Get(id)
	assert.Equal(t, task.StatusCompleted, got.Status, "terminal status must not be downgraded")
	assert.Len(t, s.Completed(), 1)
}

func TestStore_Remove(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	id := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})
	s.Remove(ctx, id)

	_, ok := s.Get(id)
	assert.False(t, ok)
	assert.Empty(t, s.Active())

	// removing again is a no-op
	s.Remove(ctx, id)
	assert.Empty(t, s.Tasks())
}

func TestStore_ClearTerminal(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	completed := task.StatusCompleted
	failed := task.StatusFailed

	keep := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})
	done1 := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})
	done2 := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})
	broken := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})

	s.Update(ctx, done1, task.Patch{Status: &completed})
	s.Update(ctx, done2, task.Patch{Status: &completed})
	msg := "boom"
	s.Update(ctx, broken, task.Patch{Status: &failed, Error: &msg})

	s.ClearTerminal(ctx, task.StatusCompleted)

	assert.Empty(t, s.Completed())
	assert.Len(t, s.Failed(), 1)
	_, ok := s.Get(keep)
	assert.True(t, ok)
	_, ok = s.Get(done1)
	assert.False(t, ok)

	// non-terminal statuses are rejected
	s.ClearTerminal(ctx, task.StatusQueued)
	_, ok = s.Get(keep)
	assert.True(t, ok)
}

func TestStore_PersistFailureDoesNotBlockMutations(t *testing.T) {
	s, p := setupStore(t)
	p.err = errors.New("redis down")
	ctx := context.Background()

	id := s.Create(ctx, task.Task{Type: task.TypeTextToMesh})

	_, ok := s.Get(id)
	assert.True(t, ok, "task must survive a failed persist")
}

func TestStore_Hydrate(t *testing.T) {
	s, p := setupStore(t)
	ctx := context.Background()

	s.Create(ctx, task.Task{Type: task.TypeTextToMesh})

	s.Hydrate(ctx, []task.Task{
		{ID: "a", Status: task.StatusQueued, Type: task.TypeTextToMesh},
		{ID: "b", Status: task.StatusCompleted, Type: task.TypeImageToMesh},
		{ID: "c", Status: task.StatusFailed, Type: task.TypeAutoRigging},
	})

	assert.Len(t, s.Tasks(), 3)
	assert.Len(t, s.Active(), 1)
	assert.Len(t, s.Completed(), 1)
	assert.Len(t, s.Failed(), 1)

	last := p.saves[len(p.saves)-1]
	assert.Len(t, last, 3, "hydrate must persist the merged set")
}
