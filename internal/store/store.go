package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FishWoWater/meshtask/internal/task"
)

// Persister writes the full task set to durable storage after a mutation.
// Persistence is best-effort: the store logs failures and keeps going.
type Persister interface {
	Save(ctx context.Context, tasks []task.Task) error
}

// Store is the authoritative in-memory task set, with derived id indexes for
// active (queued/processing), completed and failed tasks. Every mutation is a
// critical section so the indexes stay consistent with each task's status.
type Store struct {
	mu        sync.Mutex
	tasks     []*task.Task
	byID      map[string]*task.Task
	active    []string
	completed []string
	failed    []string
	persister Persister
	logger    *slog.Logger
}

func New(p Persister, logger *slog.Logger) *Store {
	return &Store{
		byID:      make(map[string]*task.Task),
		persister: p,
		logger:    logger,
	}
}

// Create assigns an id and creation timestamp to t, adds it to the set and
// returns the new id. Status defaults to queued when unset.
func (s *Store) Create(ctx context.Context, t task.Task) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.New().String()
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = task.StatusQueued
	}

	c := t.Clone()
	s.tasks = append(s.tasks, &c)
	s.byID[c.ID] = &c
	s.indexLocked(&c)
	s.persistLocked(ctx)
	return c.ID
}

// Update merges a patch into the task with the given id. An unknown id is a
// no-op (callers may race with deletion). Patches that violate task
// invariants, or status changes the state machine forbids, are dropped.
func (s *Store) Update(ctx context.Context, id string, p task.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return
	}
	if err := p.Validate(); err != nil {
		s.logger.Warn("dropping invalid patch", "task", id, "error", err)
		return
	}
	if p.Status != nil && *p.Status != t.Status && !task.CanAdvance(t.Status, *p.Status) {
		s.logger.Warn("dropping illegal status transition",
			"task", id, "from", t.Status, "to", *p.Status)
		return
	}

	p.Apply(t)
	s.removeFromIndexesLocked(id)
	s.indexLocked(t)
	s.persistLocked(ctx)
}

// Remove deletes the task with the given id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	s.removeFromIndexesLocked(id)
	s.persistLocked(ctx)
}

// ClearTerminal bulk-removes every task indexed under the given terminal
// status. Non-terminal statuses are rejected.
func (s *Store) ClearTerminal(ctx context.Context, status task.Status) {
	if !status.Terminal() {
		s.logger.Warn("clear terminal called with non-terminal status", "status", status)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.completed
	if status == task.StatusFailed {
		ids = s.failed
	}
	if len(ids) == 0 {
		return
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
		delete(s.byID, id)
	}
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if _, ok := drop[t.ID]; !ok {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	if status == task.StatusCompleted {
		s.completed = nil
	} else {
		s.failed = nil
	}
	s.persistLocked(ctx)
}

// Hydrate replaces the whole task set with a reconciled list, rebuilds the
// indexes and persists the result. Used at startup and on manual refresh.
func (s *Store) Hydrate(ctx context.Context, tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make([]*task.Task, 0, len(tasks))
	s.byID = make(map[string]*task.Task, len(tasks))
	s.active, s.completed, s.failed = nil, nil, nil
	for _, t := range tasks {
		c := t.Clone()
		s.tasks = append(s.tasks, &c)
		s.byID[c.ID] = &c
		s.indexLocked(&c)
	}
	s.persistLocked(ctx)
}

// Get returns a snapshot of the task with the given id.
func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return task.Task{}, false
	}
	return t.Clone(), true
}

// Tasks returns a snapshot of the full set in insertion order.
func (s *Store) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Active returns snapshots of the queued and processing tasks.
func (s *Store) Active() []task.Task {
	return s.indexed(&s.active)
}

// Completed returns snapshots of the completed tasks.
func (s *Store) Completed() []task.Task {
	return s.indexed(&s.completed)
}

// Failed returns snapshots of the failed tasks.
func (s *Store) Failed() []task.Task {
	return s.indexed(&s.failed)
}

func (s *Store) indexed(ids *[]string) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Task, 0, len(*ids))
	for _, id := range *ids {
		if t, ok := s.byID[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *Store) indexLocked(t *task.Task) {
	switch t.Status {
	case task.StatusCompleted:
		s.completed = append(s.completed, t.ID)
	case task.StatusFailed:
		s.failed = append(s.failed, t.ID)
	default:
		s.active = append(s.active, t.ID)
	}
}

func (s *Store) removeFromIndexesLocked(id string) {
	s.active = removeID(s.active, id)
	s.completed = removeID(s.completed, id)
	s.failed = removeID(s.failed, id)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	snapshot := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		snapshot = append(snapshot, t.Clone())
	}
	if err := s.persister.Save(ctx, snapshot); err != nil {
		s.logger.Warn("task set persist failed", "error", err)
	}
}
