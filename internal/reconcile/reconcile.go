// Package reconcile merges the locally cached task set with the remote job
// history. The local copy wins on conflicts: it carries the full submission
// detail (files, prompts, parameters) that the remote history does not
// retain. History exists to recover jobs this device never recorded.
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/FishWoWater/meshtask/internal/remote"
	"github.com/FishWoWater/meshtask/internal/task"
)

// HistorySource fetches the authoritative job history.
type HistorySource interface {
	History(ctx context.Context, f remote.HistoryFilter) ([]remote.HistoryRecord, error)
}

// FromHistory converts one history record into a local task. Unknown feature
// tags fall back to the default type, and a display name is synthesized from
// the type label and the tail of the job id. A result is attached only for
// completed records; history carries no failure detail, so failed records get
// no error text.
func FromHistory(rec remote.HistoryRecord) task.Task {
	typ := task.TypeFromFeature(rec.Feature)

	status := task.Status(rec.Status)
	if !status.Valid() {
		status = task.StatusQueued
	}

	t := task.Task{
		ID:              uuid.New().String(),
		JobID:           rec.JobID,
		Type:            typ,
		Name:            typ.Label() + " " + jobTail(rec.JobID),
		Status:          status,
		CreatedAt:       rec.CreatedAt,
		CompletedAt:     rec.CompletedAt,
		ProcessingTime:  rec.ProcessingTime,
		ModelPreference: rec.ModelPreference,
	}
	if status == task.StatusCompleted {
		t.Progress = 100
		if rec.Result != nil {
			t.Result = &task.Result{
				OutputPath:      rec.Result.MeshLocation,
				PreviewImageURL: rec.Result.ThumbnailLocation,
			}
		}
	}
	return t
}

// Merge builds one deduplicated list from the local tasks and the remote
// history: every local task first in its existing order, then every history
// record whose job id is not already present, sorted by creation time
// descending. Reapplying the same history snapshot changes nothing.
func Merge(local []task.Task, history []remote.HistoryRecord) []task.Task {
	merged := make([]task.Task, 0, len(local)+len(history))
	seen := make(map[string]struct{}, len(local))

	for _, t := range local {
		if t.JobID != "" {
			seen[t.JobID] = struct{}{}
		}
		merged = append(merged, t)
	}
	for _, rec := range history {
		if rec.JobID == "" {
			continue
		}
		if _, ok := seen[rec.JobID]; ok {
			continue
		}
		seen[rec.JobID] = struct{}{}
		merged = append(merged, FromHistory(rec))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

// Sync fetches the history (all statuses, bounded page) and merges it with
// the local tasks. A failed fetch keeps the local list unchanged:
// reconciliation is an enhancement, not a dependency.
func Sync(ctx context.Context, src HistorySource, local []task.Task, limit int, logger *slog.Logger) []task.Task {
	history, err := src.History(ctx, remote.HistoryFilter{Limit: limit})
	if err != nil {
		logger.Warn("history fetch failed, keeping local tasks", "error", err)
		return local
	}
	return Merge(local, history)
}

func jobTail(jobID string) string {
	if i := strings.LastIndex(jobID, "-"); i >= 0 && i+1 < len(jobID) {
		return jobID[i+1:]
	}
	if len(jobID) > 8 {
		return jobID[len(jobID)-8:]
	}
	return jobID
}
