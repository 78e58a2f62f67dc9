package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FishWoWater/meshtask/internal/remote"
	"github.com/FishWoWater/meshtask/internal/task"
)

// StatusSource fetches live job state from the remote service.
type StatusSource interface {
	JobStatus(ctx context.Context, jobID string) (*remote.JobStatus, error)
	ResultInfo(ctx context.Context, jobID string) (*remote.ResultInfo, error)
	DownloadURL(jobID string) string
}

// TaskStore is the slice of the task store the poller needs.
type TaskStore interface {
	Active() []task.Task
	Update(ctx context.Context, id string, p task.Patch)
}

// Poller advances in-progress tasks by periodically checking their remote
// status. Cycles never overlap: a tick that arrives while a cycle is still in
// flight is skipped.
type Poller struct {
	store    TaskStore
	remote   StatusSource
	interval time.Duration
	logger   *slog.Logger

	inFlight atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(store TaskStore, remote StatusSource, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		store:    store,
		remote:   remote,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the polling loop in the background. The first cycle runs
// immediately rather than after a full interval.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop halts the loop and waits for it to exit. In-flight status fetches are
// not cancelled; their late updates land on ids that may no longer exist,
// which the store treats as no-ops.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one cycle: one concurrent status check per active task that has a
// job id. If a previous cycle is still in flight the call returns without
// doing anything.
func (p *Poller) Poll(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)

	active := p.store.Active()
	if len(active) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, t := range active {
		if !t.Pollable() {
			continue
		}
		wg.Add(1)
		go func(t task.Task) {
			defer wg.Done()
			p.check(ctx, t)
		}(t)
	}
	wg.Wait()
}

// check fetches one task's remote status and applies an update only when at
// least one reportable field changed. A fetch failure leaves the task
// untouched for this cycle; the next cycle retries.
func (p *Poller) check(ctx context.Context, t task.Task) {
	st, err := p.remote.JobStatus(ctx, t.JobID)
	if err != nil {
		p.logger.Warn("status check failed", "task", t.ID, "job", t.JobID, "error", err)
		return
	}

	patch, changed := p.diff(ctx, t, st)
	if !changed {
		return
	}
	p.store.Update(ctx, t.ID, patch)
}

func (p *Poller) diff(ctx context.Context, t task.Task, st *remote.JobStatus) (task.Patch, bool) {
	var patch task.Patch
	changed := false

	status := task.Status(st.Status)
	if status.Valid() && status != t.Status {
		patch.Status = &status
		changed = true
	}
	if st.InputImageURL != "" && t.InputImageURL == "" {
		patch.InputImageURL = &st.InputImageURL
		changed = true
	}
	if st.ModelPreference != "" && t.ModelPreference == "" {
		patch.ModelPreference = &st.ModelPreference
		changed = true
	}

	if patch.Status == nil {
		return patch, changed
	}

	switch *patch.Status {
	case task.StatusCompleted:
		completedAt := time.Now().UTC()
		if st.CompletedAt != nil {
			completedAt = *st.CompletedAt
		}
		patch.CompletedAt = &completedAt
		patch.ProcessingTime = st.ProcessingTime
		progress := 100
		patch.Progress = &progress
		patch.Result = p.buildResult(ctx, t.JobID, st.Result)
	case task.StatusFailed:
		completedAt := time.Now().UTC()
		if st.CompletedAt != nil {
			completedAt = *st.CompletedAt
		}
		patch.CompletedAt = &completedAt
		// The status endpoint does not supply a failure cause.
		msg := "mesh generation failed on the remote service"
		patch.Error = &msg
	}
	return patch, changed
}

// buildResult assembles the result from the status response plus the
// secondary result-info fetch. When that fetch fails the download reference
// falls back to the known download route so the task is never left without a
// usable result.
func (p *Poller) buildResult(ctx context.Context, jobID string, out *remote.JobOutput) *task.Result {
	res := &task.Result{}
	if out != nil {
		res.OutputPath = out.MeshLocation
		res.PreviewImageURL = out.ThumbnailLocation
	}

	info, err := p.remote.ResultInfo(ctx, jobID)
	if err != nil {
		p.logger.Warn("result info fetch failed, using download route", "job", jobID, "error", err)
		res.DownloadURL = p.remote.DownloadURL(jobID)
		return res
	}

	res.DownloadURL = info.DownloadableURL
	res.FileSize = info.FileSize
	res.FileFormat = info.FileExtension
	return res
}
