// Package tracker wires the durable cache, remote clients, task store and
// poller into the job-lifecycle tracker consumed by the UI layer.
package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FishWoWater/meshtask/internal/cache"
	"github.com/FishWoWater/meshtask/internal/config"
	"github.com/FishWoWater/meshtask/internal/poller"
	"github.com/FishWoWater/meshtask/internal/reconcile"
	"github.com/FishWoWater/meshtask/internal/remote"
	"github.com/FishWoWater/meshtask/internal/resilience"
	"github.com/FishWoWater/meshtask/internal/store"
	"github.com/FishWoWater/meshtask/internal/task"
)

// persister binds the durable cache to the owner decided at load time.
type persister struct {
	cache *cache.Cache
	owner string
}

func (p persister) Save(ctx context.Context, tasks []task.Task) error {
	return p.cache.Save(ctx, tasks, p.owner)
}

// Tracker owns the task store and keeps it current: cached tasks are loaded
// and reconciled against remote history on Open, and the poller advances
// in-progress tasks until terminal. Internal failures degrade to last known
// good state; none of them are surfaced as fatal errors.
type Tracker struct {
	cfg    *config.Config
	logger *slog.Logger
	cache  *cache.Cache
	remote *remote.Client
	store  *store.Store
	poller *poller.Poller
	owner  string
}

func New(cfg *config.Config, logger *slog.Logger) (*Tracker, error) {
	c, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("durable cache: %w", err)
	}

	retry := resilience.Policy{
		Attempts: cfg.Remote.RetryAttempts,
		Delay:    cfg.Remote.RetryDelay,
	}
	rc := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, retry)

	return &Tracker{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		remote: rc,
	}, nil
}

// Open loads the cached task set for the stored identity, merges it with
// remote history, hydrates the store (persisting the merged set) and starts
// the poller. Cache and history failures fall back to empty/local state.
func (t *Tracker) Open(ctx context.Context) {
	owner := ""
	if id, err := t.cache.Identity(ctx); err != nil {
		t.logger.Warn("identity load failed, continuing anonymous", "error", err)
	} else if id != nil {
		owner = id.Owner
	}
	t.owner = owner

	local, err := t.cache.Load(ctx, owner)
	if err != nil {
		t.logger.Warn("cache load failed, starting empty", "error", err)
		local = nil
	}

	t.store = store.New(persister{cache: t.cache, owner: owner}, t.logger)
	merged := reconcile.Sync(ctx, t.remote, local, t.cfg.Poll.HistoryLimit, t.logger)
	t.store.Hydrate(ctx, merged)

	t.poller = poller.New(t.store, t.remote, t.cfg.Poll.Interval, t.logger)
	t.poller.Start(ctx)

	t.logger.Info("tracker opened", "tasks", len(merged), "owner", owner)
}

// Store returns the task store handle used by feature panels to create tasks
// and render rows.
func (t *Tracker) Store() *store.Store {
	return t.store
}

// Refresh re-runs reconciliation against remote history on demand, e.g. after
// a manual refresh. The merged set replaces the store contents.
func (t *Tracker) Refresh(ctx context.Context) {
	merged := reconcile.Sync(ctx, t.remote, t.store.Tasks(), t.cfg.Poll.HistoryLimit, t.logger)
	t.store.Hydrate(ctx, merged)
}

// Close stops the poller and releases the cache connection. In-flight status
// fetches resolve harmlessly after shutdown.
func (t *Tracker) Close() error {
	if t.poller != nil {
		t.poller.Stop()
	}
	return t.cache.Close()
}
