package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FishWoWater/meshtask/internal/task"
)

const (
	tasksKey    = "meshtask:tasks"
	identityKey = "meshtask:identity"

	// SchemaVersion tags the persisted envelope. A slot written under any
	// other version is discarded wholesale; tasks are recoverable from
	// remote history, so there is no migration path.
	SchemaVersion = "2"
)

// Envelope is the persisted container for the task set.
type Envelope struct {
	Version  string      `json:"version"`
	Tasks    []task.Task `json:"tasks"`
	LastSync time.Time   `json:"last_sync"`
	Owner    string      `json:"owner_identity,omitempty"`
}

// Identity is the auth token/identity pair kept in its own slot; only its
// owner is consulted when loading the task set.
type Identity struct {
	Owner string `json:"owner"`
	Token string `json:"token,omitempty"`
}

// Cache persists the task set to a single Redis key-value slot.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

func New(addr, password string, db int, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{client: client, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Save wraps the task set with the current schema version and a fresh sync
// timestamp and writes it to the slot.
func (c *Cache) Save(ctx context.Context, tasks []task.Task, owner string) error {
	env := Envelope{
		Version:  SchemaVersion,
		Tasks:    tasks,
		LastSync: time.Now().UTC(),
		Owner:    owner,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := c.client.Set(ctx, tasksKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save task set: %w", err)
	}
	return nil
}

// Load reads the task set from the slot. A missing slot yields an empty list.
// A corrupt envelope, a schema version mismatch, or (when owner is non-empty)
// an envelope written for a different owner discards the slot and yields an
// empty list; an empty owner skips the ownership check.
func (c *Cache) Load(ctx context.Context, owner string) ([]task.Task, error) {
	data, err := c.client.Get(ctx, tasksKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []task.Task{}, nil
		}
		return nil, fmt.Errorf("load task set: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.discard(ctx, "corrupt envelope")
		return []task.Task{}, nil
	}
	if env.Version != SchemaVersion {
		c.discard(ctx, "schema version mismatch")
		return []task.Task{}, nil
	}
	if owner != "" && env.Owner != owner {
		c.discard(ctx, "owner mismatch")
		return []task.Task{}, nil
	}

	if env.Tasks == nil {
		return []task.Task{}, nil
	}
	return env.Tasks, nil
}

// Clear removes the task slot unconditionally.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, tasksKey).Err(); err != nil {
		return fmt.Errorf("clear task set: %w", err)
	}
	return nil
}

// Identity reads the stored identity slot; a missing or unreadable slot
// yields nil (anonymous mode).
func (c *Cache) Identity(ctx context.Context) (*Identity, error) {
	data, err := c.client.Get(ctx, identityKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		c.logger.Warn("discarding corrupt identity slot", "error", err)
		if derr := c.client.Del(ctx, identityKey).Err(); derr != nil {
			c.logger.Warn("identity slot delete failed", "error", derr)
		}
		return nil, nil
	}
	return &id, nil
}

func (c *Cache) SaveIdentity(ctx context.Context, id Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := c.client.Set(ctx, identityKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (c *Cache) discard(ctx context.Context, reason string) {
	c.logger.Warn("discarding task slot", "reason", reason)
	if err := c.client.Del(ctx, tasksKey).Err(); err != nil {
		c.logger.Warn("task slot delete failed", "error", err)
	}
}
