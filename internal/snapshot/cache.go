// Package snapshot holds the last successful aggregation result and serves
// it within a freshness window, degrading to stale data when a refresh
// fails.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GoJackzi/zamauction/internal/model"
)

// Status annotates how a snapshot was served.
type Status string

const (
	StatusHit   Status = "hit"
	StatusMiss  Status = "miss"
	StatusStale Status = "stale"
)

// Refresher performs one full ingestion pass.
type Refresher interface {
	Refresh(ctx context.Context) (*model.Snapshot, error)
}

// Cache is the process-wide snapshot holder. The cached snapshot is replaced
// atomically under the mutex; readers never observe a half-updated value, and
// at most one refresh is in flight at a time.
type Cache struct {
	refresher Refresher
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu        sync.Mutex
	snap      *model.Snapshot
	fetchedAt time.Time
	inflight  *refreshCall
}

type refreshCall struct {
	done chan struct{}
	snap *model.Snapshot
	err  error
}

// NewCache builds a Cache with the given freshness window.
func NewCache(refresher Refresher, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{
		refresher: refresher,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
}

// Get returns a snapshot, triggering ingestion when the cached value is
// missing or stale. Callers arriving while a refresh is in flight are served
// the previous snapshot rather than waiting; only callers with nothing to
// fall back to wait for the in-flight refresh. When ingestion fails, the last
// good snapshot is returned marked stale, and model.ErrNoData is surfaced
// only when no snapshot has ever been built.
func (c *Cache) Get(ctx context.Context, force bool) (*model.Snapshot, Status, error) {
	c.mu.Lock()

	if c.snap != nil && !force && c.now().Sub(c.fetchedAt) < c.ttl {
		snap := c.snap
		c.mu.Unlock()
		return snap, StatusHit, nil
	}

	if c.inflight != nil {
		call := c.inflight
		if c.snap != nil {
			snap := c.snap
			fresh := c.now().Sub(c.fetchedAt) < c.ttl
			c.mu.Unlock()
			if fresh {
				return snap, StatusHit, nil
			}
			return snap, StatusStale, nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-call.done:
		}
		if call.err != nil {
			return nil, "", call.err
		}
		return call.snap, StatusMiss, nil
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	snap, err := c.refresher.Refresh(ctx)

	c.mu.Lock()
	c.inflight = nil
	if err == nil {
		c.snap = snap
		c.fetchedAt = c.now()
		call.snap = snap
		close(call.done)
		c.mu.Unlock()
		return snap, StatusMiss, nil
	}

	if c.snap != nil {
		stale := c.snap
		age := c.now().Sub(c.fetchedAt)
		call.snap = stale
		close(call.done)
		c.mu.Unlock()
		c.logger.Warn("refresh failed, serving stale snapshot",
			zap.Duration("age", age),
			zap.Error(err),
		)
		return stale, StatusStale, nil
	}

	call.err = fmt.Errorf("%w: %v", model.ErrNoData, err)
	close(call.done)
	c.mu.Unlock()
	c.logger.Error("refresh failed with no snapshot to fall back to", zap.Error(err))
	return nil, "", call.err
}
