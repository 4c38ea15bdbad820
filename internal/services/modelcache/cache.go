package modelcache

import (
	"context"
	"sync"
	"time"

	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/smartscale/scale-server/internal/services/modelruntime"

	"go.uber.org/zap"
)

// Entry is one loaded classifier generation. Entries are immutable; a
// reload builds a complete replacement and swaps it in, so readers never
// observe a half-built model.
type Entry struct {
	ModelID   string
	Revision  string
	Predictor modelruntime.Predictor
	Labels    []string
	LoadedAt  time.Time
}

func (e *Entry) Matches(modelID, revision string) bool {
	return e.ModelID == modelID && e.Revision == revision
}

// Loader materializes a classifier identity into a ready Entry.
type Loader interface {
	Load(ctx context.Context, modelID, revision string) (*Entry, error)
}

// Cache holds at most one live classifier per process. Concurrent Ensure
// calls for a missing target collapse into a single load whose outcome,
// success or failure, is shared by every waiter of that generation.
type Cache struct {
	loader Loader
	logger *zap.Logger

	mu      sync.Mutex
	current *Entry
	loading *loadCall
}

type loadCall struct {
	modelID  string
	revision string
	done     chan struct{}
	entry    *Entry
	err      error
}

func NewCache(loader Loader, logger *zap.Logger) *Cache {
	return &Cache{
		loader: loader,
		logger: logger.Named("modelcache"),
	}
}

// Ensure returns an Entry matching the requested identity, loading it if
// the cached one differs. A failed load never disturbs the entry already
// being served; jobs targeting the old identity keep working while jobs
// that need the failed target get ErrModelUnavailable.
func (c *Cache) Ensure(ctx context.Context, modelID, revision string) (*Entry, error) {
	for {
		c.mu.Lock()
		if c.current != nil && c.current.Matches(modelID, revision) {
			entry := c.current
			c.mu.Unlock()
			return entry, nil
		}

		if c.loading != nil {
			call := c.loading
			c.mu.Unlock()

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-call.done:
			}

			if call.modelID == modelID && call.revision == revision {
				return call.entry, call.err
			}

			// Someone else was loading a different target; start over
			// against the new state.
			continue
		}

		call := &loadCall{modelID: modelID, revision: revision, done: make(chan struct{})}
		c.loading = call
		c.mu.Unlock()

		return c.load(ctx, call)
	}
}

func (c *Cache) load(ctx context.Context, call *loadCall) (*Entry, error) {
	started := time.Now()
	entry, err := c.loader.Load(ctx, call.modelID, call.revision)
	if err != nil {
		err = scaleerr.ModelUnavailablef("model %s@%s: %v", call.modelID, call.revision, err)
	}

	c.mu.Lock()
	call.entry = entry
	call.err = err
	c.loading = nil

	var stale *Entry
	if err == nil {
		stale = c.current
		c.current = entry
	}
	c.mu.Unlock()
	close(call.done)

	if stale != nil {
		// Release the replaced generation off the job path.
		go func() {
			if cerr := stale.Predictor.Close(); cerr != nil {
				c.logger.Warn("failed to release replaced model",
					zap.String("model_id", stale.ModelID),
					zap.String("model_revision", stale.Revision),
					zap.Error(cerr))
			}
		}()
	}

	if err != nil {
		c.logger.Error("model load failed",
			zap.String("model_id", call.modelID),
			zap.String("model_revision", call.revision),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("model loaded",
		zap.String("model_id", call.modelID),
		zap.String("model_revision", call.revision),
		zap.Int("labels", len(entry.Labels)),
		zap.Duration("took", time.Since(started)))

	return entry, nil
}

// Current returns the entry being served, or nil before the first
// successful load.
func (c *Cache) Current() *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

func (c *Cache) Close() error {
	c.mu.Lock()
	entry := c.current
	c.current = nil
	c.mu.Unlock()

	if entry == nil {
		return nil
	}

	return entry.Predictor.Close()
}
