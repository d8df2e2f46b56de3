package generation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matiasleandrokruk/chatroute/internal/infra/llm"
)

// Loader constructs a backend for a model identifier. It is the expensive
// step the cache runs at most once per identifier at a time.
type Loader func(ctx context.Context, modelID string) (llm.Backend, error)

// LoadError is returned by GetOrLoad when the loader fails. Failures are not
// cached.
type LoadError struct {
	ModelID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("generation: load model %q: %v", e.ModelID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoaderWithTimeout bounds every call of load by d. A non-positive d returns
// load unchanged.
func LoaderWithTimeout(load Loader, d time.Duration) Loader {
	if d <= 0 {
		return load
	}
	return func(ctx context.Context, modelID string) (llm.Backend, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return load(ctx, modelID)
	}
}

// BackendCache is a process-wide model identifier to backend map. Entries are
// created on first use and live for the process lifetime. Concurrent misses
// on one identifier share a single load.
type BackendCache struct {
	entries sync.Map // string -> llm.Backend
	group   singleflight.Group
	loads   atomic.Int64
}

func NewBackendCache() *BackendCache {
	return &BackendCache{}
}

// GetOrLoad returns the cached backend for modelID, loading it with load on a
// miss. The load runs detached from the caller's cancellation since other
// callers may be waiting on it.
func (c *BackendCache) GetOrLoad(ctx context.Context, modelID string, load Loader) (llm.Backend, error) {
	if b, ok := c.entries.Load(modelID); ok {
		return b.(llm.Backend), nil
	}

	ch := c.group.DoChan(modelID, func() (b any, err error) {
		defer func() {
			if r := recover(); r != nil {
				b, err = nil, &LoadError{ModelID: modelID, Err: fmt.Errorf("loader panic: %v", r)}
			}
		}()
		if b, ok := c.entries.Load(modelID); ok {
			return b, nil
		}
		c.loads.Add(1)
		backend, lerr := load(context.WithoutCancel(ctx), modelID)
		if lerr != nil {
			return nil, &LoadError{ModelID: modelID, Err: lerr}
		}
		c.entries.Store(modelID, backend)
		return backend, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(llm.Backend), nil
	case <-ctx.Done():
		return nil, &LoadError{ModelID: modelID, Err: ctx.Err()}
	}
}

// Len reports the number of loaded backends.
func (c *BackendCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Loads reports how many times a loader has been invoked.
func (c *BackendCache) Loads() int64 {
	return c.loads.Load()
}
