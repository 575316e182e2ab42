package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/beacon/internal/cache"
)

// preloadParallelism bounds concurrent controller requests during warm-up.
const preloadParallelism = 4

// PreloadItem is one payload warmed into the cache at startup.
type PreloadItem struct {
	Key   string
	TTL   time.Duration
	Fetch func(ctx context.Context) (any, error)
}

// PreloadCriticalData fetches items and writes them to the cache so the
// first screens render from fresh data. While offline it does nothing and
// no fetch is invoked. Individual failures do not stop the other items; the
// number of cached items and the joined errors are returned.
func PreloadCriticalData(ctx context.Context, conn Connectivity, store Store, policy cache.TTLPolicy, items []PreloadItem) (int, error) {
	if store == nil || len(items) == 0 {
		return 0, nil
	}
	if conn != nil && !conn.Online() {
		return 0, nil
	}

	var (
		mu     sync.Mutex
		cached int
		errs   []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadParallelism)
	for _, item := range items {
		g.Go(func() error {
			data, err := item.Fetch(gctx)
			if err == nil {
				err = store.Set(gctx, item.Key, data, policy.Resolve(item.Key, item.TTL))
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("preload %s: %w", item.Key, err))
				return nil
			}
			cached++
			return nil
		})
	}
	_ = g.Wait()
	return cached, errors.Join(errs...)
}
