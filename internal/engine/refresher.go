package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RefresherConfig holds configuration for the background refresher.
type RefresherConfig struct {
	// Interval is how often loaded collections are reloaded.
	Interval time.Duration

	// Collections limits the refresh to these collections. Empty means all.
	Collections []string
}

// DefaultRefresherConfig returns sensible defaults.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{Interval: 30 * time.Second}
}

// Refresher periodically reloads collections from the remote store so
// changes made elsewhere show up. A collection is skipped while it is not
// loaded yet or has optimistic mutations in flight; the reload would race
// their reconciliation.
type Refresher struct {
	eng    *Engine
	config RefresherConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	onRefresh func(collection string, err error)
}

// NewRefresher returns a refresher for eng. onRefresh, if not nil, is called
// after every attempted reload.
func NewRefresher(eng *Engine, config RefresherConfig, onRefresh func(collection string, err error)) (*Refresher, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive (got %s)", config.Interval)
	}
	if len(config.Collections) == 0 {
		config.Collections = Collections
	}
	return &Refresher{eng: eng, config: config, onRefresh: onRefresh}, nil
}

// Start begins refreshing in the background until ctx is cancelled or Stop
// is called.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("refresher already running")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true

	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Stop halts the refresher and waits for an in-progress pass to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce runs one pass over the configured collections and returns the
// ones it reloaded.
func (r *Refresher) RefreshOnce(ctx context.Context) []string {
	if !r.eng.sess.SignedIn() {
		return nil
	}
	stats := make(map[string]CollectionStats, len(Collections))
	for _, s := range r.eng.Stats() {
		stats[s.Collection] = s
	}

	var refreshed []string
	for _, c := range r.config.Collections {
		if ctx.Err() != nil {
			break
		}
		st := stats[c].State
		if !st.Loaded || st.Loading || st.Pending > 0 {
			continue
		}
		err := r.eng.Reload(ctx, c)
		if err != nil {
			r.eng.log.Warn().Err(err).Str("collection", c).Msg("refresh failed")
		} else {
			refreshed = append(refreshed, c)
		}
		if r.onRefresh != nil {
			r.onRefresh(c, err)
		}
	}
	return refreshed
}
