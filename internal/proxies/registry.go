package proxies

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

const sourceLoadLimit = 4

type record struct {
	proxy domain.Proxy
	key   string
	alive bool
	inUse int
}

// Lease is one acquisition of a proxy. It must be handed back through
// Registry.Release; releasing twice is a no-op.
type Lease struct {
	Proxy domain.Proxy

	handle     int
	key        string
	generation uint64
	released   atomic.Bool
}

// Registry is an arena of proxy records addressed by index. All liveness and
// usage bookkeeping happens under mu; callers only ever see copies.
type Registry struct {
	mu         sync.Mutex
	records    []record
	index      map[string]int
	cursor     int
	generation uint64
	maxUses    int
	changed    chan struct{}

	alive atomic.Int64
	total atomic.Int64

	sources     []Source
	reloadGroup singleflight.Group
}

// NewRegistry creates a registry fed by sources. maxUses bounds concurrent
// leases per proxy; zero means unlimited.
func NewRegistry(maxUses int, sources ...Source) *Registry {
	return &Registry{
		index:   make(map[string]int),
		maxUses: maxUses,
		sources: sources,
		changed: make(chan struct{}),
	}
}

func (r *Registry) HasSources() bool {
	return len(r.sources) > 0
}

// Acquire returns the next alive proxy in round-robin order. While proxies
// are alive but all at their use limit it waits for a release. It returns
// false when mode is Off, no proxy is alive or ctx is done.
func (r *Registry) Acquire(ctx context.Context, mode domain.ProxyMode) (*Lease, bool) {
	if mode == domain.ProxyModeOff {
		return nil, false
	}

	for ctx.Err() == nil {
		r.mu.Lock()
		if lease, ok := r.acquireLocked(); ok {
			r.mu.Unlock()
			return lease, true
		}
		if r.alive.Load() == 0 {
			r.mu.Unlock()
			return nil, false
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
		}
	}
	return nil, false
}

// TryAcquire is Acquire without waiting: a proxy at its use limit counts as
// unavailable.
func (r *Registry) TryAcquire(mode domain.ProxyMode) (*Lease, bool) {
	if mode == domain.ProxyModeOff {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquireLocked()
}

func (r *Registry) acquireLocked() (*Lease, bool) {
	n := len(r.records)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		rec := &r.records[idx]
		if !rec.alive {
			continue
		}
		if r.maxUses > 0 && rec.inUse >= r.maxUses {
			continue
		}

		rec.inUse++
		r.cursor = (idx + 1) % n
		return &Lease{
			Proxy:      rec.proxy,
			handle:     idx,
			key:        rec.key,
			generation: r.generation,
		}, true
	}

	return nil, false
}

// notifyLocked wakes every Acquire waiting for a proxy.
func (r *Registry) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Release hands a lease back. A proxy released with alive=false is excluded
// from later acquisitions until the next reload.
func (r *Registry) Release(lease *Lease, alive bool) {
	if lease == nil || !lease.released.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := lease.handle
	if lease.generation != r.generation {
		var ok bool
		if idx, ok = r.index[lease.key]; !ok {
			return
		}
	}
	if idx < 0 || idx >= len(r.records) {
		return
	}

	rec := &r.records[idx]
	if rec.inUse > 0 {
		rec.inUse--
	}
	if !alive && rec.alive {
		rec.alive = false
		r.alive.Add(-1)
		log.Debug("proxy marked dead", "proxy", rec.proxy.String())
	}
	r.notifyLocked()
}

func (r *Registry) AliveCount() int {
	return int(r.alive.Load())
}

func (r *Registry) TotalCount() int {
	return int(r.total.Load())
}

// Set replaces the arena with proxies, dropping duplicates. Records that
// survive keep their in-use count; every record starts alive.
func (r *Registry) Set(proxies []domain.Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]record, 0, len(proxies))
	index := make(map[string]int, len(proxies))

	for _, proxy := range proxies {
		key := proxy.Key()
		if _, dup := index[key]; dup {
			continue
		}

		rec := record{proxy: proxy, key: key, alive: true}
		if old, ok := r.index[key]; ok {
			rec.inUse = r.records[old].inUse
		}

		index[key] = len(records)
		records = append(records, rec)
	}

	r.records = records
	r.index = index
	r.cursor = 0
	r.generation++
	r.alive.Store(int64(len(records)))
	r.total.Store(int64(len(records)))
	r.notifyLocked()
}

// Reload loads every source concurrently and replaces the arena with the
// union of their proxies.
func (r *Registry) Reload(ctx context.Context) error {
	if len(r.sources) == 0 {
		return nil
	}

	loaded := make([][]domain.Proxy, len(r.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sourceLoadLimit)

	for i, source := range r.sources {
		i, source := i, source
		g.Go(func() error {
			proxies, err := source.Load(gctx)
			if err != nil {
				return fmt.Errorf("proxy source %s: %w", source.Name(), err)
			}
			loaded[i] = proxies
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var all []domain.Proxy
	for _, proxies := range loaded {
		all = append(all, proxies...)
	}

	r.Set(all)
	log.Info("proxies loaded", "total", r.TotalCount(), "sources", len(r.sources))
	return nil
}

// ReloadIfAllDead reloads from the sources when no proxy is alive. Concurrent
// callers share a single reload.
func (r *Registry) ReloadIfAllDead(ctx context.Context) error {
	if r.AliveCount() > 0 || len(r.sources) == 0 {
		return nil
	}

	_, err, _ := r.reloadGroup.Do("reload", func() (any, error) {
		if r.AliveCount() > 0 {
			return nil, nil
		}
		log.Warn("all proxies are dead, reloading from sources")
		return nil, r.Reload(ctx)
	})
	return err
}
