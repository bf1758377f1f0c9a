package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// stepFunc runs one unit of work. It returns false when the worker should
// exit because no more work will be handed out.
type stepFunc func(ctx context.Context) bool

// workerPool keeps live workers in line with target. Growing spawns workers
// from the supervisor; shrinking lets surplus workers retire between tasks.
// Only the supervisor goroutine touches wg.
type workerPool struct {
	target atomic.Int32
	live   atomic.Int32

	resizeCh  chan struct{}
	drained   chan struct{}
	drainOnce sync.Once

	interval time.Duration
	wg       sync.WaitGroup
}

func newWorkerPool(bots int, interval time.Duration) *workerPool {
	p := &workerPool{
		resizeCh: make(chan struct{}, 1),
		drained:  make(chan struct{}),
		interval: interval,
	}
	p.target.Store(int32(bots))
	return p
}

func (p *workerPool) resize(bots int) {
	p.target.Store(int32(bots))
	select {
	case p.resizeCh <- struct{}{}:
	default:
	}
}

// drain tells the supervisor that no further work will be handed out.
func (p *workerPool) drain() {
	p.drainOnce.Do(func() { close(p.drained) })
}

func (p *workerPool) Live() int {
	return int(p.live.Load())
}

func (p *workerPool) Target() int {
	return int(p.target.Load())
}

// run supervises the workers until the pool is drained or ctx is cancelled,
// waits for every worker to exit and then calls onDone.
func (p *workerPool) run(ctx context.Context, step stepFunc, onDone func()) {
	defer onDone()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.reconcile(ctx, step)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-p.drained:
			p.wg.Wait()
			return
		case <-p.resizeCh:
			p.reconcile(ctx, step)
		case <-ticker.C:
			p.reconcile(ctx, step)
		}
	}
}

func (p *workerPool) reconcile(ctx context.Context, step stepFunc) {
	select {
	case <-p.drained:
		return
	case <-ctx.Done():
		return
	default:
	}

	for p.live.Load() < p.target.Load() {
		p.live.Add(1)
		p.wg.Add(1)
		go p.worker(ctx, step)
	}

	log.Debug("Job workers", "active", p.live.Load(), "target", p.target.Load())
}

func (p *workerPool) worker(ctx context.Context, step stepFunc) {
	defer p.wg.Done()

	for {
		if p.retire() {
			return
		}
		if !step(ctx) {
			p.live.Add(-1)
			return
		}
	}
}

// retire claims one surplus slot when live exceeds target.
func (p *workerPool) retire() bool {
	for {
		live := p.live.Load()
		if live <= p.target.Load() {
			return false
		}
		if p.live.CompareAndSwap(live, live-1) {
			return true
		}
	}
}
