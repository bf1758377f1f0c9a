// Package engine runs a multi-bot check job: it hands data lines to a pool of
// workers, binds proxies, classifies outcomes and reports progress.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/Binz120/OpenBullet2/internal/domain"
	"github.com/Binz120/OpenBullet2/internal/proxies"
)

var (
	ErrInvalidTransition = errors.New("engine: invalid state transition")
	ErrMissingSource     = errors.New("engine: data source is not set")
	ErrMissingCheck      = errors.New("engine: check logic is not set")
	ErrMissingSink       = errors.New("engine: output sink is not set")
	ErrNoProxies         = errors.New("engine: proxy mode requires proxies but none were loaded")
	ErrTaskTimeout       = errors.New("engine: task timed out")
	ErrTaskPanic         = errors.New("engine: task panicked")
	ErrNoProxyAvailable  = errors.New("engine: no alive proxy available")
	ErrInvalidBots       = errors.New("engine: bots must be at least 1")
)

// Check is the executable check logic of a configuration.
type Check interface {
	Name() string
	NeedsProxies() bool
	Run(ctx context.Context, input domain.BotInput) (domain.Outcome, error)
}

// BotSuggester is implemented by checks that declare a default bot count.
type BotSuggester interface {
	SuggestedBots() int
}

// DataSource is consumed by exactly one goroutine at a time.
type DataSource interface {
	Next() (domain.DataLine, error)
	Size() (int64, bool)
	Skip(n int64) error
}

// ProxyPool hands out proxies. Acquire waits while every alive proxy is busy
// and reports false only when none is alive or ctx is done.
type ProxyPool interface {
	Acquire(ctx context.Context, mode domain.ProxyMode) (*proxies.Lease, bool)
	Release(lease *proxies.Lease, alive bool)
	AliveCount() int
	TotalCount() int
}

type proxyReloader interface {
	HasSources() bool
	Reload(ctx context.Context) error
	ReloadIfAllDead(ctx context.Context) error
}

// Sink records classified results. Record is called once per completed task
// and must return within a bounded time.
type Sink interface {
	Record(ctx context.Context, result domain.CheckResult) error
}

type Options struct {
	// Bots is the worker count; zero falls back to the check's suggestion.
	Bots        int
	ProxyMode   domain.ProxyMode
	Skip        int64
	TaskTimeout time.Duration

	ReloadProxiesWhenAllDead bool
	// ProxyReloadInterval reloads proxies from their sources periodically when positive.
	ProxyReloadInterval time.Duration

	CustomInputs map[string]string

	// RecordTimeout bounds a single Sink.Record call.
	RecordTimeout time.Duration

	// ScaleInterval is how often the supervisor reconciles the worker count
	// without an explicit resize.
	ScaleInterval time.Duration
	// LifecycleEventTimeout bounds how long a state/completion event waits
	// for a full subscriber.
	LifecycleEventTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 10 * time.Second
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = 5 * time.Second
	}
	if o.ScaleInterval <= 0 {
		o.ScaleInterval = time.Second
	}
	if o.LifecycleEventTimeout <= 0 {
		o.LifecycleEventTimeout = 2 * time.Second
	}
	if o.Skip < 0 {
		o.Skip = 0
	}
	return o
}

type noProxies struct{}

func (noProxies) Acquire(context.Context, domain.ProxyMode) (*proxies.Lease, bool) {
	return nil, false
}
func (noProxies) Release(*proxies.Lease, bool) {}
func (noProxies) AliveCount() int              { return 0 }
func (noProxies) TotalCount() int              { return 0 }
