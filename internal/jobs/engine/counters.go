package engine

import (
	"sync/atomic"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

// Counters are updated with atomic increments only, so readers never block
// the workers.
type Counters struct {
	tested       atomic.Int64
	hits         atomic.Int64
	custom       atomic.Int64
	toCheck      atomic.Int64
	fails        atomic.Int64
	banned       atomic.Int64
	retried      atomic.Int64
	errors       atomic.Int64
	unrecognized atomic.Int64
}

type CounterSnapshot struct {
	Tested       int64 `json:"tested"`
	Hits         int64 `json:"hits"`
	Custom       int64 `json:"custom"`
	ToCheck      int64 `json:"to_check"`
	Fails        int64 `json:"fails"`
	Banned       int64 `json:"banned"`
	Retried      int64 `json:"retried"`
	Errors       int64 `json:"errors"`
	Unrecognized int64 `json:"unrecognized"`
}

func (c *Counters) record(status domain.Status) {
	switch status {
	case domain.StatusSuccess:
		c.hits.Add(1)
	case domain.StatusFail:
		c.fails.Add(1)
	case domain.StatusBan:
		c.banned.Add(1)
	case domain.StatusRetry:
		c.retried.Add(1)
	case domain.StatusError:
		c.errors.Add(1)
	case domain.StatusNone:
		c.toCheck.Add(1)
	case domain.StatusCustom:
		c.custom.Add(1)
	default:
		c.unrecognized.Add(1)
	}
	c.tested.Add(1)
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Tested:       c.tested.Load(),
		Hits:         c.hits.Load(),
		Custom:       c.custom.Load(),
		ToCheck:      c.toCheck.Load(),
		Fails:        c.fails.Load(),
		Banned:       c.banned.Load(),
		Retried:      c.retried.Load(),
		Errors:       c.errors.Load(),
		Unrecognized: c.unrecognized.Load(),
	}
}

// Classified is the sum of every outcome bucket. Once a job has finished it
// equals Tested.
func (s CounterSnapshot) Classified() int64 {
	return s.Hits + s.Fails + s.Banned + s.Retried + s.Custom + s.ToCheck + s.Errors + s.Unrecognized
}
