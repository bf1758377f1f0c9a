package datapool

import (
	"errors"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

var (
	ErrEndOfData      = errors.New("datapool: end of data")
	ErrAlreadyStarted = errors.New("datapool: iteration already started")
)

// Pool is a lazily read, sequential source of data lines. A pool has a single
// consumer; implementations are not safe for concurrent use.
type Pool interface {
	// Next returns the next line, ErrEndOfData once the pool is drained or
	// another error if the underlying medium became unreadable.
	Next() (domain.DataLine, error)
	// Size reports the total number of lines; false means unknown.
	Size() (int64, bool)
	// Skip discards the first n lines. It fails once iteration has begun.
	Skip(n int64) error
}

// cursor tracks the shared skip/started bookkeeping of the pools.
type cursor struct {
	started bool
	skip    int64
	index   int64
}

func (c *cursor) setSkip(n int64) error {
	if c.started {
		return ErrAlreadyStarted
	}
	if n < 0 {
		n = 0
	}
	c.skip = n
	return nil
}
