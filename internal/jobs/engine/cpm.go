package engine

import (
	"sync"
	"time"
)

const cpmWindowSeconds = 60

type cpmBucket struct {
	second int64
	count  int64
}

// cpmTracker counts completions over the trailing minute in one-second buckets.
type cpmTracker struct {
	mu      sync.Mutex
	buckets [cpmWindowSeconds]cpmBucket
	now     func() time.Time
}

func newCPMTracker() *cpmTracker {
	return &cpmTracker{now: time.Now}
}

func (t *cpmTracker) add() {
	sec := t.now().Unix()

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[sec%cpmWindowSeconds]
	if b.second != sec {
		b.second = sec
		b.count = 0
	}
	b.count++
}

func (t *cpmTracker) count() int {
	sec := t.now().Unix()

	t.mu.Lock()
	defer t.mu.Unlock()

	var total int64
	for _, b := range t.buckets {
		if b.second <= sec && sec-b.second < cpmWindowSeconds {
			total += b.count
		}
	}
	return int(total)
}
