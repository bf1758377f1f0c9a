package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Binz120/OpenBullet2/internal/database"
	"github.com/Binz120/OpenBullet2/internal/domain"

	"github.com/charmbracelet/log"
)

const (
	defaultHitQueueSize  = 10_000
	defaultHitBatchSize  = 500
	defaultHitFlushTimer = 5 * time.Second
	hitInsertTimeout     = 30 * time.Second
)

type DatabaseSinkOptions struct {
	Statuses      []string
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// DatabaseSink queues hits and writes them to the database in batches, on a
// timer or once BatchSize hits are buffered. Record blocks only while the
// queue is full and never past its context.
type DatabaseSink struct {
	filter        StatusFilter
	batchSize     int
	flushInterval time.Duration

	// mu is held for reading around every enqueue and for writing while
	// closing, so no hit is queued after run has drained.
	mu     sync.RWMutex
	closed bool

	queue        chan domain.Hit
	stop         chan struct{}
	done         chan struct{}
	flushTracker sync.WaitGroup
}

func NewDatabaseSink(opts DatabaseSinkOptions) *DatabaseSink {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultHitBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultHitFlushTimer
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultHitQueueSize
	}

	s := &DatabaseSink{
		filter:        NewStatusFilter(opts.Statuses),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		queue:         make(chan domain.Hit, opts.QueueSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *DatabaseSink) Record(ctx context.Context, result domain.CheckResult) error {
	if !s.filter.Allows(result) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("database sink is closed")
	}

	select {
	case s.queue <- domain.NewHit(result):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue hit: %w", ctx.Err())
	}
}

// Close flushes every queued hit and waits for the inserts to finish.
func (s *DatabaseSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *DatabaseSink) run() {
	defer close(s.done)

	var buffer []domain.Hit
	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			s.drainQueue(&buffer)
			s.flush(&buffer)
			s.flushTracker.Wait()
			return
		case hit := <-s.queue:
			buffer = append(buffer, hit)
			if len(buffer) >= s.batchSize {
				s.flush(&buffer)
				s.resetTimer(timer)
			}
		case <-timer.C:
			s.flush(&buffer)
			timer.Reset(s.flushInterval)
		}
	}
}

func (s *DatabaseSink) flush(buffer *[]domain.Hit) {
	if len(*buffer) == 0 {
		return
	}

	toInsert := *buffer
	*buffer = nil

	batchSize := database.CalculateHitBatchSize(len(toInsert))
	s.flushTracker.Add(1)

	go func(hits []domain.Hit, size int) {
		defer s.flushTracker.Done()

		dbCtx, cancel := context.WithTimeout(context.Background(), hitInsertTimeout)
		defer cancel()

		if err := database.InsertHits(dbCtx, hits, size); err != nil {
			log.Error("Failed to insert hits", "error", err, "count", len(hits))
		}
	}(toInsert, batchSize)
}

func (s *DatabaseSink) drainQueue(buffer *[]domain.Hit) {
	for {
		select {
		case hit := <-s.queue:
			*buffer = append(*buffer, hit)
		default:
			return
		}
	}
}

func (s *DatabaseSink) resetTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(s.flushInterval)
}
