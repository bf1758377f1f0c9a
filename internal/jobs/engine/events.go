package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

type EventKind uint8

const (
	EventResult EventKind = iota
	EventTaskError
	EventStateChanged
	EventCompleted
	EventFatalError
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventTaskError:
		return "task_error"
	case EventStateChanged:
		return "state_changed"
	case EventCompleted:
		return "completed"
	case EventFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// Event is a tagged notification. Which fields are set depends on Kind:
// Result for EventResult, Line/Proxy/Err for EventTaskError, State for
// EventStateChanged and Err for EventFatalError.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Result *domain.CheckResult
	Line   domain.DataLine
	Proxy  *domain.Proxy
	Err    error
	State  domain.JobState
}

func (e Event) lifecycle() bool {
	return e.Kind == EventStateChanged || e.Kind == EventCompleted || e.Kind == EventFatalError
}

// pendingLimit caps queued events; past it result and task error events are
// dropped instead of queued.
const pendingLimit = 8192

// Bus fans events out to subscriber channels. publish only queues the event;
// a dispatcher goroutine delivers the queue in order. Result and task error
// events are dropped for a full subscriber, lifecycle events wait up to
// lifecycleTimeout. Every channel is closed once the queue is delivered after
// close.
type Bus struct {
	mu      sync.Mutex
	subs    []chan Event
	pending []Event
	closed  bool
	running bool

	wake    chan struct{}
	stopped chan struct{}

	dropped          atomic.Int64
	lifecycleTimeout time.Duration
}

func newBus(lifecycleTimeout time.Duration) *Bus {
	return &Bus{
		lifecycleTimeout: lifecycleTimeout,
		wake:             make(chan struct{}, 1),
		stopped:          make(chan struct{}),
	}
}

func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Dropped is the number of events discarded because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	if b.closed || len(b.subs) == 0 {
		b.mu.Unlock()
		return
	}
	if !ev.lifecycle() && len(b.pending) >= pendingLimit {
		b.dropped.Add(int64(len(b.subs)))
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, ev)
	if !b.running {
		b.running = true
		go b.dispatch()
	}
	b.mu.Unlock()

	b.signal()
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) dispatch() {
	defer close(b.stopped)

	for {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		subs := b.subs
		closed := b.closed
		if len(batch) == 0 && closed {
			b.subs = nil
			b.mu.Unlock()
			for _, ch := range subs {
				close(ch)
			}
			return
		}
		b.mu.Unlock()

		if len(batch) == 0 {
			<-b.wake
			continue
		}
		for _, ev := range batch {
			b.deliver(subs, ev)
		}
	}
}

func (b *Bus) deliver(subs []chan Event, ev Event) {
	for _, ch := range subs {
		if !ev.lifecycle() {
			select {
			case ch <- ev:
			default:
				b.dropped.Add(1)
			}
			continue
		}

		select {
		case ch <- ev:
		default:
			timer := time.NewTimer(b.lifecycleTimeout)
			select {
			case ch <- ev:
			case <-timer.C:
				b.dropped.Add(1)
				log.Warn("dropping lifecycle event for slow subscriber", "event", ev.Kind.String())
			}
			timer.Stop()
		}
	}
}

// close stops accepting events. Queued events are still delivered before the
// subscriber channels are closed.
func (b *Bus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if !b.running {
		subs := b.subs
		b.subs = nil
		b.mu.Unlock()
		for _, ch := range subs {
			close(ch)
		}
		close(b.stopped)
		return
	}
	b.mu.Unlock()

	b.signal()
}
