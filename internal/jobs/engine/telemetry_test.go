package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Binz120/OpenBullet2/internal/domain"
)

func TestCPMTrackerSlidingWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tracker := newCPMTracker()
	tracker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		tracker.add()
	}
	now = now.Add(30 * time.Second)
	tracker.add()

	if got := tracker.count(); got != 6 {
		t.Fatalf("expected 6 checks in the window, got %d", got)
	}

	now = now.Add(31 * time.Second)
	if got := tracker.count(); got != 1 {
		t.Fatalf("expected the first bucket to expire, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	if got := tracker.count(); got != 0 {
		t.Fatalf("expected an empty window, got %d", got)
	}
}

func TestCountersRecordEveryStatus(t *testing.T) {
	var c Counters
	statuses := []domain.Status{
		domain.StatusSuccess, domain.StatusFail, domain.StatusBan, domain.StatusRetry,
		domain.StatusError, domain.StatusNone, domain.StatusCustom, domain.StatusUnrecognized,
	}
	for _, s := range statuses {
		c.record(s)
	}

	snap := c.Snapshot()
	want := CounterSnapshot{Tested: 8, Hits: 1, Custom: 1, ToCheck: 1, Fails: 1, Banned: 1, Retried: 1, Errors: 1, Unrecognized: 1}
	if snap != want {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Classified() != snap.Tested {
		t.Fatalf("classified %d != tested %d", snap.Classified(), snap.Tested)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		outcome domain.Outcome
		err     error
		status  domain.Status
		raw     string
	}{
		{domain.Outcome{Status: "success"}, nil, domain.StatusSuccess, "SUCCESS"},
		{domain.Outcome{Status: ""}, nil, domain.StatusNone, "NONE"},
		{domain.Outcome{Status: "2FA"}, nil, domain.StatusUnrecognized, "2FA"},
		{domain.Outcome{Status: "SUCCESS"}, errors.New("boom"), domain.StatusError, "ERROR"},
		{domain.Outcome{}, ErrNoProxyAvailable, domain.StatusRetry, "RETRY"},
	}

	for _, tc := range cases {
		status, raw := classify(tc.outcome, tc.err)
		if status != tc.status || raw != tc.raw {
			t.Fatalf("classify(%q, %v) = %s/%q, want %s/%q", tc.outcome.Status, tc.err, status, raw, tc.status, tc.raw)
		}
	}
}

func TestRunCheckAbandonsCheckIgnoringContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	check := funcCheck{name: "stubborn", run: func(context.Context, domain.BotInput) (domain.Outcome, error) {
		<-block
		return domain.Outcome{Status: "SUCCESS"}, nil
	}}

	start := time.Now()
	_, err := runCheck(context.Background(), check, domain.BotInput{}, 20*time.Millisecond)
	if !errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("expected ErrTaskTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("runCheck waited for a check that ignores its context")
	}
}

func waitBusStopped(t *testing.T, bus *Bus) {
	t.Helper()
	select {
	case <-bus.stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("bus dispatcher did not stop")
	}
}

func TestBusDropsResultsForFullSubscriber(t *testing.T) {
	bus := newBus(10 * time.Millisecond)
	events := bus.Subscribe(1)

	bus.publish(Event{Kind: EventResult})
	bus.publish(Event{Kind: EventResult})
	bus.publish(Event{Kind: EventStateChanged, State: domain.JobRunning})
	bus.close()
	waitBusStopped(t, bus)

	if bus.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", bus.Dropped())
	}

	ev := <-events
	if ev.Kind != EventResult || ev.Time.IsZero() {
		t.Fatalf("unexpected first event %+v", ev)
	}
	if _, ok := <-events; ok {
		t.Fatal("expected the subscription to be closed")
	}

	late := bus.Subscribe(4)
	if _, ok := <-late; ok {
		t.Fatal("subscribing to a closed bus should yield a closed channel")
	}
	bus.publish(Event{Kind: EventCompleted})
}

func TestBusPublishNeverWaitsForSubscribers(t *testing.T) {
	bus := newBus(time.Second)
	events := bus.Subscribe(0)

	start := time.Now()
	for _, state := range []domain.JobState{domain.JobStarting, domain.JobRunning, domain.JobStopping} {
		bus.publish(Event{Kind: EventStateChanged, State: state})
	}
	bus.publish(Event{Kind: EventCompleted})
	bus.close()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked on an unread subscriber for %s", elapsed)
	}

	var kinds []EventKind
	var states []domain.JobState
	for ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventStateChanged {
			states = append(states, ev.State)
		}
	}
	if len(kinds) != 4 || kinds[3] != EventCompleted {
		t.Fatalf("expected every lifecycle event in order, got %v", kinds)
	}
	if states[0] != domain.JobStarting || states[1] != domain.JobRunning || states[2] != domain.JobStopping {
		t.Fatalf("state events out of order: %v", states)
	}
}

func TestBusCloseWithoutEvents(t *testing.T) {
	bus := newBus(time.Second)
	events := bus.Subscribe(1)
	bus.close()
	waitBusStopped(t, bus)

	if _, ok := <-events; ok {
		t.Fatal("expected the subscription to be closed")
	}
}

func TestBusWaitsForLifecycleEvents(t *testing.T) {
	bus := newBus(time.Second)
	events := bus.Subscribe(0)

	received := make(chan Event, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		received <- <-events
	}()

	bus.publish(Event{Kind: EventCompleted})

	select {
	case ev := <-received:
		if ev.Kind != EventCompleted {
			t.Fatalf("unexpected event %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("lifecycle event was not delivered")
	}
	if bus.Dropped() != 0 {
		t.Fatalf("lifecycle event should not be dropped, got %d", bus.Dropped())
	}
}

func TestWorkerPoolRetiresSurplusWorkers(t *testing.T) {
	pool := newWorkerPool(3, 5*time.Millisecond)

	var steps atomic.Int64
	step := func(ctx context.Context) bool {
		steps.Add(1)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Millisecond):
			return true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go pool.run(ctx, step, func() { close(done) })

	waitFor(t, "three workers", func() bool { return pool.Live() == 3 })
	pool.resize(1)
	waitFor(t, "one worker", func() bool { return pool.Live() == 1 })

	pool.drain()
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not finish")
	}
	if steps.Load() == 0 {
		t.Fatal("workers never ran")
	}
}
