package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Binz120/OpenBullet2/internal/datapool"
	"github.com/Binz120/OpenBullet2/internal/domain"
	"github.com/Binz120/OpenBullet2/internal/proxies"
)

// Job drives one run of a check over a data source. A Job is single use:
// once it reaches Completed or Error a new Job is needed.
type Job struct {
	ID string

	opts    Options
	source  DataSource
	check   Check
	sink    Sink
	proxies ProxyPool
	mode    domain.ProxyMode

	mu       sync.Mutex
	state    domain.JobState
	inflight int
	gate     chan struct{}
	gateOpen bool
	draining bool
	fatalErr error

	stateValue atomic.Uint32
	aborted    atomic.Bool

	dataMu    sync.Mutex
	exhausted bool
	consumed  atomic.Int64

	cancelRun context.CancelFunc
	stopAfter func() bool

	pool      *workerPool
	counters  Counters
	cpm       *cpmTracker
	bus       *Bus
	done      chan struct{}
	finishOne sync.Once

	size      int64
	sizeKnown bool
	startedAt time.Time
}

// NewJob wires a job. proxyPool may be nil when the check never needs proxies.
func NewJob(opts Options, source DataSource, check Check, sink Sink, proxyPool ProxyPool) *Job {
	opts = opts.withDefaults()
	if proxyPool == nil {
		proxyPool = noProxies{}
	}

	j := &Job{
		ID:      uuid.NewString(),
		opts:    opts,
		source:  source,
		check:   check,
		sink:    sink,
		proxies: proxyPool,
		mode:    opts.ProxyMode,
		gate:    make(chan struct{}),
		cpm:     newCPMTracker(),
		bus:     newBus(opts.LifecycleEventTimeout),
		done:    make(chan struct{}),
	}
	j.stateValue.Store(uint32(domain.JobIdle))
	return j
}

// Events subscribes to the job's event stream. Subscribe before Start to
// observe every event; the channel is closed after the terminal event.
func (j *Job) Events(buffer int) <-chan Event {
	return j.bus.Subscribe(buffer)
}

// Start validates the job's inputs, spawns the workers and returns once the
// job is Running. Missing inputs move the job to Error.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	err := j.transitionLocked(domain.JobStarting)
	j.mu.Unlock()
	if err != nil {
		return err
	}

	if err := j.validate(); err != nil {
		j.fail(err)
		return err
	}

	bots, err := j.resolveBots()
	if err != nil {
		j.fail(err)
		return err
	}

	if check := j.check; check != nil {
		j.mode = j.opts.ProxyMode.Resolve(check.NeedsProxies())
	}

	if err := j.prepareProxies(ctx); err != nil {
		j.fail(err)
		return err
	}

	if j.opts.Skip > 0 {
		if err := j.source.Skip(j.opts.Skip); err != nil {
			err = fmt.Errorf("skip %d lines: %w", j.opts.Skip, err)
			j.fail(err)
			return err
		}
	}

	size, sizeKnown := j.source.Size()

	runCtx, cancel := context.WithCancel(ctx)
	pool := newWorkerPool(bots, j.opts.ScaleInterval)

	j.mu.Lock()
	j.cancelRun = cancel
	j.pool = pool
	j.startedAt = time.Now()
	if sizeKnown {
		j.size = max(size-j.opts.Skip, 0)
		j.sizeKnown = true
	}
	if err := j.transitionLocked(domain.JobRunning); err != nil {
		j.mu.Unlock()
		cancel()
		return err
	}
	j.openGateLocked()
	j.mu.Unlock()

	log.Info("Job started", "job", j.ID, "config", j.check.Name(), "bots", bots, "proxy_mode", j.mode.String())

	j.stopAfter = context.AfterFunc(ctx, func() {
		if err := j.Abort(); err != nil {
			log.Debug("Abort on context cancel", "job", j.ID, "error", err)
		}
	})

	go pool.run(runCtx, j.work, j.finish)

	if reloader, ok := j.proxies.(proxyReloader); ok && j.opts.ProxyReloadInterval > 0 && j.mode == domain.ProxyModeOn {
		go j.reloadProxiesRoutine(runCtx, reloader)
	}

	return nil
}

func (j *Job) validate() error {
	var errs []error
	if j.source == nil {
		errs = append(errs, ErrMissingSource)
	}
	if j.check == nil {
		errs = append(errs, ErrMissingCheck)
	}
	if j.sink == nil {
		errs = append(errs, ErrMissingSink)
	}
	return errors.Join(errs...)
}

func (j *Job) resolveBots() (int, error) {
	j.mu.Lock()
	bots := j.opts.Bots
	j.mu.Unlock()

	if bots < 0 {
		return 0, ErrInvalidBots
	}
	if bots == 0 {
		if suggester, ok := j.check.(BotSuggester); ok {
			bots = suggester.SuggestedBots()
		}
	}
	return max(bots, 1), nil
}

func (j *Job) prepareProxies(ctx context.Context) error {
	if j.mode != domain.ProxyModeOn {
		return nil
	}

	if reloader, ok := j.proxies.(proxyReloader); ok && reloader.HasSources() && j.proxies.TotalCount() == 0 {
		if err := reloader.Reload(ctx); err != nil {
			return fmt.Errorf("load proxies: %w", err)
		}
	}

	if j.proxies.TotalCount() == 0 {
		return ErrNoProxies
	}
	return nil
}

// work is the step every worker repeats: take a line, run it, report it.
func (j *Job) work(ctx context.Context) bool {
	line, ok := j.next(ctx)
	if !ok {
		return false
	}

	defer j.taskDone()
	j.process(ctx, line)
	return true
}

// next hands out the next line in source order. It blocks while the job is
// pausing or paused and returns false once no more lines will be handed out.
func (j *Job) next(ctx context.Context) (domain.DataLine, bool) {
	for {
		j.mu.Lock()
		if j.draining {
			j.mu.Unlock()
			return domain.DataLine{}, false
		}
		if j.state == domain.JobRunning {
			j.inflight++
			j.mu.Unlock()
			break
		}
		gate := j.gate
		j.mu.Unlock()

		select {
		case <-gate:
		case <-ctx.Done():
			return domain.DataLine{}, false
		}
	}

	j.dataMu.Lock()
	if j.exhausted {
		j.dataMu.Unlock()
		j.taskDone()
		return domain.DataLine{}, false
	}

	line, err := j.source.Next()
	if err != nil {
		j.exhausted = true
		j.dataMu.Unlock()
		j.taskDone()

		if errors.Is(err, datapool.ErrEndOfData) {
			j.drain()
		} else {
			j.fail(fmt.Errorf("read data source: %w", err))
		}
		return domain.DataLine{}, false
	}

	j.consumed.Add(1)
	j.dataMu.Unlock()
	return line, true
}

func (j *Job) process(ctx context.Context, line domain.DataLine) {
	t := &task{line: line, start: time.Now()}

	if j.mode == domain.ProxyModeOn {
		lease, ok := j.acquireProxy(ctx)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			j.complete(t, domain.Outcome{}, ErrNoProxyAvailable)
			return
		}
		t.lease = lease
	}

	input := domain.BotInput{
		Line:         line,
		Proxy:        t.proxy(),
		CustomInputs: j.opts.CustomInputs,
	}

	outcome, err := runCheck(ctx, j.check, input, j.opts.TaskTimeout)
	if err != nil && ctx.Err() != nil {
		// aborted: the partial result is discarded
		j.proxies.Release(t.lease, true)
		return
	}

	j.complete(t, outcome, err)
}

func (j *Job) acquireProxy(ctx context.Context) (*proxies.Lease, bool) {
	if lease, ok := j.proxies.Acquire(ctx, j.mode); ok {
		return lease, true
	}
	if ctx.Err() != nil {
		return nil, false
	}

	if !j.opts.ReloadProxiesWhenAllDead {
		return nil, false
	}
	reloader, ok := j.proxies.(proxyReloader)
	if !ok || !reloader.HasSources() {
		return nil, false
	}
	if err := reloader.ReloadIfAllDead(ctx); err != nil {
		log.Warn("Failed to reload proxies", "job", j.ID, "error", err)
		return nil, false
	}
	return j.proxies.Acquire(ctx, j.mode)
}

func (j *Job) complete(t *task, outcome domain.Outcome, taskErr error) {
	status, raw := classify(outcome, taskErr)

	j.proxies.Release(t.lease, status != domain.StatusBan)

	result := domain.CheckResult{
		ID:        uuid.NewString(),
		JobID:     j.ID,
		Config:    j.check.Name(),
		Status:    status,
		RawStatus: raw,
		Line:      t.line,
		Proxy:     t.proxy(),
		Captures:  outcome.Captures,
		Elapsed:   time.Since(t.start),
		CheckedAt: time.Now(),
	}
	if taskErr != nil {
		result.Error = taskErr.Error()
	}

	j.counters.record(status)
	j.cpm.add()

	ctx, cancel := context.WithTimeout(context.Background(), j.opts.RecordTimeout)
	if err := j.sink.Record(ctx, result); err != nil {
		log.Warn("Failed to record result", "job", j.ID, "line", t.line.Index, "error", err)
	}
	cancel()

	j.bus.publish(Event{Kind: EventResult, Result: &result})
	if taskErr != nil {
		j.bus.publish(Event{Kind: EventTaskError, Line: t.line, Proxy: result.Proxy, Err: taskErr})
	}
}

func (j *Job) taskDone() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inflight--
	j.settleLocked()
}

// settleLocked finishes a pending pause once nothing is in flight and moves
// on to Stopping if a stop arrived meanwhile.
func (j *Job) settleLocked() {
	if j.state != domain.JobPausing || j.inflight > 0 {
		return
	}
	j.mustTransitionLocked(domain.JobPaused)
	if j.draining {
		j.mustTransitionLocked(domain.JobStopping)
	}
}

// Pause stops handing out lines; the job becomes Paused once in-flight tasks
// drain.
func (j *Job) Pause() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.draining && j.state == domain.JobRunning {
		return fmt.Errorf("%w: job is draining", ErrInvalidTransition)
	}
	if err := j.transitionLocked(domain.JobPausing); err != nil {
		return err
	}
	j.gate = make(chan struct{})
	j.gateOpen = false
	j.settleLocked()
	return nil
}

func (j *Job) Resume() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(domain.JobRunning); err != nil {
		return err
	}
	j.openGateLocked()
	return nil
}

// Stop lets in-flight tasks finish and then completes the job.
func (j *Job) Stop() error {
	return j.halt(false)
}

// Abort cancels in-flight tasks and completes the job without waiting for
// their results.
func (j *Job) Abort() error {
	return j.halt(true)
}

func (j *Job) halt(abort bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case domain.JobRunning, domain.JobPaused:
		j.mustTransitionLocked(domain.JobStopping)
	case domain.JobPausing:
		// applied by settleLocked once the pause completes
	case domain.JobStopping:
		if !abort || j.aborted.Load() {
			return nil
		}
	default:
		return fmt.Errorf("%w: cannot stop a job that is %s", ErrInvalidTransition, j.state)
	}

	j.draining = true
	if abort {
		j.aborted.Store(true)
		j.cancelRun()
	}
	j.openGateLocked()
	j.pool.drain()

	log.Info("Job stopping", "job", j.ID, "abort", abort)
	return nil
}

func (j *Job) drain() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.draining = true
	if j.pool != nil {
		j.pool.drain()
	}
}

// fail moves the job to Error and stops every worker.
func (j *Job) fail(err error) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}

	j.fatalErr = err
	j.draining = true
	j.mustTransitionLocked(domain.JobError)
	j.bus.publish(Event{Kind: EventFatalError, Err: err})
	j.openGateLocked()

	pool := j.pool
	if j.cancelRun != nil {
		j.cancelRun()
	}
	j.mu.Unlock()

	log.Error("Job failed", "job", j.ID, "error", err)

	if pool == nil {
		j.finish()
		return
	}
	pool.drain()
}

// finish runs once every worker has exited.
func (j *Job) finish() {
	j.finishOne.Do(func() {
		j.mu.Lock()
		if !j.state.Terminal() {
			if j.state == domain.JobPausing {
				j.mustTransitionLocked(domain.JobPaused)
			}
			if j.state != domain.JobStopping {
				j.mustTransitionLocked(domain.JobStopping)
			}
			j.mustTransitionLocked(domain.JobCompleted)
			j.bus.publish(Event{Kind: EventCompleted})
		}
		j.openGateLocked()
		j.mu.Unlock()

		if j.cancelRun != nil {
			j.cancelRun()
		}
		if j.stopAfter != nil {
			j.stopAfter()
		}

		snap := j.counters.Snapshot()
		log.Info("Job finished", "job", j.ID, "state", j.State().String(), "tested", snap.Tested, "hits", snap.Hits)

		close(j.done)
		j.bus.close()
	})
}

func (j *Job) transitionLocked(next domain.JobState) error {
	if !j.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, next)
	}
	j.state = next
	j.stateValue.Store(uint32(next))
	j.bus.publish(Event{Kind: EventStateChanged, State: next})
	return nil
}

func (j *Job) mustTransitionLocked(next domain.JobState) {
	if err := j.transitionLocked(next); err != nil {
		log.Error("Job state machine", "job", j.ID, "error", err)
	}
}

func (j *Job) openGateLocked() {
	if !j.gateOpen {
		close(j.gate)
		j.gateOpen = true
	}
}

func (j *Job) reloadProxiesRoutine(ctx context.Context, reloader proxyReloader) {
	ticker := time.NewTicker(j.opts.ProxyReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reloader.Reload(ctx); err != nil && ctx.Err() == nil {
				log.Warn("Periodic proxy reload failed", "job", j.ID, "error", err)
			}
		}
	}
}

// SetBots changes the worker count, before or during a run. Surplus workers
// finish their current task before exiting.
func (j *Job) SetBots(bots int) error {
	if bots < 1 {
		return ErrInvalidBots
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, j.state)
	}
	j.opts.Bots = bots
	if j.pool != nil {
		j.pool.resize(bots)
	}
	return nil
}

func (j *Job) State() domain.JobState {
	return domain.JobState(j.stateValue.Load())
}

// Done is closed once the job has reached a terminal state and every worker
// has exited.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is done and returns the fatal error, if any.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fatalErr
}

// CPM is the number of tasks completed in the trailing minute.
func (j *Job) CPM() int {
	return j.cpm.count()
}

// Progress is tested/size; false when the source size is unknown.
func (j *Job) Progress() (float64, bool) {
	j.mu.Lock()
	size, known := j.size, j.sizeKnown
	j.mu.Unlock()

	if !known {
		return 0, false
	}
	if size == 0 {
		return 1, true
	}
	return min(float64(j.counters.tested.Load())/float64(size), 1), true
}

// Consumed is the number of lines handed out by the data source.
func (j *Job) Consumed() int64 {
	return j.consumed.Load()
}

type Snapshot struct {
	CounterSnapshot

	State         domain.JobState `json:"-"`
	Bots          int             `json:"bots"`
	ActiveBots    int             `json:"active_bots"`
	ProxiesAlive  int             `json:"proxies_alive"`
	ProxiesTotal  int             `json:"proxies_total"`
	CPM           int             `json:"cpm"`
	Progress      float64         `json:"progress"`
	ProgressKnown bool            `json:"progress_known"`
	Size          int64           `json:"size"`
	Elapsed       time.Duration   `json:"elapsed"`
	DroppedEvents int64           `json:"dropped_events"`
}

// Snapshot reads the live telemetry without pausing the job.
func (j *Job) Snapshot() Snapshot {
	snap := Snapshot{
		CounterSnapshot: j.counters.Snapshot(),
		State:           j.State(),
		ProxiesAlive:    j.proxies.AliveCount(),
		ProxiesTotal:    j.proxies.TotalCount(),
		CPM:             j.CPM(),
		DroppedEvents:   j.bus.Dropped(),
	}
	snap.Progress, snap.ProgressKnown = j.Progress()

	j.mu.Lock()
	snap.Bots = j.opts.Bots
	if j.pool != nil {
		snap.Bots = j.pool.Target()
		snap.ActiveBots = j.pool.Live()
		snap.Size = j.size
		snap.Elapsed = time.Since(j.startedAt)
	}
	j.mu.Unlock()

	return snap
}
