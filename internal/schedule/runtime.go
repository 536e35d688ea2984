// Package schedule drives periodic and CRON-based script execution with
// overlap prevention, missed-run recovery across clock jumps, and runtime
// reconfiguration. One runner goroutine per handle arms the next fire; the
// dispatcher enforces the single-in-flight gate.
package schedule

import (
	"fmt"
	"sync"
	"time"

	"bindkit/internal/events"
	"bindkit/internal/settings"
	"bindkit/internal/shared/logging"
)

// Type distinguishes fixed-interval from CRON schedules.
type Type string

const (
	TypeInterval Type = "interval"
	TypeCron     Type = "cron"
)

// State is the lifecycle state of one schedule.
type State string

const (
	StateStopped   State = "stopped"
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateError     State = "error"
)

// Interval bounds. The upper bound is the largest millisecond count the
// underlying timer primitive handles safely (~24.8 days).
const (
	MinInterval = 10 * time.Second
	MaxInterval = 2147483 * time.Second
)

// Callback is invoked on each schedule fire.
type Callback func() error

type handle struct {
	name     string
	path     string
	schedule Type
	interval time.Duration
	cronExpr string
	iter     *cronIterator
	callback Callback

	lastRun     time.Time
	nextRun     time.Time
	isExecuting bool
	isStopping  bool
	state       State

	stopCh chan struct{}
}

// Snapshot is the read-only view of one schedule.
type Snapshot struct {
	Name        string
	Path        string
	Type        Type
	Interval    time.Duration
	CronExpr    string
	LastRun     time.Time
	NextRun     time.Time
	IsExecuting bool
	State       State
}

// Runtime owns the active-schedule map. One mutex guards the map and every
// per-handle flag; it is held only across flag checks, never across a
// callback.
type Runtime struct {
	store  *settings.Store
	bus    *events.Bus
	logger logging.Logger

	mu     sync.Mutex
	active map[string]*handle
	now    func() time.Time
}

// NewRuntime creates an empty schedule runtime. store may be nil, in which
// case run stamps are not persisted.
func NewRuntime(store *settings.Store, bus *events.Bus, logger logging.Logger) *Runtime {
	return &Runtime{
		store:  store,
		bus:    bus,
		logger: logging.OrNop(logger),
		active: make(map[string]*handle),
		now:    time.Now,
	}
}

// StartInterval registers a fixed-interval schedule. The first fire is one
// interval from now.
func (rt *Runtime) StartInterval(name, path string, interval time.Duration, cb Callback) error {
	if err := ValidateInterval(interval); err != nil {
		return err
	}
	h := &handle{
		name:     name,
		path:     path,
		schedule: TypeInterval,
		interval: interval,
		callback: cb,
	}
	return rt.startHandle(h)
}

// StartCron registers a CRON schedule. The stateful iterator is constructed
// once here and advanced on each fire.
func (rt *Runtime) StartCron(name, path, expr string, cb Callback) error {
	iter, err := newCronIterator(expr)
	if err != nil {
		return err
	}
	h := &handle{
		name:     name,
		path:     path,
		schedule: TypeCron,
		cronExpr: expr,
		iter:     iter,
		callback: cb,
	}
	return rt.startHandle(h)
}

// ValidateInterval rejects intervals outside [10s, ~24.8d].
func ValidateInterval(interval time.Duration) error {
	if interval < MinInterval || interval > MaxInterval {
		return fmt.Errorf("interval %s out of range [%s, %s]", interval, MinInterval, MaxInterval)
	}
	return nil
}

func (rt *Runtime) startHandle(h *handle) error {
	if h.callback == nil {
		return fmt.Errorf("schedule %q requires a callback", h.name)
	}

	rt.mu.Lock()
	if _, exists := rt.active[h.name]; exists {
		rt.mu.Unlock()
		return fmt.Errorf("schedule %q is already active", h.name)
	}

	now := rt.now()
	h.nextRun = rt.computeNextLocked(h, now)
	if h.nextRun.IsZero() {
		rt.mu.Unlock()
		return fmt.Errorf("schedule %q produced no next run time", h.name)
	}
	h.state = StateScheduled
	h.stopCh = make(chan struct{})
	rt.active[h.name] = h
	rt.mu.Unlock()

	go rt.runLoop(h)

	rt.logger.Info("schedule: started %q (%s), next run %s", h.name, h.schedule, h.nextRun.Format(time.RFC3339))
	rt.publishState(h.name, StateScheduled)
	return nil
}

// Stop deactivates a schedule. A tick already in flight observes the
// stopping flag and suppresses its post-state update.
func (rt *Runtime) Stop(name string) error {
	rt.mu.Lock()
	h, ok := rt.active[name]
	if !ok {
		rt.mu.Unlock()
		return fmt.Errorf("schedule %q is not active", name)
	}
	h.isStopping = true
	close(h.stopCh)
	delete(rt.active, name)
	rt.mu.Unlock()

	rt.logger.Info("schedule: stopped %q", name)
	rt.publishState(name, StateStopped)
	return nil
}

// StopAll stops every active schedule and returns how many were stopped.
func (rt *Runtime) StopAll() int {
	rt.mu.Lock()
	names := make([]string, 0, len(rt.active))
	for name := range rt.active {
		names = append(names, name)
	}
	rt.mu.Unlock()

	stopped := 0
	for _, name := range names {
		if err := rt.Stop(name); err == nil {
			stopped++
		}
	}
	return stopped
}

// UpdateInterval re-arms an interval schedule with a new period. The next
// fire is one new interval from now.
func (rt *Runtime) UpdateInterval(name string, interval time.Duration) error {
	if err := ValidateInterval(interval); err != nil {
		return err
	}
	return rt.rearm(name, func(h *handle) error {
		if h.schedule != TypeInterval {
			return fmt.Errorf("schedule %q is not interval-based", name)
		}
		h.interval = interval
		return nil
	})
}

// UpdateCron swaps a CRON schedule's expression, recreating the iterator.
func (rt *Runtime) UpdateCron(name, expr string) error {
	iter, err := newCronIterator(expr)
	if err != nil {
		return err
	}
	return rt.rearm(name, func(h *handle) error {
		if h.schedule != TypeCron {
			return fmt.Errorf("schedule %q is not cron-based", name)
		}
		h.cronExpr = expr
		h.iter = iter
		return nil
	})
}

// rearm stops the old runner, applies mutate, and starts a fresh runner
// with the same handle identity and preserved lastRun.
func (rt *Runtime) rearm(name string, mutate func(*handle) error) error {
	rt.mu.Lock()
	h, ok := rt.active[name]
	if !ok {
		rt.mu.Unlock()
		return fmt.Errorf("schedule %q is not active", name)
	}
	if err := mutate(h); err != nil {
		rt.mu.Unlock()
		return err
	}

	// Swap the runner: the old loop exits on the closed channel, the new
	// one arms against the recomputed next run.
	close(h.stopCh)
	h.stopCh = make(chan struct{})
	h.nextRun = rt.computeNextLocked(h, rt.now())
	h.state = StateScheduled
	rt.mu.Unlock()

	go rt.runLoop(h)
	rt.logger.Info("schedule: re-armed %q, next run %s", name, h.nextRun.Format(time.RFC3339))
	return nil
}

// Snapshot returns the current view of one schedule.
func (rt *Runtime) Snapshot(name string) (Snapshot, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	h, ok := rt.active[name]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(h), true
}

// Snapshots returns the current view of every active schedule.
func (rt *Runtime) Snapshots() []Snapshot {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]Snapshot, 0, len(rt.active))
	for _, h := range rt.active {
		out = append(out, snapshotOf(h))
	}
	return out
}

func snapshotOf(h *handle) Snapshot {
	return Snapshot{
		Name:        h.name,
		Path:        h.path,
		Type:        h.schedule,
		Interval:    h.interval,
		CronExpr:    h.cronExpr,
		LastRun:     h.lastRun,
		NextRun:     h.nextRun,
		IsExecuting: h.isExecuting,
		State:       h.state,
	}
}

// runLoop arms a timer for each fire. The dispatcher runs on its own
// goroutine so a long callback cannot stall the cadence; the overlap gate
// keeps at most one callback in flight.
func (rt *Runtime) runLoop(h *handle) {
	stopCh := h.stopCh
	for {
		rt.mu.Lock()
		if h.isStopping || h.stopCh != stopCh {
			rt.mu.Unlock()
			return
		}
		next := h.nextRun
		rt.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		fireAt := rt.now()
		rt.mu.Lock()
		if h.isStopping || h.stopCh != stopCh {
			rt.mu.Unlock()
			return
		}
		h.nextRun = rt.computeNextLocked(h, fireAt)
		rt.mu.Unlock()

		go rt.dispatch(h, fireAt)
	}
}

// computeNextLocked produces the fire time after reference. Interval
// schedules add the period; CRON schedules advance the stateful iterator.
func (rt *Runtime) computeNextLocked(h *handle, reference time.Time) time.Time {
	if h.schedule == TypeInterval {
		return reference.Add(h.interval)
	}
	return h.iter.Advance(reference)
}

// dispatch applies the critical ordering: gate, record last run, persist
// stamps, invoke, then clean up flags in a guaranteed path.
func (rt *Runtime) dispatch(h *handle, fireAt time.Time) {
	rt.mu.Lock()
	if h.isStopping {
		rt.mu.Unlock()
		return
	}
	if h.isExecuting {
		rt.mu.Unlock()
		rt.logger.Debug("schedule: %q tick blocked, previous run still executing", h.name)
		rt.publish(events.Event{
			Kind:    events.KindExecutionBlocked,
			Name:    h.name,
			Message: "previous run still executing",
		})
		return
	}
	h.isExecuting = true
	h.state = StateRunning
	h.lastRun = fireAt
	nextRun := h.nextRun
	rt.mu.Unlock()

	rt.persistRunTimes(h.name, fireAt, nextRun)

	err := rt.safeInvoke(h)

	rt.mu.Lock()
	h.isExecuting = false
	if err != nil {
		h.state = StateError
	} else if !h.isStopping {
		h.state = StateScheduled
	}
	rt.mu.Unlock()

	if err != nil {
		rt.logger.Error("schedule: %q callback failed: %v", h.name, err)
		rt.publish(events.Event{
			Kind:    events.KindScheduleError,
			Name:    h.name,
			Message: "schedule callback failed",
			Err:     err.Error(),
		})
	}
}

func (rt *Runtime) safeInvoke(h *handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return h.callback()
}

// persistRunTimes writes the stamps best-effort; a settings failure is
// logged and never aborts the callback.
func (rt *Runtime) persistRunTimes(name string, lastRun, nextRun time.Time) {
	if rt.store == nil {
		return
	}
	last := float64(lastRun.UnixNano()) / 1e9
	next := float64(nextRun.UnixNano()) / 1e9
	if err := rt.store.SetScheduleRunTimes(name, last, next); err != nil {
		rt.logger.Warn("schedule: failed to persist run times for %q: %v", name, err)
	}
}

func (rt *Runtime) publishState(name string, state State) {
	rt.publish(events.Event{
		Kind:    events.KindScheduleStateChanged,
		Name:    name,
		Message: string(state),
	})
}

func (rt *Runtime) publish(ev events.Event) {
	if rt.bus != nil {
		rt.bus.Publish(ev)
	}
}
