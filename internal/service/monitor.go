package service

import (
	"sync"
	"time"

	"bindkit/internal/events"
	"bindkit/internal/settings"
	"bindkit/internal/shared/logging"
)

// PollInterval is the default health probe cadence.
const PollInterval = 5 * time.Second

// Monitor periodically probes active services and applies the restart
// policy when one crashes. Restart delays use one-shot timers, never a
// blocking sleep, so a tick is always cheap.
type Monitor struct {
	runtime  *Runtime
	store    *settings.Store
	bus      *events.Bus
	logger   logging.Logger
	interval time.Duration

	mu       sync.Mutex
	timers   map[string]*time.Timer
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewMonitor creates a monitor over runtime. interval falls back to
// PollInterval when zero.
func NewMonitor(runtime *Runtime, store *settings.Store, bus *events.Bus, interval time.Duration, logger logging.Logger) *Monitor {
	if interval <= 0 {
		interval = PollInterval
	}
	return &Monitor{
		runtime:  runtime,
		store:    store,
		bus:      bus,
		logger:   logging.OrNop(logger),
		interval: interval,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the poll loop. Safe to call once.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Tick()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts polling and cancels pending restart timers.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		for name, timer := range m.timers {
			timer.Stop()
			delete(m.timers, name)
		}
		m.mu.Unlock()
	})
}

// Tick walks the active services once. Exported so tests can drive the
// monitor without waiting on the ticker.
func (m *Monitor) Tick() {
	for _, snap := range m.runtime.Snapshots() {
		if snap.State == StateRunning && snap.Exited {
			m.onCrash(snap)
		}
	}
}

// onCrash transitions the handle to Crashed and decides on a restart.
func (m *Monitor) onCrash(snap Snapshot) {
	h := m.runtime.markCrashed(snap.ScriptName)
	if h == nil {
		return // already consumed, or a stop raced the crash
	}

	m.publish(events.KindServiceCrashed, snap.ScriptName, "service crashed", map[string]any{
		"pid":           snap.PID,
		"restart_count": snap.RestartCount,
	})
	m.logger.Warn("service: %q crashed (pid=%d, restarts=%d)", snap.ScriptName, snap.PID, snap.RestartCount)

	cfg := m.store.ServiceConfigFor(snap.ScriptName)
	if !cfg.AutoRestart {
		m.runtime.cleanup(snap.ScriptName, h, StateCrashed)
		return
	}
	if snap.RestartCount >= cfg.MaxRestarts {
		m.publish(events.KindRestartLimitReached, snap.ScriptName, "restart limit reached", map[string]any{
			"restart_count": snap.RestartCount,
			"max_restarts":  cfg.MaxRestarts,
		})
		m.logger.Error("service: %q hit restart limit (%d)", snap.ScriptName, cfg.MaxRestarts)
		m.runtime.cleanup(snap.ScriptName, h, StateCrashed)
		return
	}

	m.scheduleRestart(snap.ScriptName, time.Duration(cfg.RestartDelaySeconds)*time.Second)
}

// scheduleRestart arms a one-shot restart timer. The pending marker on the
// handle prevents duplicate scheduling when ticks outpace the delay.
func (m *Monitor) scheduleRestart(name string, delay time.Duration) {
	if !m.runtime.markPendingRestart(name) {
		return
	}
	if delay <= 0 {
		delay = time.Nanosecond
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[name] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, name)
		m.mu.Unlock()

		select {
		case <-m.stopCh:
			return
		default:
		}

		if err := m.runtime.respawn(name); err != nil {
			m.publish(events.KindServiceStateChanged, name, "restart failed", map[string]any{"error": err.Error()})
			m.logger.Error("service: restart of %q failed: %v", name, err)
		}
	})
}

func (m *Monitor) publish(kind events.Kind, name, message string, data map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{Kind: kind, Name: name, Message: message, Data: data})
}
