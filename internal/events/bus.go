// Package events implements the typed publish/subscribe bus that replaces
// ad-hoc callback wiring between the execution core and the UI adapters.
// Handlers run synchronously on the publishing goroutine; UI adapters are
// expected to marshal onto their own loop.
package events

import (
	"sync"
	"time"

	"bindkit/internal/shared/logging"
)

// Kind identifies an event topic.
type Kind string

const (
	// Execution lifecycle.
	KindScriptStarted    Kind = "script_started"
	KindScriptFinished   Kind = "script_finished"
	KindExecutionBlocked Kind = "execution_blocked"

	// Schedule runtime.
	KindScheduleStateChanged Kind = "schedule_state_changed"
	KindScheduleError        Kind = "schedule_error"

	// Service runtime and monitor.
	KindServiceStateChanged Kind = "service_state_changed"
	KindServiceCrashed      Kind = "service_crashed"
	KindRestartLimitReached Kind = "restart_limit_reached"

	// Hotkey registry and backend.
	KindHotkeyAdded        Kind = "hotkey_added"
	KindHotkeyRemoved      Kind = "hotkey_removed"
	KindHotkeyUpdated      Kind = "hotkey_updated"
	KindRegistrationFailed Kind = "registration_failed"

	// Discovery.
	KindScriptsChanged Kind = "scripts_changed"

	// UI surface.
	KindNotification Kind = "notification"
	KindMenuRebuild  Kind = "menu_rebuild"
	KindStatusUpdate Kind = "status_update"
)

// Event is the payload delivered to subscribers. Name carries the subject
// identifier (script, service, schedule, or binding name) when one applies.
type Event struct {
	Kind    Kind
	Name    string
	Message string
	Err     string
	Data    map[string]any
	Time    time.Time
}

// Handler consumes a single event. Handlers must not block.
type Handler func(Event)

// Bus is a synchronous topic-keyed publish/subscribe dispatcher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]Handler
	all    []Handler
	logger logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		subs:   make(map[Kind][]Handler),
		logger: logging.OrNop(logger),
	}
}

// Subscribe registers handler for a single event kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], handler)
}

// SubscribeAll registers handler for every event kind.
func (b *Bus) SubscribeAll(handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish dispatches the event to all matching handlers in subscription
// order. A panicking handler is logged and does not stop delivery.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Kind])+len(b.all))
	handlers = append(handlers, b.subs[ev.Kind]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(handler, ev)
	}
}

func (b *Bus) dispatch(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("events: handler for %s panicked: %v", ev.Kind, r)
		}
	}()
	handler(ev)
}
