package hotkey

import (
	"errors"
	"fmt"
	"sync"

	"bindkit/internal/events"
	"bindkit/internal/shared/logging"
)

// Backend is the OS global-hotkey primitive. Implementations must be safe
// for concurrent use and must deliver trigger ids on Triggers until Close.
type Backend interface {
	Register(id int, mods, vk uint32) error
	Unregister(id int) error
	Triggers() <-chan int
	Close() error
}

// ErrAlreadyRegistered reports that another application owns the chord at
// the OS level. Backends return it so callers can distinguish a claim
// conflict from a malformed registration.
var ErrAlreadyRegistered = errors.New("hotkey already registered by another application")

// OS registration ids live in a fixed range so an orphan sweep after an
// unclean shutdown can walk every id the process could have claimed.
const (
	idBase = 0xB000
	idSpan = 256
)

// sentinelID is reserved for availability probes and never holds a binding.
const sentinelID = idBase + idSpan

// TriggerFunc receives the script name whose chord fired.
type TriggerFunc func(name string)

// Adapter projects registry bindings onto a Backend, tracks OS ids, and
// routes trigger events back to script names.
type Adapter struct {
	backend   Backend
	bus       *events.Bus
	logger    logging.Logger
	onTrigger TriggerFunc

	mu     sync.Mutex
	byID   map[int]string // os id -> script name
	byName map[string]int // script name -> os id
	nextID int
	closed bool
}

// NewAdapter wires backend trigger delivery to onTrigger and starts the
// dispatch loop. The caller owns backend lifetime via Close.
func NewAdapter(backend Backend, bus *events.Bus, onTrigger TriggerFunc, logger logging.Logger) *Adapter {
	a := &Adapter{
		backend:   backend,
		bus:       bus,
		logger:    logging.OrNop(logger),
		onTrigger: onTrigger,
		byID:      make(map[int]string),
		byName:    make(map[string]int),
		nextID:    idBase,
	}
	go a.dispatchLoop()
	return a
}

func (a *Adapter) dispatchLoop() {
	for id := range a.backend.Triggers() {
		a.mu.Lock()
		name, ok := a.byID[id]
		a.mu.Unlock()
		if !ok {
			a.logger.Debug("hotkey: trigger for unknown id %d", id)
			continue
		}
		if a.onTrigger != nil {
			a.onTrigger(name)
		}
	}
}

// Register claims a chord with the OS for name. Every failure, malformed
// chord, claim conflict, or backend error, emits a registration_failed event
// with a reason so the UI can warn; the error is also returned.
func (a *Adapter) Register(name, chord string) error {
	mods, vk, err := ParseChord(chord)
	if err != nil {
		a.publishFailure(name, chord, "invalid chord: "+err.Error())
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New("hotkey adapter is closed")
	}
	if _, ok := a.byName[name]; ok {
		a.mu.Unlock()
		a.publishFailure(name, chord, "hotkey is already registered for this script")
		return fmt.Errorf("hotkey for %q is already registered", name)
	}
	id := a.allocIDLocked()
	a.byID[id] = name
	a.byName[name] = id
	a.mu.Unlock()

	if err := a.backend.Register(id, mods, vk); err != nil {
		a.mu.Lock()
		delete(a.byID, id)
		delete(a.byName, name)
		a.mu.Unlock()

		if errors.Is(err, ErrAlreadyRegistered) {
			a.publishFailure(name, chord, "chord is claimed by another application")
		} else {
			a.publishFailure(name, chord, "hotkey registration failed: "+err.Error())
		}
		return fmt.Errorf("register %s for %q: %w", chord, name, err)
	}

	a.logger.Debug("hotkey: registered %s for %q (id=%d)", chord, name, id)
	return nil
}

// Unregister releases the OS claim for name. Unknown names are a no-op.
func (a *Adapter) Unregister(name string) error {
	a.mu.Lock()
	id, ok := a.byName[name]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.byID, id)
	delete(a.byName, name)
	a.mu.Unlock()

	if err := a.backend.Unregister(id); err != nil {
		return fmt.Errorf("unregister hotkey for %q: %w", name, err)
	}
	a.logger.Debug("hotkey: unregistered %q (id=%d)", name, id)
	return nil
}

// RegisterAll claims every binding, collecting per-binding failures instead
// of stopping at the first. The returned map holds failures by script name.
func (a *Adapter) RegisterAll(bindings []Binding) map[string]error {
	failures := make(map[string]error)
	for _, b := range bindings {
		if err := a.Register(b.Name, b.Chord); err != nil {
			failures[b.Name] = err
			a.logger.Warn("hotkey: could not register %s for %q: %v", b.Chord, b.Name, err)
		}
	}
	return failures
}

// ValidateAll probes every binding's chord with the sentinel id and returns
// the names whose chords another application has since claimed. Bindings
// this adapter itself holds are skipped, they are known good.
func (a *Adapter) ValidateAll(bindings []Binding) []string {
	var dead []string
	for _, b := range bindings {
		a.mu.Lock()
		_, held := a.byName[b.Name]
		a.mu.Unlock()
		if held {
			continue
		}

		mods, vk, err := ParseChord(b.Chord)
		if err != nil {
			dead = append(dead, b.Name)
			continue
		}
		if err := a.backend.Register(sentinelID, mods, vk); err != nil {
			dead = append(dead, b.Name)
			continue
		}
		_ = a.backend.Unregister(sentinelID)
	}
	return dead
}

// UnregisterAll releases every tracked claim and then sweeps the whole id
// range for orphans left by a previous unclean shutdown.
func (a *Adapter) UnregisterAll() {
	a.mu.Lock()
	ids := make([]int, 0, len(a.byID))
	for id := range a.byID {
		ids = append(ids, id)
	}
	a.byID = make(map[int]string)
	a.byName = make(map[string]int)
	a.mu.Unlock()

	for _, id := range ids {
		_ = a.backend.Unregister(id)
	}
	for id := idBase; id < idBase+idSpan; id++ {
		_ = a.backend.Unregister(id)
	}
}

// Close releases all claims and shuts the backend down.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.UnregisterAll()
	return a.backend.Close()
}

// allocIDLocked hands out the next free id in the range, wrapping around
// occupied slots. The range is far larger than any realistic binding count.
func (a *Adapter) allocIDLocked() int {
	for i := 0; i < idSpan; i++ {
		id := idBase + (a.nextID-idBase+i)%idSpan
		if _, taken := a.byID[id]; !taken {
			a.nextID = id + 1
			return id
		}
	}
	// Range exhausted; reuse the base slot (callers will get an OS error).
	return idBase
}

func (a *Adapter) publishFailure(name, chord, message string) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(events.Event{
		Kind:    events.KindRegistrationFailed,
		Name:    name,
		Message: message,
		Data:    map[string]any{"chord": chord},
	})
}
