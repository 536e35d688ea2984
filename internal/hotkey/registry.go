package hotkey

import (
	"fmt"
	"sort"
	"sync"

	"bindkit/internal/events"
	"bindkit/internal/settings"
	"bindkit/internal/shared/logging"
)

// Registry is the persisted name-to-chord map. It enforces chord uniqueness
// and the reserved-combination rule, and flushes to settings before emitting
// change events so observers never see unpersisted state.
type Registry struct {
	store  *settings.Store
	bus    *events.Bus
	logger logging.Logger

	mu      sync.Mutex
	byName  map[string]string // script name -> normalized chord
	byChord map[string]string // normalized chord -> script name
}

// NewRegistry builds a registry and loads any persisted bindings. Entries
// whose stored chord no longer normalizes are dropped with a warning rather
// than failing the load.
func NewRegistry(store *settings.Store, bus *events.Bus, logger logging.Logger) *Registry {
	r := &Registry{
		store:   store,
		bus:     bus,
		logger:  logging.OrNop(logger),
		byName:  make(map[string]string),
		byChord: make(map[string]string),
	}
	r.load()
	return r
}

func (r *Registry) load() {
	if r.store == nil {
		return
	}
	for name, chord := range r.store.GroupStrings(settings.GroupHotkeys) {
		normalized, err := NormalizeChord(chord)
		if err != nil {
			r.logger.Warn("hotkey: dropping stored binding %q: %v", name, err)
			continue
		}
		if owner, taken := r.byChord[normalized]; taken {
			r.logger.Warn("hotkey: stored chord %s claimed by both %q and %q, keeping %q", normalized, owner, name, owner)
			continue
		}
		r.byName[name] = normalized
		r.byChord[normalized] = name
	}
}

// Add binds chord to name. Rebinding an existing name replaces its chord.
// Fails on reserved chords and on chords already owned by another script.
func (r *Registry) Add(name, chord string) error {
	normalized, err := NormalizeChord(chord)
	if err != nil {
		return err
	}
	if _, _, err := ParseChord(normalized); err != nil {
		return err
	}
	if IsReserved(normalized) {
		return fmt.Errorf("chord %s is reserved by the system", normalized)
	}

	r.mu.Lock()
	if owner, taken := r.byChord[normalized]; taken && owner != name {
		r.mu.Unlock()
		return fmt.Errorf("chord %s is already bound to %q", normalized, owner)
	}
	previous, rebind := r.byName[name]
	if rebind && previous == normalized {
		// Same mapping already in place; nothing to persist or announce.
		r.mu.Unlock()
		return nil
	}
	if rebind {
		delete(r.byChord, previous)
	}
	r.byName[name] = normalized
	r.byChord[normalized] = name
	r.mu.Unlock()

	if err := r.persist(name, normalized); err != nil {
		// Roll the indexes back so memory matches disk.
		r.mu.Lock()
		delete(r.byChord, normalized)
		if rebind {
			r.byName[name] = previous
			r.byChord[previous] = name
		} else {
			delete(r.byName, name)
		}
		r.mu.Unlock()
		return fmt.Errorf("persist hotkey for %q: %w", name, err)
	}

	kind := events.KindHotkeyAdded
	if rebind {
		kind = events.KindHotkeyUpdated
	}
	r.publish(kind, name, normalized)
	r.logger.Info("hotkey: bound %s to %q", normalized, name)
	return nil
}

// Remove unbinds a script's chord. Removing an unbound name is a no-op.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	chord, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.byName, name)
	delete(r.byChord, chord)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(settings.HotkeyKey(name)); err != nil {
			return fmt.Errorf("remove persisted hotkey for %q: %w", name, err)
		}
	}

	r.publish(events.KindHotkeyRemoved, name, chord)
	r.logger.Info("hotkey: unbound %s from %q", chord, name)
	return nil
}

// ChordFor returns the chord bound to name, if any.
func (r *Registry) ChordFor(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chord, ok := r.byName[name]
	return chord, ok
}

// OwnerOf returns the script owning chord, if any.
func (r *Registry) OwnerOf(chord string) (string, bool) {
	normalized, err := NormalizeChord(chord)
	if err != nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byChord[normalized]
	return name, ok
}

// Bindings returns a name-sorted copy of all bindings.
func (r *Registry) Bindings() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Binding, 0, len(r.byName))
	for name, chord := range r.byName {
		out = append(out, Binding{Name: name, Chord: chord})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Binding pairs a script name with its normalized chord.
type Binding struct {
	Name  string
	Chord string
}

func (r *Registry) persist(name, chord string) error {
	if r.store == nil {
		return nil
	}
	return r.store.Set(settings.HotkeyKey(name), chord)
}

func (r *Registry) publish(kind events.Kind, name, chord string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		Kind:    kind,
		Name:    name,
		Message: chord,
		Data:    map[string]any{"chord": chord},
	})
}
