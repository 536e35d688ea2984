package hotkey

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bindkit/internal/events"
)

// fakeBackend records registrations in memory and lets tests fire triggers.
type fakeBackend struct {
	mu       sync.Mutex
	claimed  map[int]uint32 // id -> vk
	taken    map[uint32]bool
	triggers chan int

	registerCalls   int
	unregisterCalls int
	failWith        error // returned by Register when set
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		claimed:  make(map[int]uint32),
		taken:    make(map[uint32]bool),
		triggers: make(chan int, 8),
	}
}

func (b *fakeBackend) Register(id int, mods, vk uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerCalls++
	if b.failWith != nil {
		return b.failWith
	}
	if b.taken[vk] {
		return ErrAlreadyRegistered
	}
	b.claimed[id] = vk
	b.taken[vk] = true
	return nil
}

func (b *fakeBackend) Unregister(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unregisterCalls++
	vk, ok := b.claimed[id]
	if !ok {
		return errors.New("no such registration")
	}
	delete(b.claimed, id)
	delete(b.taken, vk)
	return nil
}

func (b *fakeBackend) Triggers() <-chan int { return b.triggers }

func (b *fakeBackend) Close() error {
	close(b.triggers)
	return nil
}

func (b *fakeBackend) fire(id int) { b.triggers <- id }

func (b *fakeBackend) claimedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.claimed)
}

// markTaken simulates another application owning a chord.
func (b *fakeBackend) markTaken(vk uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taken[vk] = true
}

func TestAdapterRegisterAndTrigger(t *testing.T) {
	backend := newFakeBackend()
	fired := make(chan string, 1)
	a := NewAdapter(backend, nil, func(name string) { fired <- name }, nil)

	if err := a.Register("backup.py", "ctrl+shift+b"); err != nil {
		t.Fatalf("register: %v", err)
	}

	a.mu.Lock()
	id, ok := a.byName["backup.py"]
	a.mu.Unlock()
	if !ok {
		t.Fatal("no os id tracked")
	}

	backend.fire(id)
	select {
	case name := <-fired:
		if name != "backup.py" {
			t.Fatalf("trigger for %q", name)
		}
	case <-time.After(time.Second):
		t.Fatal("trigger not delivered")
	}
}

func TestAdapterClaimConflictEmitsEvent(t *testing.T) {
	backend := newFakeBackend()
	backend.markTaken('B')

	bus := events.NewBus(nil)
	var mu sync.Mutex
	var failures []events.Event
	bus.Subscribe(events.KindRegistrationFailed, func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, ev)
	})

	a := NewAdapter(backend, bus, nil, nil)
	err := a.Register("backup.py", "ctrl+shift+b")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrAlreadyRegistered", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 1 || failures[0].Name != "backup.py" {
		t.Fatalf("failure events = %+v", failures)
	}

	// The failed claim must not leave index residue.
	if a.Unregister("backup.py") != nil {
		t.Fatal("unregister of a failed claim should be a no-op")
	}
	if backend.claimedCount() != 0 {
		t.Fatal("backend kept a claim")
	}
}

func TestEveryRegistrationFailurePublishesReason(t *testing.T) {
	backend := newFakeBackend()

	bus := events.NewBus(nil)
	var mu sync.Mutex
	reasons := make(map[string]string)
	bus.Subscribe(events.KindRegistrationFailed, func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		reasons[ev.Name] = ev.Message
	})

	a := NewAdapter(backend, bus, nil, nil)

	// Malformed chord never reaches the backend.
	if err := a.Register("bad.py", "ctrl+"); err == nil {
		t.Fatal("malformed chord accepted")
	}
	// Generic backend failure, not a claim conflict.
	backend.failWith = errors.New("thread message pump gone")
	if err := a.Register("broken.py", "ctrl+shift+3"); err == nil {
		t.Fatal("backend failure swallowed")
	}
	backend.failWith = nil

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(reasons["bad.py"], "invalid chord") {
		t.Fatalf("bad.py reason = %q", reasons["bad.py"])
	}
	if !strings.Contains(reasons["broken.py"], "registration failed") {
		t.Fatalf("broken.py reason = %q", reasons["broken.py"])
	}
}

func TestAdapterDuplicateRegisterRejected(t *testing.T) {
	backend := newFakeBackend()
	a := NewAdapter(backend, nil, nil, nil)

	if err := a.Register("a.py", "ctrl+shift+1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.Register("a.py", "ctrl+shift+2"); err == nil {
		t.Fatal("duplicate name accepted")
	}
}

func TestValidateAllProbesWithSentinel(t *testing.T) {
	backend := newFakeBackend()
	a := NewAdapter(backend, nil, nil, nil)

	// One binding the adapter holds itself, one free, one claimed elsewhere.
	if err := a.Register("held.py", "ctrl+shift+1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	backend.markTaken('9')

	bindings := []Binding{
		{Name: "held.py", Chord: "Ctrl+Shift+1"},
		{Name: "free.py", Chord: "Ctrl+Shift+2"},
		{Name: "dead.py", Chord: "Ctrl+Shift+9"},
	}
	dead := a.ValidateAll(bindings)
	if len(dead) != 1 || dead[0] != "dead.py" {
		t.Fatalf("dead = %v", dead)
	}

	// Probes must not leave sentinel claims behind.
	if backend.claimedCount() != 1 {
		t.Fatalf("claims after validate = %d, want 1", backend.claimedCount())
	}
}

func TestUnregisterAllSweepsIDRange(t *testing.T) {
	backend := newFakeBackend()
	a := NewAdapter(backend, nil, nil, nil)

	if err := a.Register("a.py", "ctrl+shift+1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.Register("b.py", "ctrl+shift+2"); err != nil {
		t.Fatalf("register: %v", err)
	}

	a.UnregisterAll()
	if backend.claimedCount() != 0 {
		t.Fatal("claims survived UnregisterAll")
	}
	// The orphan sweep walks the whole range on top of the tracked ids.
	if backend.unregisterCalls < idSpan {
		t.Fatalf("sweep covered %d ids, want at least %d", backend.unregisterCalls, idSpan)
	}
}
