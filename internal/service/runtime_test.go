package service

import (
	"sync"
	"testing"
	"time"

	"bindkit/internal/events"
)

// newHandle builds a runtime record without spawning anything. exited handles
// get a pre-closed exit channel so state probes see a dead process.
func newHandle(name string, exited bool) *handle {
	h := &handle{
		scriptName: name,
		scriptPath: "/scripts/" + name,
		pid:        4321,
		startTime:  time.Now(),
		state:      StateRunning,
		exitCh:     make(chan struct{}),
	}
	if exited {
		close(h.exitCh)
	}
	return h
}

func insert(r *Runtime, h *handle) {
	r.mu.Lock()
	r.active[h.scriptName] = h
	r.mu.Unlock()
}

// eventSink collects every published event for later assertions.
type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func newEventSink(bus *events.Bus) *eventSink {
	s := &eventSink{}
	bus.SubscribeAll(func(ev events.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, ev)
	})
	return s
}

func (s *eventSink) ofKind(kind events.Kind) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestStopUnknownService(t *testing.T) {
	r := NewRuntime(t.TempDir(), nil, nil, nil)
	if err := r.Stop("ghost.py", time.Second); err == nil {
		t.Fatal("stopping an unknown service should fail")
	}
}

func TestStopExitedServiceCleansUp(t *testing.T) {
	bus := events.NewBus(nil)
	sink := newEventSink(bus)
	r := NewRuntime(t.TempDir(), nil, bus, nil)
	insert(r, newHandle("svc.py", true))

	if err := r.Stop("svc.py", time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := r.Snapshot("svc.py"); ok {
		t.Fatal("handle survived stop")
	}

	changes := sink.ofKind(events.KindServiceStateChanged)
	if len(changes) != 2 {
		t.Fatalf("state changes = %d, want stopping then stopped", len(changes))
	}
	if changes[0].Message != string(StateStopping) || changes[1].Message != string(StateStopped) {
		t.Fatalf("transitions = %q, %q", changes[0].Message, changes[1].Message)
	}
}

func TestStartRejectsRunningDuplicate(t *testing.T) {
	r := NewRuntime(t.TempDir(), nil, nil, nil)
	insert(r, newHandle("svc.py", false))

	if _, err := r.Start("svc.py", "/scripts/svc.py", nil); err == nil {
		t.Fatal("duplicate start accepted")
	}
}

func TestSnapshotsSortedByName(t *testing.T) {
	r := NewRuntime(t.TempDir(), nil, nil, nil)
	insert(r, newHandle("c.py", false))
	insert(r, newHandle("a.py", true))
	insert(r, newHandle("b.py", false))

	snaps := r.Snapshots()
	if len(snaps) != 3 {
		t.Fatalf("snapshots = %d", len(snaps))
	}
	if snaps[0].ScriptName != "a.py" || snaps[2].ScriptName != "c.py" {
		t.Fatalf("order = %s, %s, %s", snaps[0].ScriptName, snaps[1].ScriptName, snaps[2].ScriptName)
	}
	if !snaps[0].Exited || snaps[1].Exited {
		t.Fatal("exited flags wrong")
	}
}

func TestMarkCrashedConsumesOnce(t *testing.T) {
	r := NewRuntime(t.TempDir(), nil, nil, nil)
	insert(r, newHandle("svc.py", true))

	h := r.markCrashed("svc.py")
	if h == nil {
		t.Fatal("first markCrashed returned nil")
	}
	if h.state != StateCrashed {
		t.Fatalf("state = %s", h.state)
	}
	if r.markCrashed("svc.py") != nil {
		t.Fatal("crash consumed twice")
	}
}

func TestMarkCrashedIgnoresLiveProcess(t *testing.T) {
	r := NewRuntime(t.TempDir(), nil, nil, nil)
	insert(r, newHandle("svc.py", false))

	if r.markCrashed("svc.py") != nil {
		t.Fatal("live process marked as crashed")
	}
}

func TestMarkPendingRestart(t *testing.T) {
	r := NewRuntime(t.TempDir(), nil, nil, nil)
	insert(r, newHandle("svc.py", true))

	if !r.markPendingRestart("svc.py") {
		t.Fatal("first mark rejected")
	}
	if r.markPendingRestart("svc.py") {
		t.Fatal("duplicate restart scheduled")
	}
	if r.markPendingRestart("ghost.py") {
		t.Fatal("unknown service scheduled")
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	r := NewRuntime(t.TempDir(), nil, nil, nil)
	h := newHandle("svc.py", true)
	insert(r, h)

	r.cleanup("svc.py", h, StateCrashed)
	r.cleanup("svc.py", h, StateCrashed)

	if _, ok := r.Snapshot("svc.py"); ok {
		t.Fatal("handle survived cleanup")
	}
	if h.state != StateCrashed {
		t.Fatalf("state = %s", h.state)
	}
}
