//go:build !windows

package hotkey

import (
	"sync"

	"bindkit/internal/shared/logging"
)

// nullBackend accepts registrations without touching the OS. Global hotkeys
// need a desktop session message pump, which only the Windows build wires;
// other platforms keep the registry and adapter functional so bindings can
// be edited even where they cannot fire.
type nullBackend struct {
	mu       sync.Mutex
	claimed  map[int]struct{}
	triggers chan int
	closed   bool
}

// NewSystemBackend returns an inert backend on non-Windows platforms.
func NewSystemBackend(logger logging.Logger) Backend {
	logging.OrNop(logger).Warn("hotkey: global hotkeys are not supported on this platform, bindings will not fire")
	return &nullBackend{
		claimed:  make(map[int]struct{}),
		triggers: make(chan int),
	}
}

func (b *nullBackend) Register(id int, mods, vk uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claimed[id] = struct{}{}
	return nil
}

func (b *nullBackend) Unregister(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claimed, id)
	return nil
}

func (b *nullBackend) Triggers() <-chan int {
	return b.triggers
}

func (b *nullBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.triggers)
	}
	return nil
}
