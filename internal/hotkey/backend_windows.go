//go:build windows

package hotkey

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"bindkit/internal/shared/logging"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procRegisterHotKey   = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey = user32.NewProc("UnregisterHotKey")
	procPeekMessageW     = user32.NewProc("PeekMessageW")
)

const (
	wmHotkey = 0x0312
	pmRemove = 0x0001

	errHotkeyAlreadyRegistered = 1409
)

type msg struct {
	hwnd    uintptr
	message uint32
	wparam  uintptr
	lparam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

type hotkeyRequest struct {
	register bool
	id       int
	mods     uint32
	vk       uint32
	reply    chan error
}

// windowsBackend services RegisterHotKey calls and the WM_HOTKEY message
// pump on one locked OS thread. Thread affinity is a Win32 requirement:
// hotkeys deliver to the thread that registered them.
type windowsBackend struct {
	logger    logging.Logger
	requests  chan hotkeyRequest
	triggers  chan int
	done      chan struct{}
	closeOnce sync.Once
}

// NewSystemBackend starts the hotkey message pump thread.
func NewSystemBackend(logger logging.Logger) Backend {
	b := &windowsBackend{
		logger:   logging.OrNop(logger),
		requests: make(chan hotkeyRequest),
		triggers: make(chan int, 16),
		done:     make(chan struct{}),
	}
	go b.pump()
	return b
}

func (b *windowsBackend) pump() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(b.triggers)

	idle := time.NewTicker(25 * time.Millisecond)
	defer idle.Stop()

	for {
		select {
		case req := <-b.requests:
			req.reply <- b.service(req)
		case <-b.done:
			return
		case <-idle.C:
			b.drainMessages()
		}
	}
}

func (b *windowsBackend) service(req hotkeyRequest) error {
	if req.register {
		ok, _, callErr := procRegisterHotKey.Call(0, uintptr(req.id), uintptr(req.mods), uintptr(req.vk))
		if ok == 0 {
			if errno, isErrno := callErr.(windows.Errno); isErrno && errno == errHotkeyAlreadyRegistered {
				return ErrAlreadyRegistered
			}
			return fmt.Errorf("RegisterHotKey(id=%d): %w", req.id, callErr)
		}
		return nil
	}
	ok, _, callErr := procUnregisterHotKey.Call(0, uintptr(req.id))
	if ok == 0 {
		return fmt.Errorf("UnregisterHotKey(id=%d): %w", req.id, callErr)
	}
	return nil
}

func (b *windowsBackend) drainMessages() {
	var m msg
	for {
		got, _, _ := procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmRemove)
		if got == 0 {
			return
		}
		if m.message == wmHotkey {
			select {
			case b.triggers <- int(m.wparam):
			default:
				b.logger.Warn("hotkey: trigger queue full, dropping id %d", int(m.wparam))
			}
		}
	}
}

func (b *windowsBackend) roundTrip(req hotkeyRequest) error {
	req.reply = make(chan error, 1)
	select {
	case b.requests <- req:
		return <-req.reply
	case <-b.done:
		return fmt.Errorf("hotkey backend is closed")
	}
}

func (b *windowsBackend) Register(id int, mods, vk uint32) error {
	return b.roundTrip(hotkeyRequest{register: true, id: id, mods: mods, vk: vk})
}

func (b *windowsBackend) Unregister(id int) error {
	return b.roundTrip(hotkeyRequest{register: false, id: id})
}

func (b *windowsBackend) Triggers() <-chan int {
	return b.triggers
}

func (b *windowsBackend) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
