package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bindkit/internal/events"
	"bindkit/internal/script"
	"bindkit/internal/shared/logging"
)

// DebounceWindow coalesces bursts of filesystem events (editor save dances,
// bulk copies) into one change notification.
const DebounceWindow = 500 * time.Millisecond

// Watcher emits a scripts_changed event when the managed directory's
// contents change, debounced so one save produces one rescan.
type Watcher struct {
	dir    string
	bus    *events.Bus
	logger logging.Logger

	fw       *fsnotify.Watcher
	mu       sync.Mutex
	debounce *time.Timer
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWatcher starts watching dir. The caller must Stop it.
func NewWatcher(dir string, bus *events.Bus, logger logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:    dir,
		bus:    bus,
		logger: logging.OrNop(logger),
		fw:     fw,
		stopCh: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.arm()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("loader: watcher error: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

// relevant filters to events that can change the catalog: create, remove,
// rename, or write of a supported script file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, "__") {
		return false
	}
	return script.KindForPath(base) != script.KindUnknown
}

// arm (re)starts the debounce timer. Each new event pushes the fire out.
func (w *Watcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(DebounceWindow, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.logger.Debug("loader: script directory changed, requesting rescan")
		if w.bus != nil {
			w.bus.Publish(events.Event{
				Kind:    events.KindScriptsChanged,
				Message: "script directory changed",
			})
		}
	})
}

// Stop ends watching and cancels any pending notification.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
		_ = w.fw.Close()
	})
}
