// Package service supervises long-lived script processes: detached spawn
// with merged output to a per-service log, a kill token covering the whole
// process tree, and a monitor applying the crash/restart policy.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bindkit/internal/events"
	"bindkit/internal/interp"
	"bindkit/internal/proc"
	"bindkit/internal/shared/logging"
)

// State is the lifecycle state of one supervised service.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
	StateError    State = "error"
)

// StopTimeout is the default graceful stop window.
const StopTimeout = 10 * time.Second

// handle is the runtime's private record of one active service.
type handle struct {
	scriptName   string
	scriptPath   string
	cmd          *exec.Cmd
	pid          int
	startTime    time.Time
	restartCount int
	logFilePath  string
	logFile      *os.File
	arguments    map[string]string
	state        State
	token        *proc.KillToken

	exitCh  chan struct{} // closed when the process exits
	exitErr error

	pendingRestart bool
}

func (h *handle) exited() bool {
	select {
	case <-h.exitCh:
		return true
	default:
		return false
	}
}

// Snapshot is the read-only view handed to the monitor and the UI.
type Snapshot struct {
	ScriptName   string
	ScriptPath   string
	PID          int
	StartTime    time.Time
	RestartCount int
	LogFilePath  string
	State        State
	Exited       bool
}

// Runtime owns the active-services map.
type Runtime struct {
	logDir   string
	resolver *interp.Resolver
	bus      *events.Bus
	logger   logging.Logger

	mu     sync.Mutex
	active map[string]*handle
}

// NewRuntime creates a service runtime writing logs under
// <logDir>/services/<name>.log.
func NewRuntime(logDir string, resolver *interp.Resolver, bus *events.Bus, logger logging.Logger) *Runtime {
	return &Runtime{
		logDir:   logDir,
		resolver: resolver,
		bus:      bus,
		logger:   logging.OrNop(logger),
		active:   make(map[string]*handle),
	}
}

// Start spawns a service and returns its pid. It satisfies the executor's
// ServiceStarter seam. A manual start resets the restart counter.
func (r *Runtime) Start(name, path string, args map[string]string) (int, error) {
	h, err := r.startService(name, path, args, 0)
	if err != nil {
		return 0, err
	}
	return h.pid, nil
}

// startService spawns the child, attaches the kill token, and registers the
// handle. Any failure after partial progress rolls back: log closed, token
// released, entry removed.
func (r *Runtime) startService(name, path string, args map[string]string, restartCount int) (*handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[name]; ok && !existing.exited() {
		return nil, fmt.Errorf("service %q is already running (pid %d)", name, existing.pid)
	}
	// A crashed leftover is replaced.
	delete(r.active, name)

	logPath := filepath.Join(r.logDir, "services", name+".log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create service log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open service log: %w", err)
	}

	argv, err := r.buildArgv(path, args)
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	proc.Detach(cmd)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONUTF8=1", "PYTHONUNBUFFERED=1")

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("spawn service %q: %w", name, err)
	}

	token, err := proc.NewKillToken(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = logFile.Close()
		return nil, fmt.Errorf("attach kill token for %q: %w", name, err)
	}

	h := &handle{
		scriptName:   name,
		scriptPath:   path,
		cmd:          cmd,
		pid:          cmd.Process.Pid,
		startTime:    time.Now(),
		restartCount: restartCount,
		logFilePath:  logPath,
		logFile:      logFile,
		arguments:    copyArgs(args),
		state:        StateRunning,
		token:        token,
		exitCh:       make(chan struct{}),
	}
	r.active[name] = h

	go func() {
		h.exitErr = cmd.Wait()
		close(h.exitCh)
	}()

	r.logger.Info("service: started %q pid=%d log=%s", name, h.pid, logPath)
	r.publish(events.KindServiceStateChanged, name, string(StateRunning), h.pid)
	return h, nil
}

// Stop gracefully stops a service, escalating to a group kill after timeout.
// Cleanup is idempotent; stopping an unknown service is an error.
func (r *Runtime) Stop(name string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = StopTimeout
	}

	r.mu.Lock()
	h, ok := r.active[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("service %q is not running", name)
	}
	h.state = StateStopping
	r.mu.Unlock()

	r.publish(events.KindServiceStateChanged, name, string(StateStopping), h.pid)

	if !h.exited() {
		if err := h.token.Terminate(); err != nil {
			r.logger.Debug("service: terminate %q: %v", name, err)
		}
		select {
		case <-h.exitCh:
		case <-time.After(timeout):
			r.logger.Warn("service: %q ignored graceful stop, killing group", name)
			_ = h.token.Close()
			<-h.exitCh
		}
	}

	r.cleanup(name, h, StateStopped)
	return nil
}

// StopAll stops every active service and returns how many were stopped.
func (r *Runtime) StopAll(timeout time.Duration) int {
	r.mu.Lock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	r.mu.Unlock()

	stopped := 0
	for _, name := range names {
		if err := r.Stop(name, timeout); err == nil {
			stopped++
		}
	}
	return stopped
}

// Snapshot returns the current view of one service.
func (r *Runtime) Snapshot(name string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[name]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(h), true
}

// Snapshots returns the current view of all services, sorted by name.
func (r *Runtime) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.active))
	for _, h := range r.active {
		out = append(out, snapshotOf(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScriptName < out[j].ScriptName })
	return out
}

func snapshotOf(h *handle) Snapshot {
	return Snapshot{
		ScriptName:   h.scriptName,
		ScriptPath:   h.scriptPath,
		PID:          h.pid,
		StartTime:    h.startTime,
		RestartCount: h.restartCount,
		LogFilePath:  h.logFilePath,
		State:        h.state,
		Exited:       h.exited(),
	}
}

// cleanup releases the log file and kill token, removes the entry, and
// emits the terminal state. Safe to call more than once for the same handle.
func (r *Runtime) cleanup(name string, h *handle, terminal State) {
	r.mu.Lock()
	if h.logFile != nil {
		_ = h.logFile.Close()
		h.logFile = nil
	}
	if h.token != nil {
		_ = h.token.Close()
		h.token = nil
	}
	h.state = terminal
	if r.active[name] == h {
		delete(r.active, name)
	}
	r.mu.Unlock()

	r.logger.Info("service: %q cleaned up (state=%s)", name, terminal)
	r.publish(events.KindServiceStateChanged, name, string(terminal), h.pid)
}

// markCrashed flips a handle from Running to Crashed under the lock. Returns
// nil when the crash was already consumed or a stop raced the exit.
func (r *Runtime) markCrashed(name string) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.active[name]
	if !ok || h.state != StateRunning || !h.exited() {
		return nil
	}
	h.state = StateCrashed
	return h
}

// markPendingRestart sets the pending marker, reporting false when a restart
// is already scheduled or the handle is gone.
func (r *Runtime) markPendingRestart(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.active[name]
	if !ok || h.pendingRestart {
		return false
	}
	h.pendingRestart = true
	return true
}

// respawn replaces a crashed handle with a fresh spawn, preserving the
// restart counter across the new handle.
func (r *Runtime) respawn(name string) error {
	r.mu.Lock()
	h, ok := r.active[name]
	if !ok || h.state != StateCrashed {
		// A manual stop consumed the handle between scheduling and firing.
		r.mu.Unlock()
		return nil
	}
	path := h.scriptPath
	args := copyArgs(h.arguments)
	nextCount := h.restartCount + 1
	r.mu.Unlock()

	r.cleanup(name, h, StateCrashed)

	if _, err := r.startService(name, path, args, nextCount); err != nil {
		return err
	}
	r.logger.Info("service: restarted %q (attempt %d)", name, nextCount)
	return nil
}

func (r *Runtime) buildArgv(path string, args map[string]string) ([]string, error) {
	python, err := r.resolver.Resolve(interp.KindPython)
	if err != nil {
		return nil, fmt.Errorf("python interpreter unavailable: %w", err)
	}

	argv := []string{python, path}
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if value := args[name]; value != "" {
			argv = append(argv, "--"+name, value)
		}
	}
	return argv, nil
}

func (r *Runtime) publish(kind events.Kind, name, state string, pid int) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		Kind:    kind,
		Name:    name,
		Message: state,
		Data:    map[string]any{"pid": pid, "state": state},
	})
}

func copyArgs(args map[string]string) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
