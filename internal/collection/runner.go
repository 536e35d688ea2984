package collection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bindkit/internal/events"
	"bindkit/internal/executor"
	"bindkit/internal/script"
	"bindkit/internal/shared/logging"
)

// DefaultMaxConcurrent bounds simultaneous subprocess executions. Resident
// interpreter strategies are serialized separately and do not count here.
const DefaultMaxConcurrent = 4

// RunInfo describes one in-flight execution.
type RunInfo struct {
	ID         string
	Identifier string
	Started    time.Time
}

type run struct {
	id      string
	started time.Time
	cancel  context.CancelFunc
}

// Runner enforces the execution policy over the executor: at most one run
// per script, a bounded pool for subprocess strategies, and serialized
// access to the resident interpreter strategies.
type Runner struct {
	exec   *executor.Executor
	bus    *events.Bus
	logger logging.Logger

	mu       sync.Mutex
	inflight map[string]*run

	inprocMu sync.Mutex
	slots    chan struct{}
}

// NewRunner creates a runner. maxConcurrent falls back to
// DefaultMaxConcurrent when zero or negative.
func NewRunner(exec *executor.Executor, bus *events.Bus, maxConcurrent int, logger logging.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Runner{
		exec:     exec,
		bus:      bus,
		logger:   logging.OrNop(logger),
		inflight: make(map[string]*run),
		slots:    make(chan struct{}, maxConcurrent),
	}
}

// Run executes one script, blocking until it finishes. A second Run for the
// same script while one is in flight is rejected immediately, never queued.
func (r *Runner) Run(ctx context.Context, info *script.Info, args map[string]string) *executor.Result {
	if info == nil {
		return &executor.Result{Success: false, Message: "no script provided"}
	}

	runCtx, cancel := context.WithCancel(ctx)
	entry := &run{id: uuid.NewString(), started: time.Now(), cancel: cancel}

	r.mu.Lock()
	if _, busy := r.inflight[info.Identifier]; busy {
		r.mu.Unlock()
		cancel()
		r.logger.Debug("runner: rejected %s, already running", info.Identifier)
		return &executor.Result{
			Success: false,
			Message: "script is already running: " + info.Identifier,
		}
	}
	r.inflight[info.Identifier] = entry
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		if r.inflight[info.Identifier] == entry {
			delete(r.inflight, info.Identifier)
		}
		r.mu.Unlock()
	}()

	r.publish(events.KindScriptStarted, info.Identifier, entry.id, nil)

	result := r.dispatch(runCtx, info, args)

	r.publish(events.KindScriptFinished, info.Identifier, entry.id, result)
	return result
}

// dispatch routes by strategy: resident interpreter strategies share one
// serialization lock, everything else takes a pool slot.
func (r *Runner) dispatch(ctx context.Context, info *script.Info, args map[string]string) *executor.Result {
	switch info.Strategy {
	case script.StrategyInProcessFunction, script.StrategyInProcessModule:
		r.inprocMu.Lock()
		defer r.inprocMu.Unlock()
		return r.exec.Execute(ctx, info, args)
	default:
		select {
		case r.slots <- struct{}{}:
		case <-ctx.Done():
			return &executor.Result{
				Success: false,
				Message: "execution canceled while waiting for a worker slot",
			}
		}
		defer func() { <-r.slots }()
		return r.exec.Execute(ctx, info, args)
	}
}

// Cancel requests a soft stop of a script's in-flight run. The execution
// path observes the canceled context and terminates the child process.
// Returns false when nothing is running under that identifier.
func (r *Runner) Cancel(identifier string) bool {
	r.mu.Lock()
	entry, ok := r.inflight[identifier]
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.logger.Info("runner: canceling %s (run %s)", identifier, entry.id)
	entry.cancel()
	return true
}

// IsRunning reports whether a script has an in-flight run.
func (r *Runner) IsRunning(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[identifier]
	return ok
}

// Running lists in-flight executions, newest first.
func (r *Runner) Running() []RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RunInfo, 0, len(r.inflight))
	for identifier, entry := range r.inflight {
		out = append(out, RunInfo{ID: entry.id, Identifier: identifier, Started: entry.started})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out
}

func (r *Runner) publish(kind events.Kind, identifier, runID string, result *executor.Result) {
	if r.bus == nil {
		return
	}
	ev := events.Event{
		Kind: kind,
		Name: identifier,
		Data: map[string]any{"run_id": runID},
	}
	if result != nil {
		ev.Message = result.Message
		ev.Data["success"] = result.Success
	}
	r.bus.Publish(ev)
}
