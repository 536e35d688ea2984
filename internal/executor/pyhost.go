package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"bindkit/internal/proc"
	"bindkit/internal/shared/logging"
)

// teardownGrace is how long a host worker gets to exit after shutdown.
const teardownGrace = 2 * time.Second

// pyBootstrap is the worker program for the in-process strategies. It keeps
// the user's module resident between invocations, reloads it per call, and
// speaks line-delimited JSON on stdin/stdout. Module prints are captured and
// returned in the response so they cannot corrupt the protocol stream.
const pyBootstrap = `
import sys, json, io, gc, inspect, importlib.util, contextlib

SCRIPT_PATH = sys.argv[1]
MODULE_NAME = sys.argv[2]

proto_in = sys.stdin
proto_out = sys.stdout

_module = None

def _load():
    global _module
    spec = importlib.util.spec_from_file_location(MODULE_NAME, SCRIPT_PATH)
    mod = importlib.util.module_from_spec(spec)
    sys.modules[MODULE_NAME] = mod
    spec.loader.exec_module(mod)
    _module = mod

def _reload():
    global _module
    if _module is None:
        _load()
        return
    try:
        importlib.reload(_module)
    except Exception:
        _module = None
        sys.modules.pop(MODULE_NAME, None)
        _load()

def _convert(value):
    out = {"success": True, "message": "completed"}
    if value is None:
        pass
    elif isinstance(value, bool):
        out["success"] = value
        out["message"] = "completed" if value else "failed"
    elif isinstance(value, dict):
        out["success"] = bool(value.get("success", True))
        if "message" in value:
            out["message"] = str(value["message"])
        out["structured"] = value
    elif isinstance(value, str):
        out["message"] = value
    else:
        out["message"] = str(value)
    return out

def _call(func_name, args):
    _reload()
    fn = getattr(_module, func_name, None)
    if fn is None:
        return {"success": False, "message": "function %r not found" % func_name}
    params = inspect.signature(fn).parameters
    accepted = {k: v for k, v in args.items() if k in params}
    return _convert(fn(**accepted))

def _exec(argv):
    global _module
    saved = sys.argv
    sys.argv = list(argv)
    try:
        _module = None
        sys.modules.pop(MODULE_NAME, None)
        _load()
        return {"success": True, "message": "completed"}
    finally:
        sys.argv = saved

def _teardown():
    global _module
    mod = _module
    _module = None
    sys.modules.pop(MODULE_NAME, None)
    if mod is not None:
        try:
            mod.__dict__.clear()
        except Exception:
            pass
    gc.collect()

for line in proto_in:
    try:
        req = json.loads(line)
    except Exception:
        continue
    op = req.get("op")
    if op == "shutdown":
        _teardown()
        break
    buf = io.StringIO()
    try:
        with contextlib.redirect_stdout(buf):
            if op == "call":
                resp = _call(req.get("func") or "main", req.get("args") or {})
            elif op == "exec":
                resp = _exec(req.get("argv") or [SCRIPT_PATH])
            elif op == "ping":
                resp = {"success": True, "message": "pong"}
            else:
                resp = {"success": False, "message": "unknown op %r" % op}
        resp["ok"] = True
    except Exception as exc:
        resp = {"ok": False, "success": False, "message": str(exc), "error": str(exc)}
    resp["output"] = buf.getvalue()
    proto_out.write(json.dumps(resp) + "\n")
    proto_out.flush()
`

var moduleNameSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

type hostResponse struct {
	OK         bool           `json:"ok"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Error      string         `json:"error"`
	Output     string         `json:"output"`
	Structured map[string]any `json:"structured"`
}

// PyHost is a resident interpreter worker holding one loaded script module.
// It satisfies modcache.Module; cache eviction tears the worker down.
type PyHost struct {
	name       string
	scriptPath string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	dead   bool
	logger logging.Logger
}

// NewPyHost spawns a worker for the script at scriptPath.
func NewPyHost(python, name, scriptPath string, logger logging.Logger) (*PyHost, error) {
	moduleName := "bindkit_mod_" + moduleNameSanitizer.ReplaceAllString(strings.ToLower(name), "_")

	cmd := exec.Command(python, "-u", "-c", pyBootstrap, scriptPath, moduleName)
	proc.Detach(cmd)
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("module host stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("module host stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start module host: %w", err)
	}

	return &PyHost{
		name:       name,
		scriptPath: scriptPath,
		cmd:        cmd,
		stdin:      stdin,
		reader:     bufio.NewReader(stdout),
		logger:     logging.OrNop(logger),
	}, nil
}

// Name returns the canonical identifier this host serves.
func (h *PyHost) Name() string {
	return h.name
}

// Healthy reports whether the worker can still serve requests.
func (h *PyHost) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.dead
}

// CallFunction reloads the module and invokes the named function with the
// name-matched subset of args.
func (h *PyHost) CallFunction(ctx context.Context, funcName string, args map[string]any, timeout time.Duration) *Result {
	return h.roundTrip(ctx, map[string]any{"op": "call", "func": funcName, "args": args}, timeout)
}

// ExecModule re-executes the module top to bottom under the simulated argv.
func (h *PyHost) ExecModule(ctx context.Context, argv []string, timeout time.Duration) *Result {
	return h.roundTrip(ctx, map[string]any{"op": "exec", "argv": argv}, timeout)
}

func (h *PyHost) roundTrip(ctx context.Context, req map[string]any, timeout time.Duration) *Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dead {
		return &Result{Success: false, Message: "module host is not running", Error: "module host is not running"}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return &Result{Success: false, Message: "encode request failed", Error: err.Error()}
	}
	if _, err := h.stdin.Write(append(payload, '\n')); err != nil {
		h.killLocked()
		return &Result{Success: false, Message: "module host write failed", Error: err.Error()}
	}

	type readResult struct {
		line []byte
		err  error
	}
	lineCh := make(chan readResult, 1)
	go func() {
		line, err := h.reader.ReadBytes('\n')
		lineCh <- readResult{line: line, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var line []byte
	select {
	case rr := <-lineCh:
		if rr.err != nil {
			h.killLocked()
			return &Result{Success: false, Message: "module host closed its pipe", Error: rr.err.Error()}
		}
		line = rr.line
	case <-ctx.Done():
		h.killLocked()
		return &Result{Success: false, Message: "execution cancelled", Error: ctx.Err().Error()}
	case <-timer.C:
		h.killLocked()
		msg := fmt.Sprintf("execution timed out after %s", timeout)
		return &Result{Success: false, Message: msg, Error: msg, ReturnCode: intPtr(-1)}
	}

	var resp hostResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return &Result{Success: false, Message: "malformed module host response", Error: err.Error()}
	}

	res := &Result{
		Success:    resp.Success,
		Message:    resp.Message,
		Output:     resp.Output,
		Error:      resp.Error,
		Structured: resp.Structured,
		ReturnCode: intPtr(0),
	}
	if !resp.OK {
		res.ReturnCode = intPtr(1)
	}
	return res
}

// Teardown asks the worker to clear its module and exit, then kills the
// process tree if it lingers. Idempotent.
func (h *PyHost) Teardown() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dead {
		return nil
	}
	h.dead = true

	_, _ = h.stdin.Write([]byte(`{"op":"shutdown"}` + "\n"))
	_ = h.stdin.Close()

	done := make(chan struct{})
	go func() {
		_ = h.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(teardownGrace):
		if err := proc.KillGroup(h.cmd.Process.Pid); err != nil {
			h.logger.Debug("executor: kill module host %q: %v", h.name, err)
		}
	}
	return nil
}

func (h *PyHost) killLocked() {
	if h.dead {
		return
	}
	h.dead = true
	_ = h.stdin.Close()
	if h.cmd.Process != nil {
		if err := proc.KillGroup(h.cmd.Process.Pid); err != nil {
			h.logger.Debug("executor: kill module host %q: %v", h.name, err)
		}
	}
	go func() { _ = h.cmd.Wait() }()
}
