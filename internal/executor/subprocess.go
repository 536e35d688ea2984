package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"bindkit/internal/proc"
)

// terminateGrace is how long a child gets between terminate and kill.
const terminateGrace = 5 * time.Second

// runCommand spawns argv detached from any console, captures both streams,
// and enforces the timeout ladder: terminate the group, wait up to 5s, then
// kill. Stream draining and pipe closure are handled by Wait on every path.
func (e *Executor) runCommand(ctx context.Context, argv []string, extraEnv []string, timeout time.Duration) *Result {
	cmd := exec.Command(argv[0], argv[1:]...)
	proc.Detach(cmd)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("failed to start %s: %v", argv[0], err),
			Error:   err.Error(),
		}
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		timedOut = true
		waitErr = e.stopChild(pid, done)
	case <-timer.C:
		timedOut = true
		waitErr = e.stopChild(pid, done)
	}

	res := &Result{
		Output: stdout.String(),
		Error:  stderr.String(),
	}

	switch {
	case timedOut:
		res.Success = false
		res.Message = fmt.Sprintf("execution timed out after %s", timeout)
		res.ReturnCode = intPtr(exitCodeOf(waitErr))
	case waitErr != nil:
		code := exitCodeOf(waitErr)
		res.Success = false
		res.Message = fmt.Sprintf("exited with code %d", code)
		res.ReturnCode = intPtr(code)
	default:
		res.Success = true
		res.Message = "completed"
		res.ReturnCode = intPtr(0)
		applyJSONOverlay(res)
	}
	return res
}

// stopChild runs the graceful-then-forceful ladder and returns the child's
// wait error once it is gone.
func (e *Executor) stopChild(pid int, done <-chan error) error {
	if err := proc.TerminateGroup(pid); err != nil {
		e.logger.Debug("executor: terminate pid %d: %v", pid, err)
	}
	select {
	case err := <-done:
		return err
	case <-time.After(terminateGrace):
	}

	if err := proc.KillGroup(pid); err != nil {
		e.logger.Debug("executor: kill pid %d: %v", pid, err)
	}
	return <-done
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
