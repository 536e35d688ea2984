//go:build !windows

package proc

import (
	"golang.org/x/sys/unix"
)

// KillToken owns a child's process group. Closing the token kills the whole
// tree; it is the unix analogue of a kill-on-close job object.
type KillToken struct {
	pid    int
	closed bool
}

// NewKillToken attaches to the process group rooted at pid. The child must
// have been started with Detach so the group exists.
func NewKillToken(pid int) (*KillToken, error) {
	return &KillToken{pid: pid}, nil
}

// Terminate sends the graceful stop signal to the group.
func (t *KillToken) Terminate() error {
	if t.closed {
		return nil
	}
	return unix.Kill(-t.pid, unix.SIGTERM)
}

// Close kills the remaining tree and releases the token. Idempotent; a group
// that already exited is not an error.
func (t *KillToken) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := unix.Kill(-t.pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}
