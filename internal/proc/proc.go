// Package proc wraps the platform primitives for detached child processes
// and process-tree termination. The contract the runtime depends on: a child
// started with Detach belongs to its own kill group, and KillGroup takes the
// whole tree down with one call.
package proc

import (
	"os/exec"
)

// Detach configures cmd to run without a console window and in its own
// process group, so the runtime can signal the entire tree.
func Detach(cmd *exec.Cmd) {
	detach(cmd)
}

// TerminateGroup sends the graceful stop signal to the process group rooted
// at pid.
func TerminateGroup(pid int) error {
	return terminateGroup(pid)
}

// KillGroup forcefully terminates the process group rooted at pid.
func KillGroup(pid int) error {
	return killGroup(pid)
}

// Alive reports whether the process with pid is still running.
func Alive(pid int) bool {
	return alive(pid)
}
