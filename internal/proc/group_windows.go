//go:build windows

package proc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// KillToken owns a Job Object with kill-on-job-close and breakaway-ok set.
// Closing the token terminates every process assigned to the job, including
// grandchildren the service spawned.
type KillToken struct {
	job    windows.Handle
	pid    int
	closed bool
}

// NewKillToken creates a job object and assigns pid's process to it.
func NewKillToken(pid int) (*KillToken, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE | windows.JOB_OBJECT_LIMIT_BREAKAWAY_OK,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("set job limits: %w", err)
	}

	proc, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	if err := windows.AssignProcessToJobObject(job, proc); err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("assign process to job: %w", err)
	}

	return &KillToken{job: job, pid: pid}, nil
}

// Terminate sends a console break to the process group for a graceful stop.
func (t *KillToken) Terminate() error {
	if t.closed {
		return nil
	}
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(t.pid))
}

// Close terminates the job (kill-on-close) and releases the handle.
func (t *KillToken) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return windows.CloseHandle(t.job)
}
