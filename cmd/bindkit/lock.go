package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	lockFileName = "bindkit.lock"
	// lockStaleWindow is how long a lock without a heartbeat refresh stays
	// authoritative. A crashed instance leaves a file behind; once its
	// mtime ages past the window the lock is reclaimable.
	lockStaleWindow   = 10 * time.Second
	lockRefreshPeriod = 3 * time.Second
)

// instanceLock enforces one resident daemon per configuration directory.
type instanceLock struct {
	path     string
	stopCh   chan struct{}
	stopOnce sync.Once
}

// acquireLock claims the instance lock under dir. A fresh lock held by a
// live process fails the claim; a stale one is replaced.
func acquireLock(dir string) (*instanceLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, lockFileName)

	if info, err := os.Stat(path); err == nil {
		if time.Since(info.ModTime()) < lockStaleWindow {
			pid := readLockPID(path)
			return nil, fmt.Errorf("another instance is already running (pid %d)", pid)
		}
		// Stale lock from an unclean shutdown.
		_ = os.Remove(path)
	}

	if err := writeLockFile(path); err != nil {
		return nil, err
	}

	l := &instanceLock{path: path, stopCh: make(chan struct{})}
	go l.heartbeat()
	return l, nil
}

func writeLockFile(path string) error {
	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

func readLockPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid
}

// heartbeat refreshes the lock mtime so other instances see it as live.
func (l *instanceLock) heartbeat() {
	ticker := time.NewTicker(lockRefreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			_ = os.Chtimes(l.path, now, now)
		case <-l.stopCh:
			return
		}
	}
}

// release stops the heartbeat and removes the lock file.
func (l *instanceLock) release() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		_ = os.Remove(l.path)
	})
}
