// Package lockfile provides an advisory cross-process file lock.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrContention means another process held the lock for the whole timeout.
// Callers should treat it as retryable and distinct from I/O failure.
var ErrContention = errors.New("lock held by another process")

// DefaultTimeout bounds how long Acquire waits before giving up.
const DefaultTimeout = 10 * time.Second

const pollInterval = 10 * time.Millisecond

// Lock is a held advisory lock. Release it on every exit path; the kernel
// also drops it if the process dies.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive flock on path, polling until timeout. A zero or
// negative timeout falls back to DefaultTimeout.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	start := time.Now()
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &Lock{f: f}, nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EAGAIN) {
			_ = f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		if time.Since(start) >= timeout {
			_ = f.Close()
			return nil, fmt.Errorf("%w (waited %s for %s)", ErrContention, timeout, path)
		}
		time.Sleep(pollInterval)
	}
}

// Release unlocks and closes the lock file. Safe to call once on any Lock
// returned by Acquire.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
