package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/elena-cabrera/markdown-os/internal/apperr"
)

// LockTimeout bounds how long read and write operations wait for the
// sidecar advisory lock before giving up.
const LockTimeout = 5 * time.Second

const lockRetryInterval = 10 * time.Millisecond

// fileLock holds an acquired advisory lock on a sidecar .lock file. The
// sidecar keeps contention off the content file itself, which is replaced
// by rename on every write and so has no stable descriptor to lock.
type fileLock struct {
	file *os.File
}

// acquireLock takes a shared or exclusive flock on lockPath. Attempts are
// non-blocking and retried every 10ms until the deadline, so a peer that
// never releases can stall us for at most timeout.
func acquireLock(lockPath string, exclusive bool, timeout time.Duration) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("storage: prepare lock dir: %w: %w", apperr.ErrIO, err)
	}
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open lock %s: %w: %w", lockPath, apperr.ErrIO, err)
	}

	how := syscall.LOCK_SH
	if exclusive {
		how = syscall.LOCK_EX
	}
	deadline := time.Now().Add(timeout)
	for {
		flockErr := syscall.Flock(int(file.Fd()), how|syscall.LOCK_NB)
		if flockErr == nil {
			return &fileLock{file: file}, nil
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("storage: lock %s: timed out after %s: %w", lockPath, timeout, apperr.ErrIO)
		}
		time.Sleep(lockRetryInterval)
	}
}

// release drops the lock and closes the descriptor.
func (l *fileLock) release() {
	if l == nil || l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}
