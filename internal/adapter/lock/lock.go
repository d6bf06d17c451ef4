// Package lock serializes installs into one canonical directory across
// processes with an advisory lock on <dir>/.lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sharpinstall/internal/domain"
)

// FileName is the lock file created inside the guarded directory.
const FileName = ".lock"

const pollInterval = 100 * time.Millisecond

// FileLock is a cross-process lock on a directory.
type FileLock struct {
	path string
}

// New creates a lock guarding dir.
func New(dir string) *FileLock {
	return &FileLock{path: filepath.Join(dir, FileName)}
}

// Lock blocks until the lock is held or ctx is done. On ctx expiry the
// returned error wraps both domain.ErrLocked and the context error.
func (l *FileLock) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := tryLock(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", l.path, err)
		}
		if ok {
			return func() error {
				return errors.Join(unlock(f), f.Close())
			}, nil
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrLocked, l.path, ctx.Err())
		case <-ticker.C:
		}
	}
}
