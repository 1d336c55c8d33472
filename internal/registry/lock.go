package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockTimeout    = 10 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// fileLock is the single-writer guard around index rewrites. It is an advisory
// OS-level lock, so it also serialises writers in separate processes.
type fileLock struct {
	path string
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

func (l *fileLock) acquire() (func(), error) {
	fl := flock.New(l.path)

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("timed out waiting for lock %s", l.path)
	}
	return func() { _ = fl.Unlock() }, nil
}
