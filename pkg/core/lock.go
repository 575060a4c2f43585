package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"
	"go.uber.org/zap"
)

const lockPollInterval = 50 * time.Millisecond

// Locker serializes snapshot writes
type Locker interface {
	// Lock blocks until the lock is held or the context is done. The returned func releases the lock.
	Lock(ctx context.Context) (func(), error)
}

var (
	_ Locker = &processLock{}
	_ Locker = &fileLock{}
)

// processLock is a context-aware mutex
type processLock struct {
	sem chan struct{}
}

// NewProcessLock builds a lock shared by the goroutines of this process
func NewProcessLock() Locker {
	return &processLock{sem: make(chan struct{}, 1)}
}

func (p *processLock) Lock(ctx context.Context) (func(), error) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fileLock holds the process lock, then a lock file shared with other processes
type fileLock struct {
	local Locker
	file  lockfile.Lockfile
	l     *zap.Logger
}

// NewFileLock builds a lock shared by the goroutines of this process and other processes on this host
func NewFileLock(path string, logger *zap.Logger) (Locker, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lock file path: %w", err)
	}
	file, err := lockfile.New(abs)
	if err != nil {
		return nil, fmt.Errorf("lock file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileLock{local: NewProcessLock(), file: file, l: logger}, nil
}

func (f *fileLock) Lock(ctx context.Context) (func(), error) {
	unlockLocal, err := f.local.Lock(ctx)
	if err != nil {
		return nil, err
	}

	for {
		err = f.file.TryLock()
		if err == nil {
			break
		}
		if te, ok := err.(interface{ Temporary() bool }); !ok || !te.Temporary() {
			unlockLocal()
			return nil, fmt.Errorf("acquiring %s: %w", string(f.file), err)
		}
		if err = SleepContext(ctx, lockPollInterval); err != nil {
			unlockLocal()
			return nil, err
		}
	}

	return func() {
		if err := f.file.Unlock(); err != nil {
			f.l.Warn("failed to release lock file", zap.String("path", string(f.file)), zap.Error(err))
		}
		unlockLocal()
	}, nil
}
