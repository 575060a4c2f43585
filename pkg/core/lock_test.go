package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessLock(t *testing.T) {
	lock := NewProcessLock()
	ctx := context.Background()

	unlock, err := lock.Lock(ctx)
	require.NoError(t, err)

	tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = lock.Lock(tctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock, err = lock.Lock(ctx)
	require.NoError(t, err)
	unlock()
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.lock")
	lock, err := NewFileLock(path, nil)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mx      sync.Mutex
		holders int
		maxHeld int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lock.Lock(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mx.Lock()
			holders++
			if holders > maxHeld {
				maxHeld = holders
			}
			mx.Unlock()

			time.Sleep(time.Millisecond)

			mx.Lock()
			holders--
			mx.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxHeld)

	// the lock file is released
	unlock, err := lock.Lock(context.Background())
	require.NoError(t, err)
	unlock()
}
