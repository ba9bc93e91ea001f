package coordinator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelver/internal/coordinator"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	locks := coordinator.NewKeyedLock()
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			unlock, err := locks.Lock(context.Background(), "abc")
			if !assert.NoError(t, err) {
				return
			}
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, locks.Held(), "entries must be released once unused")
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	locks := coordinator.NewKeyedLock()
	unlockA, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.Lock(ctx, "b")
	require.NoError(t, err, "other keys must not wait")
	unlockB()
	unlockB()
	assert.Equal(t, 1, locks.Held())
}

func TestKeyedLockCancelledWait(t *testing.T) {
	locks := coordinator.NewKeyedLock()
	unlock, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, locks.Held())
}

func TestKeyedLockClaims(t *testing.T) {
	locks := coordinator.NewKeyedLock()
	assert.True(t, locks.TryClaim("fp"))
	assert.False(t, locks.TryClaim("fp"))
	assert.True(t, locks.IsClaimed("fp"))
	assert.Equal(t, 1, locks.Claimed())

	locks.Release("fp")
	assert.False(t, locks.IsClaimed("fp"))
	assert.True(t, locks.TryClaim("fp"))
}
