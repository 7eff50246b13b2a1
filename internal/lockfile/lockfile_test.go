package lockfile

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) *FileLock {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "test.lock"), zerolog.Nop())
}

func TestWithLock_RunsCriticalSection(t *testing.T) {
	lock := newTestLock(t)

	ran := 0
	err := lock.WithLock("test-op", time.Second, func() error {
		ran++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, ran)
}

func TestWithLock_TimeoutWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contended.lock")
	holder := New(path, zerolog.Nop())
	waiter := New(path, zerolog.Nop())

	acquired := make(chan struct{})
	releaseHolder := make(chan struct{})
	holderDone := make(chan error, 1)

	go func() {
		holderDone <- holder.WithLock("holder", time.Second, func() error {
			close(acquired)
			<-releaseHolder
			return nil
		})
	}()
	<-acquired

	// Second acquirer times out while the lock is held.
	err := waiter.WithLock("waiter", 300*time.Millisecond, func() error {
		t.Fatal("critical section must not run on timeout")
		return nil
	})

	var lte *LockTimeoutError
	require.True(t, errors.As(err, &lte))
	assert.Equal(t, "waiter", lte.Operation)
	assert.GreaterOrEqual(t, lte.Elapsed, 200*time.Millisecond)

	// After the holder releases, a third caller succeeds.
	close(releaseHolder)
	require.NoError(t, <-holderDone)

	err = waiter.WithLock("late-waiter", 5*time.Second, func() error { return nil })
	require.NoError(t, err)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	lock := newTestLock(t)

	wantErr := errors.New("boom")
	err := lock.WithLock("failing-op", time.Second, func() error { return wantErr })
	require.ErrorIs(t, err, wantErr)

	// Lock must be free again.
	require.NoError(t, lock.WithLock("next-op", time.Second, func() error { return nil }))
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	lock := newTestLock(t)

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		_ = lock.WithLock("panicking-op", time.Second, func() error {
			panic("boom")
		})
	}()

	require.NoError(t, lock.WithLock("next-op", time.Second, func() error { return nil }))
}

func TestWithLockRetry_SucceedsAfterHolderReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry.lock")
	holder := New(path, zerolog.Nop())
	waiter := New(path, zerolog.Nop())

	acquired := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- holder.WithLock("holder", time.Second, func() error {
			close(acquired)
			time.Sleep(400 * time.Millisecond)
			return nil
		})
	}()
	<-acquired

	// First attempt times out, a retry lands after the holder is gone.
	err := waiter.WithLockRetry("waiter", 150*time.Millisecond, 5, 150*time.Millisecond, func() error {
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, <-holderDone)
}

func TestWithLockRetry_DoesNotRetryNonTimeoutErrors(t *testing.T) {
	lock := newTestLock(t)

	calls := 0
	wantErr := errors.New("business failure")
	err := lock.WithLockRetry("op", time.Second, 3, 10*time.Millisecond, func() error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestIsLocked_ObservesHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.lock")
	holder := New(path, zerolog.Nop())
	observer := New(path, zerolog.Nop())

	assert.False(t, observer.IsLocked())

	acquired := make(chan struct{})
	releaseHolder := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- holder.WithLock("holder", time.Second, func() error {
			close(acquired)
			<-releaseHolder
			return nil
		})
	}()
	<-acquired

	assert.True(t, observer.IsLocked())

	close(releaseHolder)
	require.NoError(t, <-holderDone)
	assert.False(t, observer.IsLocked())
}
