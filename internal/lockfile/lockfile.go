// Package lockfile implements cross-process mutual exclusion over an
// OS advisory file lock. The monitoring process and the trading-execution
// process share the same on-disk state, so in-process mutexes are not
// enough: every portfolio or queue mutation goes through one of these.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// DefaultPollInterval is how often acquisition is re-attempted while waiting.
const DefaultPollInterval = 100 * time.Millisecond

// LockTimeoutError reports a failed acquisition, naming the operation that
// wanted the lock and how long it waited.
type LockTimeoutError struct {
	Operation string
	Path      string
	Elapsed   time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock timeout: operation %q could not acquire %s after %s",
		e.Operation, e.Path, e.Elapsed.Round(time.Millisecond))
}

// FileLock guards a shared resource with an advisory flock on a dedicated
// lock file. The lock file itself is never deleted, only opened and closed
// per attempt.
type FileLock struct {
	path string
	poll time.Duration
	log  zerolog.Logger
}

// New creates a FileLock for the given lock file path.
func New(path string, log zerolog.Logger) *FileLock {
	return &FileLock{
		path: path,
		poll: DefaultPollInterval,
		log:  log.With().Str("component", "lockfile").Str("path", path).Logger(),
	}
}

// WithLock acquires the lock within timeout, runs fn exactly once, and
// releases on every exit path including panic. On timeout it returns a
// *LockTimeoutError and fn is never invoked.
func (l *FileLock) WithLock(operation string, timeout time.Duration, fn func() error) error {
	f, err := l.acquire(operation, timeout)
	if err != nil {
		return err
	}
	defer l.release(f, operation)

	return fn()
}

// WithLockRetry re-attempts the whole acquire-and-run sequence on lock
// timeout, for non-critical callers. Other errors from fn are returned
// immediately without retrying.
func (l *FileLock) WithLockRetry(operation string, timeout time.Duration, maxRetries int, retryDelay time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			l.log.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Msg("Retrying lock acquisition")
			time.Sleep(retryDelay)
		}

		err = l.WithLock(operation, timeout, fn)
		var lte *LockTimeoutError
		if err == nil || !errors.As(err, &lte) {
			return err
		}
	}
	return err
}

// IsLocked is a best-effort, racy check for diagnostics only. The answer can
// be stale by the time the caller looks at it; never use it for correctness
// decisions.
func (l *FileLock) IsLocked() bool {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return true
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false
}

// acquire polls a non-blocking flock until it succeeds or timeout elapses.
func (l *FileLock) acquire(operation string, timeout time.Duration) (*os.File, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open lock file %s: %w", l.path, err)
		}

		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.log.Debug().
				Str("operation", operation).
				Dur("waited", time.Since(start)).
				Msg("Lock acquired")
			return f, nil
		}
		f.Close()

		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			return nil, fmt.Errorf("flock failed on %s: %w", l.path, err)
		}

		if !time.Now().Add(l.poll).Before(deadline) {
			return nil, &LockTimeoutError{
				Operation: operation,
				Path:      l.path,
				Elapsed:   time.Since(start),
			}
		}
		time.Sleep(l.poll)
	}
}

func (l *FileLock) release(f *os.File, operation string) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		l.log.Error().Err(err).Str("operation", operation).Msg("Failed to release lock")
	}
	if err := f.Close(); err != nil {
		l.log.Error().Err(err).Str("operation", operation).Msg("Failed to close lock file")
	}
}
