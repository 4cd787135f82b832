// Package lock provides advisory, cooperative mutual exclusion between
// independent OS processes sharing one filesystem. The lock is a marker file
// created with O_EXCL; whoever creates it holds the lock. Markers left behind
// by crashed holders are detected by age and forcibly removed.
package lock

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lfmoraes/quizroom/pkg/retry"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds how long Acquire waits for a contended lock.
	DefaultTimeout = 5 * time.Second
	// PollInterval is the delay between acquisition attempts.
	PollInterval = 50 * time.Millisecond
	// minStaleAge is the floor on the marker age past which a holder is
	// assumed dead.
	minStaleAge = 30 * time.Second
)

// FileLock is a cross-process advisory lock over a marker file.
type FileLock struct {
	path   string
	holder string
	poll   time.Duration
}

// New creates a FileLock over the given marker path.
func New(path string) *FileLock {
	return &FileLock{
		path:   path,
		holder: fmt.Sprintf("%s pid=%d", uuid.NewString(), os.Getpid()),
		poll:   PollInterval,
	}
}

// Path returns the marker path.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire attempts to take the lock, polling until it succeeds or timeout
// elapses. A marker older than max(30s, 3*timeout) is treated as orphaned by
// a crashed holder: it is removed and acquisition retried immediately, so a
// dead holder cannot block callers for longer than the staleness threshold.
func (l *FileLock) Acquire(timeout time.Duration) bool {
	stale := StaleAge(timeout)
	err := retry.Poll(l.poll, timeout, func() (bool, error) {
		if l.tryCreate() {
			return true, nil
		}
		info, err := os.Stat(l.path)
		if err != nil {
			// Marker vanished between the create attempt and the stat;
			// the next attempt will likely succeed.
			return l.tryCreate(), nil
		}
		if time.Since(info.ModTime()) > stale {
			log.Info().Str("marker", l.path).Msg("removing stale lock marker")
			_ = os.Remove(l.path)
			return l.tryCreate(), nil
		}
		return false, nil
	})
	return err == nil
}

// Release removes the marker. It is idempotent and never fails on a marker
// that is already gone.
func (l *FileLock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("marker", l.path).Msg("failed to remove lock marker")
	}
}

// StaleAge returns the marker age past which a holder is assumed to have
// died without releasing.
func StaleAge(timeout time.Duration) time.Duration {
	if age := 3 * timeout; age > minStaleAge {
		return age
	}
	return minStaleAge
}

func (l *FileLock) tryCreate() bool {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	// Content is advisory only: it identifies the holder for debugging but
	// is never read back for correctness.
	_, _ = f.WriteString(l.holder)
	_ = f.Close()
	return true
}
