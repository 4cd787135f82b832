package retry

import (
	"errors"
	"time"
)

// ErrTimeout is returned by Poll when the condition did not hold before the
// deadline passed.
var ErrTimeout = errors.New("timed out waiting for condition")

// Poll calls cond every interval until it returns done, it returns an error,
// or timeout elapses. cond is always called at least once, so a zero timeout
// still gives the condition a single chance to hold.
func Poll(interval, timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(interval)
	}
}
