// Package state persists the single shared game-state document and
// serializes mutations to it across independent processes.
package state

import (
	"context"
	"errors"

	"github.com/lfmoraes/quizroom/pkg/game/types"
)

// ErrLockTimeout is returned by strict-mode stores when exclusivity could
// not be obtained before the lock timeout. Available-mode stores never
// return it: they proceed without the lock instead.
var ErrLockTimeout = errors.New("timed out acquiring state lock")

// Store provides shared access to the game state document.
// Implementations must be safe for concurrent use from multiple goroutines
// and multiple OS processes.
type Store interface {
	// Load returns a consistent snapshot of the document. A missing or
	// unreadable document yields a freshly synthesized state, never an
	// error. With waitForLock set, Load waits a bounded time for an
	// in-progress write to finish before giving up and synthesizing.
	Load(ctx context.Context, waitForLock bool) (*types.GameState, error)
	// Save persists the document atomically.
	Save(ctx context.Context, s *types.GameState) error
	// Mutate is the read-modify-write primitive all game operations go
	// through: load the latest document, apply updater to it, stamp
	// last_update, persist. An updater error aborts without persisting.
	Mutate(ctx context.Context, updater func(*types.GameState) error) (*types.GameState, error)
}
