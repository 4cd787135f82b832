// Package quiz wires the game engine to a state store and exposes the
// operation surface a presentation layer drives. Every operation is a short
// load-transform-persist cycle; nothing here caches state between calls, so
// callers must re-read before every render.
package quiz

import (
	"context"
	"time"

	"github.com/lfmoraes/quizroom/pkg/game"
	"github.com/lfmoraes/quizroom/pkg/game/types"
	"github.com/lfmoraes/quizroom/pkg/state"
	"github.com/rs/zerolog/log"
)

// DefaultQuestionDuration is the answer window used when the moderator does
// not pick one.
const DefaultQuestionDuration = 20 * time.Second

type Coordinator struct {
	store    state.Store
	duration time.Duration
}

type NewCoordinatorOptions struct {
	Store state.Store
	// QuestionDuration is the default answer window. Zero means
	// DefaultQuestionDuration.
	QuestionDuration time.Duration
}

func NewCoordinator(opts NewCoordinatorOptions) *Coordinator {
	duration := opts.QuestionDuration
	if duration == 0 {
		duration = DefaultQuestionDuration
	}
	return &Coordinator{
		store:    opts.Store,
		duration: duration,
	}
}

// Snapshot returns the current document with the question timer brought up
// to date. When the timer has expired the end-question transition is
// persisted through the store so every session observes it, mirroring how
// reads opportunistically drive the clock.
func (c *Coordinator) Snapshot(ctx context.Context) (*types.GameState, error) {
	s, err := c.store.Load(ctx, true)
	if err != nil {
		return nil, err
	}
	if !game.Tick(s, c.duration, time.Now()) {
		return s, nil
	}
	persisted, err := c.store.Mutate(ctx, func(inner *types.GameState) error {
		// Re-ticked against the freshly loaded document: a concurrent
		// session may have ended or advanced the question already.
		game.Tick(inner, c.duration, time.Now())
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist question expiry, returning local snapshot")
		return s, nil
	}
	return persisted, nil
}

// Join adds a player and returns the generated player ID, the caller's
// bearer token for the rest of the game.
func (c *Coordinator) Join(ctx context.Context, name string) (string, error) {
	op := &game.Join{Name: name}
	if _, err := c.store.Mutate(ctx, func(s *types.GameState) error {
		return game.Apply(s, op, time.Now())
	}); err != nil {
		return "", err
	}
	return op.ID, nil
}

// SubmitAnswer records an answer for the current question. Preconditions are
// validated against a freshly loaded snapshot first, then re-applied inside
// the mutation, so a racing duplicate is rejected rather than double-counted.
// A rejection comes back as (false, reason, nil): it is a refusal the caller
// presents to the user, not a failure.
func (c *Coordinator) SubmitAnswer(ctx context.Context, playerID string, option int) (bool, string, error) {
	op := game.SubmitAnswer{PlayerID: playerID, Option: option}

	s, err := c.store.Load(ctx, true)
	if err != nil {
		return false, "", err
	}
	if err := game.Apply(s, op, time.Now()); err != nil {
		if game.IsRejection(err) {
			return false, err.Error(), nil
		}
		return false, "", err
	}

	if _, err := c.store.Mutate(ctx, func(inner *types.GameState) error {
		return game.Apply(inner, op, time.Now())
	}); err != nil {
		if game.IsRejection(err) {
			return false, err.Error(), nil
		}
		return false, "", err
	}
	return true, "answer recorded", nil
}

// StartGame repositions the game at the first question.
func (c *Coordinator) StartGame(ctx context.Context) (*types.GameState, error) {
	return c.apply(ctx, game.StartGame{})
}

// StartQuestion opens the answer window on the current question. A
// non-positive duration means the coordinator default.
func (c *Coordinator) StartQuestion(ctx context.Context, duration time.Duration) (*types.GameState, error) {
	if duration <= 0 {
		duration = c.duration
	}
	return c.apply(ctx, game.StartQuestion{Duration: duration})
}

// EndQuestion closes the answer window.
func (c *Coordinator) EndQuestion(ctx context.Context) (*types.GameState, error) {
	return c.apply(ctx, game.EndQuestion{})
}

// AdvanceQuestion moves to the next question, or to the game-over sentinel
// after the last one.
func (c *Coordinator) AdvanceQuestion(ctx context.Context) (*types.GameState, error) {
	return c.apply(ctx, game.AdvanceQuestion{Duration: c.duration})
}

// Ranking derives the scoreboard from a snapshot.
func (c *Coordinator) Ranking(s *types.GameState) []game.Standing {
	return game.Ranking(s)
}

func (c *Coordinator) apply(ctx context.Context, op game.Operation) (*types.GameState, error) {
	return c.store.Mutate(ctx, func(s *types.GameState) error {
		return game.Apply(s, op, time.Now())
	})
}
