// Package game holds the pure state-transition rules of the quiz. Operations
// are applied to a state snapshot obtained from the store and persisted back
// through it; nothing in this package touches storage.
package game

import (
	"fmt"
	"time"

	"github.com/lfmoraes/quizroom/pkg/game/types"
)

// Rejection is a precondition violation: the operation is refused with a
// human-readable reason and the state is left untouched. It is not a fault
// and must never surface to the end user as one.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

// Reject creates a Rejection error.
func Reject(format string, args ...interface{}) error {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is an operation rejection rather than a
// storage or engine failure.
func IsRejection(err error) bool {
	_, ok := err.(*Rejection)
	return ok
}

// Operation is one tagged quiz mutation. Apply runs it against a snapshot.
type Operation interface {
	apply(s *types.GameState, now time.Time) error
}

// Apply runs op against s in place. A Rejection return means s was not
// modified.
func Apply(s *types.GameState, op Operation, now time.Time) error {
	return op.apply(s, now)
}

// Join inserts a new player with score 0 and no answers. The generated
// player ID is written back to the ID field. IDs derive from the mutation
// time and the player count observed inside the mutation, so concurrent
// joins serialized by the store cannot collide.
type Join struct {
	Name string

	// ID is set by apply.
	ID string
}

func (op *Join) apply(s *types.GameState, now time.Time) error {
	if op.Name == "" {
		return Reject("player name must not be empty")
	}
	op.ID = NewPlayerID(now, len(s.Players))
	s.Players[op.ID] = &types.Player{
		Name:    op.Name,
		Score:   0,
		Answers: make(map[string]int),
	}
	return nil
}

// NewPlayerID derives a player ID from the mutation time and the current
// player count.
func NewPlayerID(now time.Time, playerCount int) string {
	return fmt.Sprintf("p_%d_%d", now.UnixMilli(), playerCount)
}

// StartGame repositions the game at the first question. It is an idempotent
// reposition: flags are left alone.
type StartGame struct{}

func (op StartGame) apply(s *types.GameState, now time.Time) error {
	s.CurrentIndex = 0
	return nil
}

// StartQuestion opens the answer window on the current question. Out-of-range
// indexes make it a no-op.
type StartQuestion struct {
	Duration time.Duration
}

func (op StartQuestion) apply(s *types.GameState, now time.Time) error {
	if s.CurrentQuestion() == nil {
		return nil
	}
	start := types.Timestamp(now)
	s.IsActive = true
	s.IsEnded = false
	s.TimeRemaining = int(op.Duration.Seconds())
	s.QuestionStart = &start
	return nil
}

// EndQuestion closes the answer window.
type EndQuestion struct{}

func (op EndQuestion) apply(s *types.GameState, now time.Time) error {
	endQuestion(s)
	return nil
}

func endQuestion(s *types.GameState) {
	s.IsActive = false
	s.IsEnded = true
	s.TimeRemaining = 0
	s.QuestionStart = nil
}

// AdvanceQuestion moves to the next question in the not-yet-started
// sub-state, or to the game-over sentinel (CurrentIndex == len(Questions))
// after the final question. At the sentinel it is a no-op.
type AdvanceQuestion struct {
	Duration time.Duration
}

func (op AdvanceQuestion) apply(s *types.GameState, now time.Time) error {
	if s.CurrentIndex < len(s.Questions)-1 {
		s.CurrentIndex++
		s.IsActive = false
		s.IsEnded = false
		s.TimeRemaining = int(op.Duration.Seconds())
		s.QuestionStart = nil
		return nil
	}
	s.CurrentIndex = len(s.Questions)
	s.IsActive = false
	s.IsEnded = false
	return nil
}

// SubmitAnswer records a player's option for the current question. The
// answer is final: a repeat submission for the same player and question is
// rejected, so a racing duplicate can never double-count. A correct answer
// scores one point at the moment of first recording; scores are never
// recomputed from history afterwards.
type SubmitAnswer struct {
	PlayerID string
	Option   int
}

func (op SubmitAnswer) apply(s *types.GameState, now time.Time) error {
	q := s.CurrentQuestion()
	if q == nil {
		return Reject("no question is currently active")
	}
	if !s.IsActive {
		return Reject("question is not open for answers")
	}
	p, ok := s.Players[op.PlayerID]
	if !ok {
		return Reject("player not found")
	}
	if _, answered := p.Answers[q.ID]; answered {
		return Reject("you have already answered this question")
	}
	if op.Option < 0 || op.Option >= len(q.Options) {
		return Reject("option %d is out of range", op.Option)
	}
	p.Answers[q.ID] = op.Option
	if op.Option == q.Correct {
		p.Score++
	}
	return nil
}
