package types

import "time"

// GameState is the single shared document all sessions coordinate on.
// Its JSON shape is the persisted document contract: external tools may
// read the state file directly, so field names are fixed.
type GameState struct {
	// Players maps player IDs to player states
	Players map[string]*Player `json:"players"`
	// CurrentIndex is -1 before the game starts and len(Questions)
	// once the final question has been advanced past
	CurrentIndex int `json:"current_index"`
	// IsActive is true while a question's answer window is open
	IsActive bool `json:"is_active"`
	// IsEnded is true after the window closed but before the moderator advanced
	IsEnded bool `json:"is_ended"`
	// TimeRemaining is a derived cache of the seconds left on the open question
	TimeRemaining int `json:"time_remaining"`
	// QuestionStart is the RFC 3339 UTC timestamp at which the current
	// question became active, nil when no question is running
	QuestionStart *string `json:"question_start"`
	// Questions is the bank loaded at state creation, immutable afterwards
	Questions []Question `json:"questions"`
	// LastUpdate is stamped on every successful mutation
	LastUpdate string `json:"last_update"`
}

type Player struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	// Answers maps question IDs to the selected option index.
	// An entry here is final: re-answering the same question is rejected.
	Answers map[string]int `json:"answers"`
}

// Question is one entry of the read-only bank. The JSON field names follow
// the bank file format.
type Question struct {
	ID       string   `json:"id"`
	Topic    string   `json:"tema"`
	Prompt   string   `json:"pergunta"`
	Options  []string `json:"opcoes"`
	Correct  int      `json:"correta"`
	BibleRef string   `json:"base_biblica"`
}

// NewGameState creates a fresh document over the given question bank.
func NewGameState(questions []Question, duration time.Duration) *GameState {
	return &GameState{
		Players:       make(map[string]*Player),
		CurrentIndex:  -1,
		IsActive:      false,
		IsEnded:       false,
		TimeRemaining: int(duration.Seconds()),
		QuestionStart: nil,
		Questions:     questions,
		LastUpdate:    Timestamp(time.Now()),
	}
}

// CurrentQuestion returns the question at CurrentIndex, or nil when the
// index is out of range (before start or at the game-over sentinel).
func (g *GameState) CurrentQuestion() *Question {
	if g.CurrentIndex < 0 || g.CurrentIndex >= len(g.Questions) {
		return nil
	}
	return &g.Questions[g.CurrentIndex]
}

// Finished reports whether CurrentIndex has reached the game-over sentinel.
func (g *GameState) Finished() bool {
	return len(g.Questions) > 0 && g.CurrentIndex >= len(g.Questions)
}

// Timestamp formats t the way the persisted document stores timestamps.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
