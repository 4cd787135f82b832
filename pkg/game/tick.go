package game

import (
	"sort"
	"time"

	"github.com/lfmoraes/quizroom/pkg/game/types"
)

// Tick recomputes the cached time remaining on an active question and
// reports whether the window expired. On expiry the question is transitioned
// to the ended sub-state in place; the caller decides whether to persist
// that transition. A corrupt start timestamp self-heals by closing the
// active sub-state instead of failing the read.
func Tick(s *types.GameState, duration time.Duration, now time.Time) bool {
	if !s.IsActive || s.QuestionStart == nil {
		return false
	}
	start, err := time.Parse(time.RFC3339Nano, *s.QuestionStart)
	if err != nil {
		s.IsActive = false
		s.TimeRemaining = 0
		s.QuestionStart = nil
		return false
	}
	elapsed := now.Sub(start)
	remaining := int(duration.Seconds()) - int(elapsed.Seconds())
	if remaining <= 0 {
		endQuestion(s)
		return true
	}
	s.TimeRemaining = remaining
	return false
}

// Standing is one row of the derived scoreboard.
type Standing struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Ranking projects players to standings ordered by descending score. The
// sort is stable over join order (player IDs embed join time and count), so
// ties keep their relative order.
func Ranking(s *types.GameState) []Standing {
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	standings := make([]Standing, 0, len(ids))
	for _, id := range ids {
		p := s.Players[id]
		standings = append(standings, Standing{Name: p.Name, Score: p.Score})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Score > standings[j].Score
	})
	return standings
}
