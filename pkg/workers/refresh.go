package workers

import (
	"context"
	"time"

	"github.com/lfmoraes/quizroom/pkg/game/types"
	"github.com/lfmoraes/quizroom/pkg/quiz"
	"github.com/rs/zerolog/log"
)

// RefreshWorker periodically pulls a snapshot through the coordinator and
// hands it to a callback. Pulling through the coordinator matters: every
// snapshot ticks the question timer, so a watching session keeps the shared
// clock moving even when nobody is clicking anything.
type RefreshWorker struct {
	coordinator *quiz.Coordinator
	interval    time.Duration
	onSnapshot  func(*types.GameState)
}

type NewRefreshWorkerOptions struct {
	Coordinator *quiz.Coordinator
	Interval    time.Duration
	OnSnapshot  func(*types.GameState)
}

func NewRefreshWorker(opts NewRefreshWorkerOptions) *RefreshWorker {
	return &RefreshWorker{
		coordinator: opts.Coordinator,
		interval:    opts.Interval,
		onSnapshot:  opts.OnSnapshot,
	}
}

// Start runs the refresh loop until ctx is cancelled.
func (w *RefreshWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s, err := w.coordinator.Snapshot(ctx)
			if err != nil {
				log.Error().Err(err).Msg("failed to refresh snapshot")
				continue
			}
			w.onSnapshot(s)
		}
	}
}
