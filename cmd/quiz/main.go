package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lfmoraes/quizroom/pkg/bank"
	"github.com/lfmoraes/quizroom/pkg/config"
	"github.com/lfmoraes/quizroom/pkg/game"
	"github.com/lfmoraes/quizroom/pkg/game/types"
	"github.com/lfmoraes/quizroom/pkg/quiz"
	"github.com/lfmoraes/quizroom/pkg/state"
	"github.com/lfmoraes/quizroom/pkg/workers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `quiz coordinates a live multiplayer quiz over a shared state file.

Every invocation is an independent process: run participant commands and
moderator commands from any terminal sharing the same state file.

Participant commands:
  join -name NAME             join the game, prints your player id
  answer -player ID -option N answer the current question

Moderator commands:
  start                       position the game at the first question
  start-question [-duration D] open the answer window
  end-question                close the answer window
  advance                     move to the next question (or finish the game)

Read commands:
  state                       print the current game state
  ranking                     print the scoreboard
  watch [-interval D]         follow the game, refreshing periodically

Configuration comes from the environment (or a .env file): QUIZ_STATE_FILE,
QUIZ_QUESTIONS_FILE, QUIZ_BANK, QUIZ_BANK_DSN, QUIZ_STORE, QUIZ_REDIS_ADDR,
QUIZ_QUESTION_DURATION, QUIZ_LOCK_TIMEOUT, QUIZ_STRICT, QUIZ_LOG_LEVEL.
`

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(level)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build state store")
	}
	coordinator := quiz.NewCoordinator(quiz.NewCoordinatorOptions{
		Store:            store,
		QuestionDuration: cfg.QuestionDuration,
	})

	if err := run(ctx, coordinator, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func buildStore(ctx context.Context, cfg config.Config) (state.Store, error) {
	var source bank.Source
	switch cfg.BankKind {
	case "sqlite":
		source = bank.NewSQLiteSource(cfg.BankDSN)
	default:
		source = bank.NewFileSource(cfg.QuestionsFile)
	}

	switch cfg.StoreKind {
	case "redis":
		return state.NewRedisStore(ctx, state.NewRedisStoreOptions{
			Addr:             cfg.RedisAddr,
			Password:         cfg.RedisPass,
			DB:               cfg.RedisDB,
			Key:              cfg.RedisKey,
			Bank:             source,
			QuestionDuration: cfg.QuestionDuration,
			LockTimeout:      cfg.LockTimeout,
			Strict:           cfg.Strict,
		})
	default:
		return state.NewFileStore(state.NewFileStoreOptions{
			Path:             cfg.StateFile,
			Bank:             source,
			QuestionDuration: cfg.QuestionDuration,
			LockTimeout:      cfg.LockTimeout,
			Strict:           cfg.Strict,
		})
	}
}

func run(ctx context.Context, coordinator *quiz.Coordinator, command string, args []string) error {
	switch command {
	case "join":
		fs := flag.NewFlagSet("join", flag.ExitOnError)
		name := fs.String("name", "", "player name")
		_ = fs.Parse(args)
		id, err := coordinator.Join(ctx, *name)
		if err != nil {
			if game.IsRejection(err) {
				fmt.Println(err.Error())
				return nil
			}
			return err
		}
		fmt.Println(id)
		return nil

	case "answer":
		fs := flag.NewFlagSet("answer", flag.ExitOnError)
		player := fs.String("player", "", "player id from join")
		option := fs.Int("option", -1, "selected option index")
		_ = fs.Parse(args)
		accepted, message, err := coordinator.SubmitAnswer(ctx, *player, *option)
		if err != nil {
			return err
		}
		if accepted {
			fmt.Println(message)
		} else {
			fmt.Printf("rejected: %s\n", message)
		}
		return nil

	case "start":
		s, err := coordinator.StartGame(ctx)
		if err != nil {
			return err
		}
		render(s)
		return nil

	case "start-question":
		fs := flag.NewFlagSet("start-question", flag.ExitOnError)
		duration := fs.Duration("duration", 0, "answer window (default from config)")
		_ = fs.Parse(args)
		s, err := coordinator.StartQuestion(ctx, *duration)
		if err != nil {
			return err
		}
		render(s)
		return nil

	case "end-question":
		s, err := coordinator.EndQuestion(ctx)
		if err != nil {
			return err
		}
		render(s)
		return nil

	case "advance":
		s, err := coordinator.AdvanceQuestion(ctx)
		if err != nil {
			return err
		}
		render(s)
		return nil

	case "state":
		s, err := coordinator.Snapshot(ctx)
		if err != nil {
			return err
		}
		render(s)
		return nil

	case "ranking":
		s, err := coordinator.Snapshot(ctx)
		if err != nil {
			return err
		}
		renderRanking(s)
		return nil

	case "watch":
		fs := flag.NewFlagSet("watch", flag.ExitOnError)
		interval := fs.Duration("interval", time.Second, "refresh interval")
		_ = fs.Parse(args)
		worker := workers.NewRefreshWorker(workers.NewRefreshWorkerOptions{
			Coordinator: coordinator,
			Interval:    *interval,
			OnSnapshot: func(s *types.GameState) {
				fmt.Print("\033[H\033[2J")
				render(s)
				renderRanking(s)
			},
		})
		worker.Start(ctx)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func render(s *types.GameState) {
	switch {
	case s.CurrentIndex < 0:
		fmt.Println("The game has not started yet.")
	case s.Finished():
		fmt.Println("The game is over.")
	default:
		q := s.CurrentQuestion()
		fmt.Printf("Question %d/%d — %s\n", s.CurrentIndex+1, len(s.Questions), q.Topic)
		fmt.Println(q.Prompt)
		switch {
		case s.IsActive:
			for i, opt := range q.Options {
				fmt.Printf("  [%d] %s\n", i, opt)
			}
			fmt.Printf("Time remaining: %ds\n", s.TimeRemaining)
		case s.IsEnded:
			fmt.Printf("Answer window closed. Correct answer: %s\n", q.Options[q.Correct])
			fmt.Printf("Reference: %s\n", q.BibleRef)
		default:
			fmt.Println("Waiting for the moderator to open the question.")
		}
	}
	fmt.Printf("Players: %d\n", len(s.Players))
}

func renderRanking(s *types.GameState) {
	standings := game.Ranking(s)
	if len(standings) == 0 {
		return
	}
	fmt.Println("Scoreboard:")
	for i, standing := range standings {
		fmt.Printf("%2d. %s — %d pts\n", i+1, standing.Name, standing.Score)
	}
}
