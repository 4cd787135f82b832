package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lfmoraes/quizroom/pkg/bank"
	"github.com/lfmoraes/quizroom/pkg/game/types"
	"github.com/lfmoraes/quizroom/pkg/lock"
	"github.com/lfmoraes/quizroom/pkg/retry"
	"github.com/rs/zerolog/log"
)

const (
	replaceRetries = 20
	replaceDelay   = 50 * time.Millisecond
)

// FileStore keeps the document in a JSON file on a filesystem shared by all
// participating processes. Writes go through a same-directory temp file and
// an atomic rename, so concurrent readers always see either the old or the
// new document, never a torn one. Cross-process exclusivity comes from a
// lock marker next to the state file; an in-process mutex serializes
// goroutines the marker cannot see.
type FileStore struct {
	path        string
	lock        *lock.FileLock
	questions   []types.Question
	duration    time.Duration
	lockTimeout time.Duration
	strict      bool

	mu sync.Mutex
}

type NewFileStoreOptions struct {
	// Path is where the state document lives. The lock marker is Path+".lock".
	Path string
	// Bank supplies the questions for freshly synthesized states.
	Bank bank.Source
	// QuestionDuration seeds time_remaining on fresh states.
	QuestionDuration time.Duration
	// LockTimeout bounds lock acquisition and the Load document-wait.
	// Zero means lock.DefaultTimeout.
	LockTimeout time.Duration
	// Strict makes Mutate and Save fail with ErrLockTimeout instead of
	// proceeding without exclusivity. The default favors availability:
	// a stuck lock costs at most LockTimeout of added latency and a
	// bounded lost-update race, never a frozen game.
	Strict bool
}

// NewFileStore creates a FileStore. The question bank is loaded eagerly:
// without it no state can ever be synthesized, so a missing or unreadable
// bank fails construction.
func NewFileStore(opts NewFileStoreOptions) (*FileStore, error) {
	questions, err := opts.Bank.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank: %v", err)
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = lock.DefaultTimeout
	}
	return &FileStore{
		path:        opts.Path,
		lock:        lock.New(opts.Path + ".lock"),
		questions:   questions,
		duration:    opts.QuestionDuration,
		lockTimeout: lockTimeout,
		strict:      opts.Strict,
	}, nil
}

func (fs *FileStore) Load(ctx context.Context, waitForLock bool) (*types.GameState, error) {
	if _, err := os.Stat(fs.path); os.IsNotExist(err) {
		return fs.fresh(), nil
	}
	if waitForLock {
		err := retry.Poll(lock.PollInterval, fs.lockTimeout, func() (bool, error) {
			_, err := os.Stat(fs.lock.Path())
			return os.IsNotExist(err), nil
		})
		if err != nil {
			// A marker that outlives the wait is a failure signal, not
			// something to block on.
			log.Warn().Str("marker", fs.lock.Path()).Msg("lock marker outlived document wait, synthesizing fresh state")
			return fs.fresh(), nil
		}
	}
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fs.fresh(), nil
	}
	s := &types.GameState{}
	if err := json.Unmarshal(data, s); err != nil {
		log.Warn().Err(err).Str("path", fs.path).Msg("state document unreadable, synthesizing fresh state")
		return fs.fresh(), nil
	}
	normalize(s)
	return s, nil
}

func (fs *FileStore) Save(ctx context.Context, s *types.GameState) error {
	if !fs.lock.Acquire(fs.lockTimeout) {
		if fs.strict {
			return ErrLockTimeout
		}
		log.Warn().Str("path", fs.path).Msg("lock timeout on save, writing without exclusivity")
		return fs.writeAtomic(s)
	}
	defer fs.lock.Release()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeAtomic(s)
}

func (fs *FileStore) Mutate(ctx context.Context, updater func(*types.GameState) error) (*types.GameState, error) {
	if !fs.lock.Acquire(fs.lockTimeout) {
		if fs.strict {
			return nil, ErrLockTimeout
		}
		// Degraded mode: a concurrent lock-holding write may be lost
		// (last writer wins on the whole document), in exchange for never
		// freezing the game behind a stuck lock.
		log.Warn().Str("path", fs.path).Msg("lock timeout on mutate, proceeding without exclusivity")
		return fs.applyAndWrite(ctx, updater)
	}
	defer fs.lock.Release()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.applyAndWrite(ctx, updater)
}

func (fs *FileStore) applyAndWrite(ctx context.Context, updater func(*types.GameState) error) (*types.GameState, error) {
	s, err := fs.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := updater(s); err != nil {
		return nil, err
	}
	s.LastUpdate = types.Timestamp(time.Now())
	if err := fs.writeAtomic(s); err != nil {
		return nil, err
	}
	return s, nil
}

// writeAtomic writes the document to a uniquely named temp file in the same
// directory, forces it to storage, and renames it over the target. A rename
// transiently blocked by another process holding the target open is retried
// a bounded number of times; after that the temp file is discarded and the
// prior persisted version stays authoritative.
func (fs *FileStore) writeAtomic(s *types.GameState) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %v", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d.%d", fs.path, os.Getpid(), time.Now().UnixMilli())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write temp state file: %v", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to sync temp state file: %v", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp state file: %v", err)
	}
	for i := 0; i < replaceRetries; i++ {
		if err := os.Rename(tmp, fs.path); err == nil {
			return nil
		}
		time.Sleep(replaceDelay)
	}
	_ = os.Remove(tmp)
	log.Warn().Str("path", fs.path).Msg("replace retries exhausted, abandoning state write")
	return nil
}

func (fs *FileStore) fresh() *types.GameState {
	return types.NewGameState(fs.questions, fs.duration)
}

// normalize repairs nil maps an external writer may have left in the
// document so the engine can mutate it without nil checks everywhere.
func normalize(s *types.GameState) {
	if s.Players == nil {
		s.Players = make(map[string]*types.Player)
	}
	for _, p := range s.Players {
		if p.Answers == nil {
			p.Answers = make(map[string]int)
		}
	}
}
