package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lfmoraes/quizroom/pkg/game"
	"github.com/lfmoraes/quizroom/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBank struct {
	questions []types.Question
}

func (b staticBank) Load() ([]types.Question, error) {
	return b.questions, nil
}

type failingBank struct{}

func (failingBank) Load() ([]types.Question, error) {
	return nil, errors.New("bank unavailable")
}

func testBank() staticBank {
	return staticBank{questions: []types.Question{
		{ID: "q1", Topic: "Gênesis", Prompt: "Quantos dias durou a criação?", Options: []string{"Seis", "Sete"}, Correct: 1, BibleRef: "Gênesis 2:2"},
		{ID: "q2", Topic: "Êxodo", Prompt: "Quem recebeu as tábuas da lei?", Options: []string{"Arão", "Moisés"}, Correct: 1, BibleRef: "Êxodo 31:18"},
	}}
}

func newTestStore(t *testing.T, strict bool) *FileStore {
	t.Helper()
	fs, err := NewFileStore(NewFileStoreOptions{
		Path:             filepath.Join(t.TempDir(), "game_state.json"),
		Bank:             testBank(),
		QuestionDuration: 20 * time.Second,
		LockTimeout:      200 * time.Millisecond,
		Strict:           strict,
	})
	require.NoError(t, err)
	return fs
}

func TestNewFileStoreFailsWithoutBank(t *testing.T) {
	_, err := NewFileStore(NewFileStoreOptions{
		Path: filepath.Join(t.TempDir(), "game_state.json"),
		Bank: failingBank{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load question bank")
}

func TestLoadSynthesizesWhenMissing(t *testing.T) {
	fs := newTestStore(t, false)
	ctx := context.Background()

	s, err := fs.Load(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, -1, s.CurrentIndex)
	assert.Len(t, s.Questions, 2)
	assert.Empty(t, s.Players)

	// Synthesizing does not persist anything by itself.
	_, err = os.Stat(fs.path)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := newTestStore(t, false)
	ctx := context.Background()

	s, err := fs.Load(ctx, false)
	require.NoError(t, err)
	join := &game.Join{Name: "Ana"}
	require.NoError(t, game.Apply(s, join, time.Now()))
	require.NoError(t, game.Apply(s, game.StartGame{}, time.Now()))
	require.NoError(t, fs.Save(ctx, s))

	loaded, err := fs.Load(ctx, true)
	require.NoError(t, err)
	loaded.LastUpdate = s.LastUpdate
	assert.Equal(t, s, loaded)
}

func TestLoadCorruptDocumentSynthesizes(t *testing.T) {
	fs := newTestStore(t, false)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(fs.path, []byte("{truncated"), 0o644))

	s, err := fs.Load(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, -1, s.CurrentIndex)
	assert.Empty(t, s.Players)
}

func TestLoadWaitForLockFallsBackToFresh(t *testing.T) {
	fs := newTestStore(t, false)
	ctx := context.Background()

	s, err := fs.Mutate(ctx, func(s *types.GameState) error {
		return game.Apply(s, game.StartGame{}, time.Now())
	})
	require.NoError(t, err)
	require.Equal(t, 0, s.CurrentIndex)

	// A marker nobody releases: Load waits its bounded time, then treats
	// the prolonged lock as a failure signal and synthesizes.
	require.NoError(t, os.WriteFile(fs.lock.Path(), []byte("stuck"), 0o644))
	defer os.Remove(fs.lock.Path())

	fresh, err := fs.Load(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, -1, fresh.CurrentIndex)

	// Without the wait the persisted document is still readable.
	persisted, err := fs.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, persisted.CurrentIndex)
}

func TestMutateUpdaterErrorLeavesDocumentUntouched(t *testing.T) {
	fs := newTestStore(t, false)
	ctx := context.Background()

	s, err := fs.Mutate(ctx, func(s *types.GameState) error {
		return game.Apply(s, game.StartGame{}, time.Now())
	})
	require.NoError(t, err)
	stamp := s.LastUpdate

	_, err = fs.Mutate(ctx, func(s *types.GameState) error {
		s.CurrentIndex = 99
		return errors.New("abort")
	})
	require.Error(t, err)

	loaded, err := fs.Load(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.CurrentIndex)
	assert.Equal(t, stamp, loaded.LastUpdate)

	// The aborted mutation must not hold on to the lock either.
	_, err = os.Stat(fs.lock.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestMutateStrictFailsWhenLocked(t *testing.T) {
	fs := newTestStore(t, true)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(fs.lock.Path(), []byte("held elsewhere"), 0o644))
	defer os.Remove(fs.lock.Path())

	_, err := fs.Mutate(ctx, func(s *types.GameState) error {
		return game.Apply(s, game.StartGame{}, time.Now())
	})
	assert.Equal(t, ErrLockTimeout, err)

	_, err = os.Stat(fs.path)
	assert.True(t, os.IsNotExist(err), "strict mode must not write without the lock")
}

func TestMutateDegradedProceedsWhenLocked(t *testing.T) {
	fs := newTestStore(t, false)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(fs.lock.Path(), []byte("held elsewhere"), 0o644))
	defer os.Remove(fs.lock.Path())

	s, err := fs.Mutate(ctx, func(s *types.GameState) error {
		return game.Apply(s, game.StartGame{}, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentIndex)

	persisted, err := fs.Load(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, persisted.CurrentIndex)

	// Degraded mode must not remove a lock it never held.
	_, err = os.Stat(fs.lock.Path())
	require.NoError(t, err)
}

func TestMutateSerializesConcurrentJoins(t *testing.T) {
	fs, err := NewFileStore(NewFileStoreOptions{
		Path:             filepath.Join(t.TempDir(), "game_state.json"),
		Bank:             testBank(),
		QuestionDuration: 20 * time.Second,
		LockTimeout:      5 * time.Second,
	})
	require.NoError(t, err)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fs.Mutate(ctx, func(s *types.GameState) error {
				return game.Apply(s, &game.Join{Name: fmt.Sprintf("player-%d", i)}, time.Now())
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	s, err := fs.Load(ctx, true)
	require.NoError(t, err)
	assert.Len(t, s.Players, writers, "every serialized join must survive")
}

func TestConcurrentLoadNeverSeesTornWrite(t *testing.T) {
	fs, err := NewFileStore(NewFileStoreOptions{
		Path:             filepath.Join(t.TempDir(), "game_state.json"),
		Bank:             testBank(),
		QuestionDuration: 20 * time.Second,
		LockTimeout:      5 * time.Second,
	})
	require.NoError(t, err)
	ctx := context.Background()

	seed, err := fs.Load(ctx, false)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		id := game.NewPlayerID(time.Now(), i)
		seed.Players[id] = &types.Player{Name: fmt.Sprintf("player-%d", i), Answers: map[string]int{}}
	}
	require.NoError(t, fs.Save(ctx, seed))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			seed.CurrentIndex = i % 2
			if err := fs.Save(ctx, seed); err != nil {
				return
			}
		}
	}()

	// A torn write would parse as corrupt and come back as a fresh state
	// with zero players.
	for i := 0; i < 200; i++ {
		s, err := fs.Load(ctx, false)
		require.NoError(t, err)
		assert.Len(t, s.Players, 100, "load observed a partial document")
	}
	<-done
}
