package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lfmoraes/quizroom/pkg/bank"
	"github.com/lfmoraes/quizroom/pkg/game/types"
	"github.com/lfmoraes/quizroom/pkg/lock"
	"github.com/lfmoraes/quizroom/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore keeps the document in a redis key, for deployments where the
// sessions do not share a filesystem after all. SET is atomic on its own, so
// no rename dance is needed; the lock marker becomes a SETNX key whose TTL
// doubles as the staleness recovery (a crashed holder's lock simply
// expires).
type RedisStore struct {
	client      *redis.Client
	key         string
	lockKey     string
	holder      string
	questions   []types.Question
	duration    time.Duration
	lockTimeout time.Duration
	strict      bool

	mu sync.Mutex
}

type NewRedisStoreOptions struct {
	Addr     string
	Password string
	DB       int
	// Key is where the state document lives. The lock key is Key+":lock".
	Key              string
	Bank             bank.Source
	QuestionDuration time.Duration
	LockTimeout      time.Duration
	Strict           bool
}

func NewRedisStore(ctx context.Context, opts NewRedisStoreOptions) (*RedisStore, error) {
	questions, err := opts.Bank.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank: %v", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %v", opts.Addr, err)
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = lock.DefaultTimeout
	}
	return &RedisStore{
		client:      client,
		key:         opts.Key,
		lockKey:     opts.Key + ":lock",
		holder:      uuid.NewString(),
		questions:   questions,
		duration:    opts.QuestionDuration,
		lockTimeout: lockTimeout,
		strict:      opts.Strict,
	}, nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisStore) Load(ctx context.Context, waitForLock bool) (*types.GameState, error) {
	if waitForLock {
		err := retry.Poll(lock.PollInterval, rs.lockTimeout, func() (bool, error) {
			n, err := rs.client.Exists(ctx, rs.lockKey).Result()
			if err != nil {
				return false, fmt.Errorf("failed to check lock key: %v", err)
			}
			return n == 0, nil
		})
		if err == retry.ErrTimeout {
			log.Warn().Str("key", rs.lockKey).Msg("lock key outlived document wait, synthesizing fresh state")
			return rs.fresh(), nil
		}
		if err != nil {
			return nil, err
		}
	}
	data, err := rs.client.Get(ctx, rs.key).Bytes()
	if err == redis.Nil {
		return rs.fresh(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %v", err)
	}
	s := &types.GameState{}
	if err := json.Unmarshal(data, s); err != nil {
		log.Warn().Err(err).Str("key", rs.key).Msg("state document unreadable, synthesizing fresh state")
		return rs.fresh(), nil
	}
	normalize(s)
	return s, nil
}

func (rs *RedisStore) Save(ctx context.Context, s *types.GameState) error {
	if !rs.acquire(ctx) {
		if rs.strict {
			return ErrLockTimeout
		}
		log.Warn().Str("key", rs.key).Msg("lock timeout on save, writing without exclusivity")
		return rs.write(ctx, s)
	}
	defer rs.release(ctx)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.write(ctx, s)
}

func (rs *RedisStore) Mutate(ctx context.Context, updater func(*types.GameState) error) (*types.GameState, error) {
	if !rs.acquire(ctx) {
		if rs.strict {
			return nil, ErrLockTimeout
		}
		log.Warn().Str("key", rs.key).Msg("lock timeout on mutate, proceeding without exclusivity")
		return rs.applyAndWrite(ctx, updater)
	}
	defer rs.release(ctx)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.applyAndWrite(ctx, updater)
}

func (rs *RedisStore) applyAndWrite(ctx context.Context, updater func(*types.GameState) error) (*types.GameState, error) {
	s, err := rs.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := updater(s); err != nil {
		return nil, err
	}
	s.LastUpdate = types.Timestamp(time.Now())
	if err := rs.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (rs *RedisStore) write(ctx context.Context, s *types.GameState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %v", err)
	}
	if err := rs.client.Set(ctx, rs.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set state: %v", err)
	}
	return nil
}

func (rs *RedisStore) acquire(ctx context.Context) bool {
	err := retry.Poll(lock.PollInterval, rs.lockTimeout, func() (bool, error) {
		ok, err := rs.client.SetNX(ctx, rs.lockKey, rs.holder, lock.StaleAge(rs.lockTimeout)).Result()
		if err != nil {
			return false, fmt.Errorf("failed to set lock key: %v", err)
		}
		return ok, nil
	})
	return err == nil
}

func (rs *RedisStore) release(ctx context.Context) {
	if err := rs.client.Del(ctx, rs.lockKey).Err(); err != nil {
		log.Warn().Err(err).Str("key", rs.lockKey).Msg("failed to remove lock key")
	}
}

func (rs *RedisStore) fresh() *types.GameState {
	return types.NewGameState(rs.questions, rs.duration)
}
