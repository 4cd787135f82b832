package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-level configuration, read from the environment.
// Every session must point at the same state file (or redis key) to take
// part in the same game.
type Config struct {
	// StateFile is the shared state document path (file store).
	StateFile string
	// QuestionsFile is the JSON question bank path.
	QuestionsFile string
	// BankKind selects the bank source: "json" or "sqlite".
	BankKind string
	// BankDSN is the sqlite database path when BankKind is "sqlite".
	BankDSN string
	// StoreKind selects the store backend: "file" or "redis".
	StoreKind string
	RedisAddr string
	RedisPass string
	RedisDB   int
	RedisKey  string
	// QuestionDuration is the default answer window.
	QuestionDuration time.Duration
	// LockTimeout bounds lock acquisition before degraded mode kicks in.
	LockTimeout time.Duration
	// Strict disables the degraded-mode fallback: mutations fail instead
	// of racing when the lock cannot be acquired.
	Strict bool
	// LogLevel is a zerolog level string.
	LogLevel string
}

func FromEnv() Config {
	c := Config{}
	c.StateFile = getenv("QUIZ_STATE_FILE", "game_state.json")
	c.QuestionsFile = getenv("QUIZ_QUESTIONS_FILE", "questions.json")
	c.BankKind = getenv("QUIZ_BANK", "json")
	c.BankDSN = getenv("QUIZ_BANK_DSN", "questions.db")
	c.StoreKind = getenv("QUIZ_STORE", "file")
	c.RedisAddr = getenv("QUIZ_REDIS_ADDR", "localhost:6379")
	c.RedisPass = os.Getenv("QUIZ_REDIS_PASSWORD")
	c.RedisDB = getint("QUIZ_REDIS_DB", 0)
	c.RedisKey = getenv("QUIZ_REDIS_KEY", "quiz:state")
	c.QuestionDuration = getduration("QUIZ_QUESTION_DURATION", 20*time.Second)
	c.LockTimeout = getduration("QUIZ_LOCK_TIMEOUT", 5*time.Second)
	c.Strict = getenv("QUIZ_STRICT", "false") == "true"
	c.LogLevel = getenv("QUIZ_LOG_LEVEL", "info")
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
