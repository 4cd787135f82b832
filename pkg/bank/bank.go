// Package bank loads the read-only question bank a game is played over.
package bank

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lfmoraes/quizroom/pkg/game/types"
)

// Source loads the ordered question bank. The bank is read once per
// synthesized game state; a missing or unreadable bank is a fatal error.
type Source interface {
	Load() ([]types.Question, error)
}

// FileSource reads the bank from a JSON file holding an array of questions.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load() ([]types.Question, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank %s: %v", s.path, err)
	}
	var questions []types.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse question bank %s: %v", s.path, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question bank %s is empty", s.path)
	}
	return questions, nil
}
