package bank

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lfmoraes/quizroom/pkg/game/types"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSource reads the bank from a SQLite database. Options are stored as
// a JSON array in the opcoes column so the row shape stays close to the
// document shape.
type SQLiteSource struct {
	path string
}

func NewSQLiteSource(path string) *SQLiteSource {
	return &SQLiteSource{path: path}
}

func (s *SQLiteSource) Load() ([]types.Question, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open question bank %s: %v", s.path, err)
	}
	defer db.Close()

	q := `
	SELECT id, tema, pergunta, opcoes, correta, base_biblica
	FROM questions
	ORDER BY rowid;
	`
	rows, err := db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("failed to query question bank %s: %v", s.path, err)
	}
	defer rows.Close()

	var questions []types.Question
	for rows.Next() {
		var question types.Question
		var options string
		if err := rows.Scan(&question.ID, &question.Topic, &question.Prompt, &options, &question.Correct, &question.BibleRef); err != nil {
			return nil, fmt.Errorf("failed to scan question: %v", err)
		}
		if err := json.Unmarshal([]byte(options), &question.Options); err != nil {
			return nil, fmt.Errorf("failed to parse options for question %s: %v", question.ID, err)
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read question bank %s: %v", s.path, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question bank %s is empty", s.path)
	}
	return questions, nil
}
