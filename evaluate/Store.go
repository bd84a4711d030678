package evaluate

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store persists evaluation results in a sqlite database so that
// evaluations of different runs can be accumulated and queried
// together.
type Store struct {
	db *sql.DB
}

// OpenStore opens, creating if needed, the results database at path
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("openStore: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model TEXT NOT NULL,
			steps INTEGER NOT NULL,
			reward_per_step REAL NOT NULL,
			rewards REAL NOT NULL,
			seed INTEGER NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("openStore: could not create table: %v", err)
	}
	return &Store{db: db}, nil
}

// Insert adds results to the store in a single transaction
func (s *Store) Insert(results ...Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert: %v", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO results(model, steps,
		reward_per_step, rewards, seed) VALUES(?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert: %v", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err := stmt.Exec(r.Model, r.Steps, r.RewardPerStep, r.Rewards,
			r.Seed)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert: %v", err)
	}
	return nil
}

// All returns all stored results in insertion order
func (s *Store) All() ([]Result, error) {
	rows, err := s.db.Query(`SELECT model, steps, reward_per_step, rewards,
		seed FROM results ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("all: %v", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		err := rows.Scan(&r.Model, &r.Steps, &r.RewardPerStep, &r.Rewards,
			&r.Seed)
		if err != nil {
			return nil, fmt.Errorf("all: %v", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all: %v", err)
	}
	return results, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
