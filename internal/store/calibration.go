package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// CalibrationRepository stores per-program threshold overrides as JSON.
type CalibrationRepository struct {
	db *sql.DB
}

// Calibration returns the calibration repository for this store.
func (s *Store) Calibration() *CalibrationRepository {
	return &CalibrationRepository{db: s.db}
}

// Get returns the stored profile for program, or ErrNotFound.
func (r *CalibrationRepository) Get(program string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRow(
		`SELECT json FROM calibration WHERE program = ?`, program,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Put creates or replaces the profile for program. The payload must be a
// JSON object.
func (r *CalibrationRepository) Put(program string, profile json.RawMessage) error {
	var obj map[string]any
	if err := json.Unmarshal(profile, &obj); err != nil {
		return err
	}
	_, err := r.db.Exec(
		`INSERT INTO calibration (program, json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(program) DO UPDATE SET json = excluded.json, updated_at = excluded.updated_at`,
		program, string(profile), time.Now(),
	)
	return err
}

// Delete removes the profile for program.
func (r *CalibrationRepository) Delete(program string) error {
	result, err := r.db.Exec(`DELETE FROM calibration WHERE program = ?`, program)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
