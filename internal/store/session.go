package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord is the persisted summary of one program run.
type SessionRecord struct {
	ID        string     `json:"id"`
	Program   string     `json:"program"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Score     int        `json:"score"`
	EndReason string     `json:"end_reason"`
	Ticks     int        `json:"ticks"`
	Actions   int        `json:"actions"`
}

// Active reports whether the session has not been finished yet.
func (r *SessionRecord) Active() bool {
	return r.EndedAt == nil
}

// SessionRepository stores session history.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a session row at start time.
func (r *SessionRepository) Create(rec *SessionRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, program, started_at) VALUES (?, ?, ?)`,
		rec.ID, rec.Program, rec.StartedAt,
	)
	return err
}

// Finish records the end of a session.
func (r *SessionRepository) Finish(rec *SessionRecord) error {
	if rec.EndedAt == nil {
		now := time.Now()
		rec.EndedAt = &now
	}
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, score = ?, end_reason = ?, ticks = ?, actions = ?
		 WHERE id = ?`,
		*rec.EndedAt, rec.Score, rec.EndReason, rec.Ticks, rec.Actions, rec.ID,
	)
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

// Get retrieves a session by ID.
func (r *SessionRepository) Get(id string) (*SessionRecord, error) {
	row := r.db.QueryRow(
		`SELECT id, program, started_at, ended_at, score, end_reason, ticks, actions
		 FROM sessions WHERE id = ?`,
		id,
	)
	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns the most recent sessions first. A limit of zero or less
// returns every row.
func (r *SessionRepository) List(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, program, started_at, ended_at, score, end_reason, ticks, actions
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// BestScore returns the highest score recorded for program, or zero.
func (r *SessionRepository) BestScore(program string) (int, error) {
	var best sql.NullInt64
	err := r.db.QueryRow(
		`SELECT MAX(score) FROM sessions WHERE program = ?`, program,
	).Scan(&best)
	if err != nil {
		return 0, err
	}
	return int(best.Int64), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var ended sql.NullTime
	err := s.Scan(&rec.ID, &rec.Program, &rec.StartedAt, &ended,
		&rec.Score, &rec.EndReason, &rec.Ticks, &rec.Actions)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return rec, nil
}
