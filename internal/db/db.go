// Package db persists completed sprint results to SQLite and serves the
// aggregate statistics behind the results endpoints.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// ResultRow is one stored sprint result.
type ResultRow struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"sessionId"`
	Mode           string    `json:"mode"`
	DistanceMeters float64   `json:"distanceMeters"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	SpeedMS        float64   `json:"speedMS"`
	SpeedKmh       float64   `json:"speedKmh"`
	RecordedAt     time.Time `json:"recordedAt"`
}

func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{sqlDB}, nil
}

// applyPragmas sets the connection defaults. WAL keeps readers from blocking
// the recorder goroutine; the busy timeout covers checkpoint stalls.
func applyPragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// RecordResult inserts one completed sprint and returns its row id.
func (db *DB) RecordResult(r ResultRow) (int64, error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	res, err := db.Exec(
		`INSERT INTO results (
			session_id, mode, distance_meters, elapsed_seconds,
			speed_ms, speed_kmh, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Mode, r.DistanceMeters, r.ElapsedSeconds,
		r.SpeedMS, r.SpeedKmh, r.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert result: %w", err)
	}
	return res.LastInsertId()
}

// ListResults returns the most recent results, newest first. limit <= 0
// returns everything.
func (db *DB) ListResults(limit int) ([]ResultRow, error) {
	query := `SELECT id, session_id, mode, distance_meters, elapsed_seconds,
		speed_ms, speed_kmh, recorded_at
		FROM results ORDER BY recorded_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		var recordedAt string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Mode, &r.DistanceMeters,
			&r.ElapsedSeconds, &r.SpeedMS, &r.SpeedKmh, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			r.RecordedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ElapsedTimes returns the elapsed seconds of every stored result, oldest
// first, for the statistics rollup.
func (db *DB) ElapsedTimes() ([]float64, error) {
	rows, err := db.Query(`SELECT elapsed_seconds FROM results ORDER BY recorded_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query elapsed times: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
