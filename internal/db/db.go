// Package db persists committed readings and classification results to a
// local sqlite database.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/ph.report/internal/sensor"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path and
// ensures the schema exists. The inline schema matches migration 0001 so a
// fresh database works without running the migration tooling.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			id                TEXT PRIMARY KEY,
			table_name        TEXT NOT NULL,
			label             TEXT,
			matched           INTEGER NOT NULL,
			angle             DOUBLE,
			red_hz            DOUBLE,
			green_hz          DOUBLE,
			blue_hz           DOUBLE,
			red_tally         BIGINT,
			green_tally       BIGINT,
			blue_tally        BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS readings_timestamp ON readings (timestamp);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// RecordResult stores one completed acquisition session.
func (db *DB) RecordResult(res sensor.Result) error {
	_, err := db.Exec(
		`INSERT INTO readings (
			id, table_name, label, matched, angle,
			red_hz, green_hz, blue_hz,
			red_tally, green_tally, blue_tally, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID.String(), res.Table, res.Label, res.Matched, res.Angle,
		res.Sample.Hertz[sensor.Red], res.Sample.Hertz[sensor.Green], res.Sample.Hertz[sensor.Blue],
		res.Sample.Tally[sensor.Red], res.Sample.Tally[sensor.Green], res.Sample.Tally[sensor.Blue],
		res.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// ReadingRow is one stored acquisition session.
type ReadingRow struct {
	ID        string    `json:"id"`
	Table     string    `json:"table"`
	Label     string    `json:"label,omitempty"`
	Matched   bool      `json:"matched"`
	Angle     float64   `json:"angle_radians"`
	RedHz     float64   `json:"red_hz"`
	GreenHz   float64   `json:"green_hz"`
	BlueHz    float64   `json:"blue_hz"`
	Timestamp time.Time `json:"timestamp"`
}

// Readings returns the most recent stored sessions, newest first, up to
// limit rows.
func (db *DB) Readings(limit int) ([]ReadingRow, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT id, table_name, label, matched, angle,
			red_hz, green_hz, blue_hz, timestamp
		FROM readings ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var out []ReadingRow
	for rows.Next() {
		var r ReadingRow
		var label sql.NullString
		if err := rows.Scan(&r.ID, &r.Table, &label, &r.Matched, &r.Angle,
			&r.RedHz, &r.GreenHz, &r.BlueHz, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Label = label.String
		out = append(out, r)
	}
	return out, rows.Err()
}
