// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package capturedb records capture attempts in a sqlite database.
package capturedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is a single capture attempt.
type Record struct {
	ID       string
	Trigger  string
	Started  time.Time
	Finished time.Time
	Filename string
	Bytes    int64
	Code     string // Empty for successful captures.
	Message  string
}

func (r Record) OK() bool {
	return r.Code == ""
}

type DB struct {
	sql *sql.DB
}

// Open opens, creating if necessary, the database at path.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(4)
	s.SetMaxIdleConns(4)
	db := &DB{sql: s}
	if err := db.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("capturedb: migrate %v: %w", path, err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.sql.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			filename TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			code TEXT NOT NULL,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_started ON captures(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert records r, assigning it an ID if it does not have one.
func (db *DB) Insert(ctx context.Context, r Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO captures(id, source, started_at, finished_at, filename, bytes, code, message)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Trigger, r.Started.UnixNano(), r.Finished.UnixNano(),
		r.Filename, r.Bytes, r.Code, r.Message)
	if err != nil {
		return "", fmt.Errorf("capturedb: insert: %w", err)
	}
	return r.ID, nil
}

// Recent returns at most n records, most recent first. Times are
// returned in loc, or UTC if loc is nil.
func (db *DB) Recent(ctx context.Context, n int, loc *time.Location) ([]Record, error) {
	if loc == nil {
		loc = time.UTC
	}
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, source, started_at, finished_at, filename, bytes, code, message
		 FROM captures ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("capturedb: query: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Trigger, &started, &finished,
			&r.Filename, &r.Bytes, &r.Code, &r.Message); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started).In(loc)
		r.Finished = time.Unix(0, finished).In(loc)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts returns the number of successful and failed captures started at
// or after since.
func (db *DB) Counts(ctx context.Context, since time.Time) (ok, failed int, err error) {
	row := db.sql.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN code = '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN code != '' THEN 1 ELSE 0 END), 0)
		 FROM captures WHERE started_at >= ?`, since.UnixNano())
	if err := row.Scan(&ok, &failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	return ok, failed, nil
}
