// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `create table if not exists maps (
	name text primary key,
	body blob not null,
	saved_at integer not null
)`

// SQLiteStore keeps entries as rows of a single table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("map cache sqlite: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("map cache sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "pragma busy_timeout=2000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("map cache sqlite: set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("map cache sqlite: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "select count(*) from maps where name = ?", name).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) Load(ctx context.Context, name string) ([]byte, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, "select body from maps where name = ?", name).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	return b, err
}

func (s *SQLiteStore) Save(ctx context.Context, name string, b []byte) error {
	_, err := s.db.ExecContext(ctx,
		`insert into maps (name, body, saved_at) values (?, ?, ?)
		on conflict(name) do update set body = excluded.body, saved_at = excluded.saved_at`,
		name, b, time.Now().UTC().Unix(),
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
