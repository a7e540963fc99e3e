// Package repository implements the persistent file-info store: a
// name -> {hash, absolute path} map backed by a small embedded database
// that survives a process restart.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/sqlite"
)

// FileInfo is the persisted record for one named file.
type FileInfo struct {
	Name string
	Hash string // hex MD5
	Path string // absolute path on disk
}

// RepositoryError wraps any I/O failure surfaced by the repository.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Op: op, Err: err}
}

// Repository is the file-info store. A single *sql.DB serializes
// concurrent access itself; callers do not need to additionally lock.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed repository at path.
func Open(path string) (*Repository, error) {
	if path == "" {
		return nil, wrap("open", errors.New("empty database path"))
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open", err)
	}
	db.SetMaxOpenConns(1) // single-writer SQLite file; avoids SQLITE_BUSY under WAL
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, wrap("init schema", err)
	}
	return &Repository{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS files (
		name       TEXT PRIMARY KEY,
		hash       TEXT NOT NULL,
		path       TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`)
	return err
}

// Close closes the underlying database handle.
func (r *Repository) Close() error {
	return wrap("close", r.db.Close())
}

// Store upserts info by name; calling it twice with the same name is a
// no-op beyond overwriting the stored hash/path.
func (r *Repository) Store(ctx context.Context, info FileInfo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO files(name, hash, path, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET hash=excluded.hash, path=excluded.path, updated_at=excluded.updated_at`,
		info.Name, info.Hash, info.Path, time.Now().Unix())
	return wrap("store", err)
}

// GetInfo returns the record for name, or ok=false if absent.
func (r *Repository) GetInfo(ctx context.Context, name string) (info FileInfo, ok bool, err error) {
	row := r.db.QueryRowContext(ctx, `SELECT name, hash, path FROM files WHERE name = ?`, name)
	if err := row.Scan(&info.Name, &info.Hash, &info.Path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileInfo{}, false, nil
		}
		return FileInfo{}, false, wrap("get info", err)
	}
	return info, true, nil
}

// ListNames returns every file name currently stored. Order is
// unspecified; the PRIMARY KEY already rules out duplicates.
func (r *Repository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM files`)
	if err != nil {
		return nil, wrap("list names", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrap("list names", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list names", err)
	}
	return names, nil
}

// Remove deletes the record for name. No-op if absent.
func (r *Repository) Remove(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE name = ?`, name)
	return wrap("remove", err)
}

// RemoveAll clears every record.
func (r *Repository) RemoveAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files`)
	return wrap("remove all", err)
}

// CheckIntegrity runs SQLite's own integrity check. Useful after an
// embedded device's abrupt power loss, before the repository's contents
// are trusted.
func (r *Repository) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := r.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return wrap("integrity check", err)
	}
	if result != "ok" {
		return wrap("integrity check", fmt.Errorf("database reported: %s", result))
	}
	return nil
}

// Stats summarizes the repository's current contents for diagnostics.
type Stats struct {
	FileCount int
}

// Stats reports the current row count.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&count); err != nil {
		return Stats{}, wrap("stats", err)
	}
	return Stats{FileCount: count}, nil
}
