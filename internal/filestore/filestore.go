// Package filestore writes received file bytes to disk. Every write is
// staged under a temporary suffix and only renamed into place once
// complete, so a crash mid-write never leaves a corrupt file at the
// final path.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wolkabout/filelink-go/internal/hashutil"
)

// StoreError wraps any I/O failure encountered while writing a file.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("filestore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Store is a directory of named binary files on disk.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating dir if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrap("new", err)
	}
	return &Store{root: dir}, nil
}

// Path returns the absolute path a file named name would be written to.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// CreateBinary atomically writes data to name under the store's root:
// the bytes land in a ".part" sibling first, fsynced, then renamed over
// the final path so a reader never observes a partially-written file.
func (s *Store) CreateBinary(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap("create", err)
	}
	final := s.Path(name)
	part := final + ".part"

	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", wrap("create", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return "", wrap("write", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return "", wrap("sync", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return "", wrap("close", err)
	}
	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return "", wrap("rename", err)
	}
	if err := verify(final, data); err != nil {
		_ = os.Remove(final)
		return "", wrap("verify", err)
	}
	return final, nil
}

// verify re-reads the materialized file from disk and streams it
// through SHA-256, catching any corruption the rename didn't.
func verify(path string, want []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	got, err := hashutil.SHA256Reader(f)
	if err != nil {
		return err
	}
	if got != hashutil.SHA256Hex(want) {
		return fmt.Errorf("materialized file does not match its expected hash")
	}
	return nil
}

// Remove deletes the named file. No-op if it does not exist.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return wrap("remove", err)
	}
	return nil
}

// RemoveAll deletes every file directly under the store's root.
func (s *Store) RemoveAll() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return wrap("remove all", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, e.Name())); err != nil {
			return wrap("remove all", err)
		}
	}
	return nil
}

// Exists reports whether name is present in the store.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}
