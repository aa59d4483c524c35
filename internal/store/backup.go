package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInMemoryStore indicates the store uses an in-memory DB and cannot be snapshotted.
var ErrInMemoryStore = errors.New("store: in-memory store cannot be snapshotted")

// DBPath returns the configured database path. Empty means in-memory DB.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// SnapshotTo writes a consistent copy of the database to dstPath.
//
// SQLite uses VACUUM INTO, which reads a single snapshot and does not hold
// the write lock. DuckDB is checkpointed under the store write lock and the
// file is then copied outside the lock.
func (s *Store) SnapshotTo(dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	s.mu.RLock()
	dbPath := s.dbPath
	s.mu.RUnlock()
	if dbPath == "" {
		return ErrInMemoryStore
	}

	switch s.driver {
	case DriverSQLite:
		tmp := dstPath + ".tmp"
		_ = os.Remove(tmp)
		if _, err := s.db.Exec("VACUUM INTO ?", tmp); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("vacuum into: %w", err)
		}
		return os.Rename(tmp, dstPath)
	default:
		s.mu.Lock()
		if _, err := s.db.Exec("CHECKPOINT"); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("checkpoint: %w", err)
		}
		s.mu.Unlock()

		if err := copyFile(dbPath, dstPath); err != nil {
			return fmt.Errorf("copy duckdb file: %w", err)
		}
		return nil
	}
}

// copyFile writes srcPath to a temp file next to dstPath and renames it into
// place, so a partial copy is never visible under dstPath.
func copyFile(srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dstPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(dst, src); err == nil {
		err = dst.Sync()
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, dstPath)
}
