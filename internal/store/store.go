package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/frost-warsaw/frost/internal/store/migrate"
)

var (
	// ErrStoreExists is returned by Create when a store file is already present.
	ErrStoreExists = errors.New("store: already exists")
	// ErrReadOnly is returned for writes against a store opened read-only.
	ErrReadOnly = errors.New("store: opened read-only")
	// ErrBatchAbandoned wraps the cause of a batch that was rolled back and dropped.
	ErrBatchAbandoned = errors.New("store: batch abandoned")
)

const defaultQueryTimeout = 30 * time.Second

// Options tunes a Store. The zero value is usable.
type Options struct {
	QueryTimeout time.Duration
	ReadOnly     bool
	Logger       *log.Logger
}

// Store manages the vehicles database and provides write and query methods.
// One writer and any number of readers may use it concurrently.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	driver       Driver
	dbPath       string
	readOnly     bool
	logger       *log.Logger
	QueryTimeout time.Duration
}

// Create starts a brand new store at dbPath and creates its schema.
// It fails with ErrStoreExists when dbPath is already present so that a
// previous session's data is never appended to or overwritten.
// An empty dbPath creates an in-memory store.
func Create(driver Driver, dbPath string, opts ...Options) (*Store, error) {
	if dbPath != "" {
		if _, err := os.Stat(dbPath); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrStoreExists, dbPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("store: stat %s: %w", dbPath, err)
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("store: create parent dir: %w", err)
		}
	}

	s, err := open(driver, dbPath, mergeOptions(opts))
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		return nil, errors.Join(err, s.Discard())
	}
	return s, nil
}

// Open opens an existing store. Read-write opens also bring the schema up to
// date; read-only opens leave it untouched.
func Open(driver Driver, dbPath string, opts ...Options) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("store: open requires a path")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	o := mergeOptions(opts)
	s, err := open(driver, dbPath, o)
	if err != nil {
		return nil, err
	}
	if !o.ReadOnly {
		if err := s.EnsureSchema(context.Background()); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func mergeOptions(opts []Options) Options {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = defaultQueryTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

func open(driver Driver, dbPath string, o Options) (*Store, error) {
	if !driver.Valid() {
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver.sqlName(), driver.dsn(dbPath, o.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if dbPath == "" {
		// Every connection to an in-memory database sees its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	return &Store{
		db:           db,
		driver:       driver,
		dbPath:       dbPath,
		readOnly:     o.ReadOnly,
		logger:       o.Logger,
		QueryTimeout: o.QueryTimeout,
	}, nil
}

// EnsureSchema creates the vehicles table and its indexes when absent.
// Calling it repeatedly never alters existing data.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := migrate.NewRunner(s.db, string(s.driver)).Run(ctx); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Discard closes the store and deletes its files, including SQLite and
// DuckDB write-ahead logs. It undoes a Create whose caller failed before
// collecting anything, so the next Create at the same path can succeed.
func (s *Store) Discard() error {
	errs := []error{s.Close()}
	if s.dbPath == "" {
		return errors.Join(errs...)
	}
	for _, path := range []string{s.dbPath, s.dbPath + "-wal", s.dbPath + "-shm", s.dbPath + ".wal"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DB returns the underlying *sql.DB for direct query access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the SQL engine backing the store.
func (s *Store) Driver() Driver {
	return s.driver
}
