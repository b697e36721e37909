package app

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the same blob-per-key contract as FileStore on a
// single kv table. The database is opened lazily on first use.
type SQLiteStore struct {
	Root   string
	dbPath string

	mu   sync.Mutex
	db   *sql.DB
	once sync.Once
	err  error
}

func NewSQLiteStore(root string) (*SQLiteStore, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultStorageRoot()
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &StorageFault{Op: "open", Key: root, Err: err}
	}
	return &SQLiteStore{
		Root:   root,
		dbPath: filepath.Join(root, "classchat.db"),
	}, nil
}

func (s *SQLiteStore) open() (*sql.DB, error) {
	s.once.Do(func() {
		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			s.err = err
			return
		}
		// Single connection keeps writes serialized; the store contract is
		// synchronous and single-device anyway.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`); err != nil {
			s.err = err
			_ = db.Close()
			return
		}
		s.db = db
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.db, nil
}

func (s *SQLiteStore) Read(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.open()
	if err != nil {
		return nil, &StorageFault{Op: "read", Key: key, Err: err}
	}
	var value []byte
	err = db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyAbsent
	}
	if err != nil {
		return nil, &StorageFault{Op: "read", Key: key, Err: err}
	}
	return value, nil
}

func (s *SQLiteStore) Write(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.open()
	if err != nil {
		return &StorageFault{Op: "write", Key: key, Err: err}
	}
	_, err = db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return &StorageFault{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
