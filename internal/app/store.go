package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store keys. Each key holds one whole collection serialized as a single
// blob; every Write fully replaces the previous value.
const (
	keyClassrooms = "classrooms"
	keySessions   = "sessions"
	keyLastUser   = "last_user"
)

// ErrKeyAbsent reports that a key has never been written.
var ErrKeyAbsent = errors.New("key absent")

// Store is a synchronous key-value blob store. There is no cross-key
// atomicity: callers touching both collections must treat the two writes
// as independently committed. Concurrent external writers are resolved
// last-write-wins at whole-value granularity.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
}

// StorageFault wraps any store failure. Callers treat it as fatal to the
// in-flight operation; it is never converted into a transcript message.
type StorageFault struct {
	Op  string
	Key string
	Err error
}

func (f *StorageFault) Error() string {
	return fmt.Sprintf("storage fault: %s %q: %v", f.Op, f.Key, f.Err)
}

func (f *StorageFault) Unwrap() error { return f.Err }

// IsStorageFault reports whether err originated in the persistent store.
func IsStorageFault(err error) bool {
	var f *StorageFault
	return errors.As(err, &f)
}

func DefaultStorageRoot() string {
	// Prefer XDG data dir (Linux/macOS). If unavailable, fall back to ~/.local/share.
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "classchat", "storage")
	}
	if base, err := os.UserHomeDir(); err == nil && base != "" {
		return filepath.Join(base, ".local", "share", "classchat", "storage")
	}
	return filepath.Join(os.TempDir(), "classchat", "storage")
}

// FileStore keeps one file per key under Root. It is the default backend
// and the one the SQLite backend falls back to.
type FileStore struct {
	Root string
}

func NewFileStore(root string) *FileStore {
	if strings.TrimSpace(root) == "" {
		root = DefaultStorageRoot()
	}
	return &FileStore{Root: filepath.Clean(root)}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Root, key+".json")
}

func (s *FileStore) Read(key string) ([]byte, error) {
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyAbsent
		}
		return nil, &StorageFault{Op: "read", Key: key, Err: err}
	}
	return b, nil
}

func (s *FileStore) Write(key string, value []byte) error {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return &StorageFault{Op: "write", Key: key, Err: err}
	}
	if err := os.WriteFile(s.path(key), value, 0o644); err != nil {
		return &StorageFault{Op: "write", Key: key, Err: err}
	}
	return nil
}
