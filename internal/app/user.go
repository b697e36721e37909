package app

import (
	"encoding/json"
	"errors"
)

// SaveLastUser snapshots the logged-in identity so a relaunch restores
// the UI state without re-prompting.
func SaveLastUser(store Store, u User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return &StorageFault{Op: "encode", Key: keyLastUser, Err: err}
	}
	return store.Write(keyLastUser, b)
}

// LoadLastUser returns nil without error when no snapshot exists.
func LoadLastUser(store Store) (*User, error) {
	b, err := store.Read(keyLastUser)
	if errors.Is(err, ErrKeyAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, &StorageFault{Op: "decode", Key: keyLastUser, Err: err}
	}
	if u.Name == "" {
		return nil, nil
	}
	return &u, nil
}

// ClearLastUser overwrites the snapshot; the store has no delete, so an
// empty record stands in for absence.
func ClearLastUser(store Store) error {
	return store.Write(keyLastUser, []byte("{}"))
}
