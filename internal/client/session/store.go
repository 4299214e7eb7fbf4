package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stockroom/stockroom-core/internal/client/api"
)

// State is the persisted session snapshot: the token, the identity it
// was issued to, and when it stops being valid.
type State struct {
	Token     string    `json:"auth_token"`
	User      api.User  `json:"auth_user"`
	ExpiresAt time.Time `json:"auth_expires_at"`
}

// Store persists session state across process restarts.
//
// Read returns (nil, nil) when no state is stored. Write and Clear must
// be atomic: a crash mid-write may lose the session but never corrupt it.
type Store interface {
	Read() (*State, error)
	Write(state *State) error
	Clear() error
}

// FileStore persists session state as a JSON document on disk.
//
// Writes go to a temp file in the same directory followed by a rename,
// so readers never observe a partially written document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the given file path. Parent
// directories are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read loads the persisted state, or (nil, nil) if none exists.
func (s *FileStore) Read() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt session file is treated as logged out rather than
		// wedging the client.
		return nil, nil
	}
	if state.Token == "" {
		return nil, nil
	}

	return &state, nil
}

// Write atomically replaces the persisted state.
func (s *FileStore) Write(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing session state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("restricting session file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp session file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// Clear removes the persisted state. Missing state is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// MemoryStore keeps session state in memory. Used in tests and for
// processes that must not persist tokens to disk.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read returns the stored state, or (nil, nil) if none.
func (s *MemoryStore) Read() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	copied := *s.state
	return &copied, nil
}

// Write replaces the stored state.
func (s *MemoryStore) Write(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.state = &copied
	return nil
}

// Clear removes the stored state.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	return nil
}
