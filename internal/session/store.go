package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store persists the conversation history as a JSON document so a later
// session can be reviewed or resumed.
type Store struct {
	path string
}

// NewStore returns a Store writing to path. Parent directories are created
// on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the messages atomically (temp file then rename).
func (st *Store) Save(messages []Message) error {
	if st.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("session: create log directory: %w", err)
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode conversation: %w", err)
	}

	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("session: write conversation log: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session: replace conversation log: %w", err)
	}
	return nil
}

// Load reads a previously saved conversation. A missing file yields an
// empty history, not an error.
func (st *Store) Load() ([]Message, error) {
	if st.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(st.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read conversation log: %w", err)
	}
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("session: decode conversation log: %w", err)
	}
	return messages, nil
}
