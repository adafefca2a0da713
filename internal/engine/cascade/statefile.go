package cascade

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StateFile persists provider state snapshots so working models and quota
// blocks survive restarts. Pass [StateFile.Save] as the checkpoint callback
// and seed a new cascade from [StateFile.Load].
type StateFile struct {
	path string
}

// NewStateFile returns a StateFile writing to path. Parent directories are
// created on first save.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Save writes the snapshot atomically (temp file then rename).
func (sf *StateFile) Save(states map[string]ProviderState) error {
	if sf.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(sf.path), 0o755); err != nil {
		return fmt.Errorf("cascade: create state directory: %w", err)
	}

	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("cascade: encode provider state: %w", err)
	}

	tmp := sf.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cascade: write provider state: %w", err)
	}
	if err := os.Rename(tmp, sf.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cascade: replace provider state: %w", err)
	}
	return nil
}

// Load reads a previously saved snapshot. A missing file yields an empty
// snapshot, not an error.
func (sf *StateFile) Load() (map[string]ProviderState, error) {
	if sf.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(sf.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cascade: read provider state: %w", err)
	}
	var states map[string]ProviderState
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("cascade: decode provider state: %w", err)
	}
	return states, nil
}
