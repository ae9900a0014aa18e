package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists the state as a single JSON file.
//
// Writes go to a temporary file followed by an atomic rename so a crash
// mid-write never leaves a truncated record. A file that cannot be parsed is
// moved aside with a .corrupted suffix and treated as missing.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path. The parent directory is
// created on demand at save time.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("state: read %s: %w", f.path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		f.quarantine(err)
		return State{}, ErrNotFound
	}
	if !st.Valid() {
		f.quarantine(fmt.Errorf("unknown mode %q", st.Mode))
		return State{}, ErrNotFound
	}

	return st, nil
}

func (f *FileStore) Save(ctx context.Context, st State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("state: create directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("state: replace %s: %w", f.path, err)
	}
	return nil
}

// quarantine moves a malformed state file aside so the next save starts
// clean while the bad content stays available for inspection.
func (f *FileStore) quarantine(cause error) {
	backup := f.path + ".corrupted"
	if err := os.Rename(f.path, backup); err != nil {
		slog.Warn("state: could not set aside corrupt state file",
			"path", f.path, "err", err, "cause", cause)
		return
	}
	slog.Warn("state: corrupt state file set aside",
		"path", f.path, "backup", backup, "cause", cause)
}
