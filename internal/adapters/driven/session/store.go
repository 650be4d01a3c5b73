// Package session persists the operator session as a JSON file and watches it
// for changes made by other m365ctl processes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/m365ctl/internal/core/domain"
	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
)

// FileName is the session file name inside the state directory.
const FileName = "session.json"

// Verify interface compliance.
var _ driven.SessionStore = (*FileStore)(nil)

// FileStore keeps the session in a single 0600 JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Path returns the session file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the session file. A missing file means logged out.
func (s *FileStore) Load(_ context.Context) (*domain.Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}
	if !sess.Valid() {
		return nil, nil
	}
	return &sess, nil
}

// Save writes the session through a temp file and rename so readers never
// observe a partial file.
func (s *FileStore) Save(_ context.Context, sess *domain.Session) error {
	if sess == nil {
		return fmt.Errorf("%w: nil session", domain.ErrInvalidInput)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // already renamed on success

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}

// Clear deletes the session file.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
