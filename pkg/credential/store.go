package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Common errors
var (
	ErrNotFound = errors.New("credential not found")
	ErrInvalid  = errors.New("invalid credential record")
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// StoreError describes a failed store operation.
type StoreError struct {
	Op   string // "load", "save", "clear"
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s credential %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// FileStore keeps one Record as JSON in a file readable only by its owner.
type FileStore struct {
	Path string
}

// NewFileStore returns a store rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the record. A missing file yields an error matching ErrNotFound.
func (s *FileStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &StoreError{Op: "load", Path: s.Path, Err: ErrNotFound}
		}
		return nil, &StoreError{Op: "load", Path: s.Path, Err: err}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &StoreError{Op: "load", Path: s.Path, Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
	}
	if err := rec.Validate(); err != nil {
		return nil, &StoreError{Op: "load", Path: s.Path, Err: err}
	}
	return &rec, nil
}

// Save replaces the stored record. The new content is written to a temporary
// file in the same directory and renamed over the old one.
func (s *FileStore) Save(rec *Record) error {
	if err := rec.Validate(); err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return &StoreError{Op: "save", Path: s.Path, Err: err}
	}
	return nil
}

// Clear removes the stored record. Clearing an absent record is not an error.
func (s *FileStore) Clear() error {
	err := os.Remove(s.Path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &StoreError{Op: "clear", Path: s.Path, Err: err}
}

// Exists reports whether a record file is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}
