package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const partialName = ".partial"

// Store is the on-disk layout: <dir>/<name>/ggml-<name>.bin, with
// in-progress downloads at <dir>/<name>/.partial.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name, FileName(name))
}

func (s *Store) partialPath(name string) string {
	return filepath.Join(s.dir, name, partialName)
}

// IsDownloaded reports whether the final file exists and is non-empty.
func (s *Store) IsDownloaded(name string) bool {
	if !validName(name) {
		return false
	}
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func (s *Store) SizeOf(name string) (int64, bool) {
	if !s.IsDownloaded(name) {
		return 0, false
	}
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && s.IsDownloaded(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the model folder. It reports whether a downloaded model
// was present.
func (s *Store) Remove(name string) (bool, error) {
	if !validName(name) {
		return false, ErrUnknownModel
	}
	existed := s.IsDownloaded(name)
	if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
		return existed, fmt.Errorf("remove model %s: %w", name, err)
	}
	return existed, nil
}
