package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Preferences are user toggles persisted across runs, separate from the
// operator-supplied config file.
type Preferences struct {
	Sound     bool `yaml:"sound"`
	AutoPaste bool `yaml:"auto_paste"`
}

func DefaultPreferences() Preferences {
	return Preferences{Sound: true, AutoPaste: true}
}

// PreferenceStore guards a Preferences value backed by a YAML file.
type PreferenceStore struct {
	path string
	mu   sync.Mutex
	cur  Preferences
}

// OpenPreferences loads the file at path. A missing file yields defaults.
func OpenPreferences(path string) (*PreferenceStore, error) {
	s := &PreferenceStore{path: path, cur: DefaultPreferences()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.cur); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}
	return s, nil
}

func (s *PreferenceStore) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update applies fn to a copy of the current preferences and persists the
// result. The in-memory value only changes when the write succeeds.
func (s *PreferenceStore) Update(fn func(*Preferences)) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	if err := writeAtomic(s.path, next); err != nil {
		return s.cur, err
	}
	s.cur = next
	return next, nil
}

func writeAtomic(path string, p Preferences) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".preferences-*")
	if err != nil {
		return fmt.Errorf("create temp preferences: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
