// Package file implements a state store backed by a local JSON slot file,
// one file per key under a base directory.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the file-backed state store.
type Config struct {
	// BaseDir is the directory holding one file per slot key.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store persists slot values as files so run state survives process restarts.
type Store struct {
	baseDir string
}

// New creates a file-backed state store, creating the base directory if needed.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Store{baseDir: cfg.BaseDir}, nil
}

// Get reads the slot file for key. A missing file is not an error.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read slot %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes the slot file atomically via a temp file rename.
func (s *Store) Set(_ context.Context, key string, value string) error {
	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return fmt.Errorf("write slot %q: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("commit slot %q: %w", key, err)
	}
	return nil
}

// Remove deletes the slot file. Removing a missing slot is not an error.
func (s *Store) Remove(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove slot %q: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	// Slot keys may contain separators (e.g. "pipeline:last_run"); flatten
	// them into a safe file name.
	name := strings.NewReplacer("/", "_", ":", "_").Replace(key) + ".json"
	return filepath.Join(s.baseDir, name)
}
