/*
Copyright 2026 conda-forge contributors.
SPDX-License-Identifier: Apache-2.0
*/

package taskresult

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the well-known artifact name inside the shared task-data
// directory.
const FileName = "task_data.json"

// Store writes Results into a task-data directory and reads them back. The
// artifact is single-writer, single-reader: the runner writes it exactly once
// (refusing to overwrite) and the finalizer loads it exactly once.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at the shared task-data directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the artifact location inside the task-data directory.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Write persists the result. O_EXCL enforces write-once: a second write in
// the same task-data directory fails instead of clobbering a pending handoff.
func (s *Store) Write(r *Result) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating task result file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing task result: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing task result: %w", err)
	}
	return nil
}

// Load reads and validates the artifact.
func (s *Store) Load() (*Result, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, fmt.Errorf("reading task result: %w", err)
	}
	return Decode(data)
}
