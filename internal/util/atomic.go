// Package util provides small shared helpers: atomic file writes and
// retry with exponential backoff.
package util

import (
	"encoding/json"
	"fmt"
	"os"
)

// AtomicWriteFile writes data to path via a temp file and rename, so readers
// never observe a partially written file. The temp file lives in the same
// directory as path to keep the rename on one filesystem.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// AtomicWriteJSON marshals v as indented JSON and writes it atomically.
func AtomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return AtomicWriteFile(path, data, 0644)
}
