package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.txt")

	if err := AtomicWriteFile(path, []byte("tracked: 3"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(content) != "tracked: 3" {
		t.Errorf("content = %q", content)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be gone after rename")
	}
}

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	payload := map[string]int{"pid": 4242}
	if err := AtomicWriteJSON(path, payload); err != nil {
		t.Fatalf("AtomicWriteJSON: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(content, &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got["pid"] != 4242 {
		t.Errorf("round trip = %v", got)
	}
	// Indented output, since operators read these files by hand.
	if content[1] != '\n' {
		t.Errorf("expected indented JSON, got %q", content)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be gone after rename")
	}
}

func TestAtomicWriteReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	if err := AtomicWriteJSON(path, "first"); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWriteJSON(path, "second"); err != nil {
		t.Fatalf("second write: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(content) != "\"second\"" {
		t.Errorf("content = %q, want the replacement", content)
	}
}

func TestAtomicWriteJSONRejectsUnmarshalable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")

	if err := AtomicWriteJSON(path, func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("failed marshal should leave no file behind")
	}
}
