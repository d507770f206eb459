package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	in := map[string]int{"a": 1, "b": 2}
	if err := Write(path, in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var out map[string]int
	if err := Read(path, &out); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Errorf("Read() = %v", out)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain")
	}
}

func TestWrite_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	_ = Write(path, []int{1})
	_ = Write(path, []int{2, 3})

	var out []int
	if err := Read(path, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != 2 {
		t.Errorf("Read() = %v, want [2 3]", out)
	}
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()

	var v any
	if err := Read(filepath.Join(dir, "missing.json"), &v); !errors.IsNotFound(err) {
		t.Errorf("missing file: error = %v, want not found", err)
	}

	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte("{not json"), 0644)
	if err := Read(bad, &v); !errors.IsValidation(err) {
		t.Errorf("malformed file: error = %v, want validation", err)
	}
}
