// Package jsonfile reads JSON documents and replaces them atomically.
package jsonfile

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Read decodes the JSON document at path into v.
// A missing file is reported as NOT_FOUND, a malformed one as VALIDATION_ERROR.
func Read(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return errors.NotFoundError(path)
		}
		return errors.IOError("failed to open "+path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrap(errors.CodeValidation, "malformed JSON in "+path, err)
	}
	return nil
}

// Write replaces the document at path with v. The data goes to a temporary
// file in the same directory that is renamed over path, so readers see
// either the old or the new document.
func Write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError("failed to create directory for "+path, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.IOError("failed to create "+tmp, err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return errors.IOError("failed to encode "+path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return errors.IOError("failed to sync "+tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.IOError("failed to close "+tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.IOError("failed to replace "+path, err)
	}
	return nil
}
