package output

import (
	"errors"
	"os"
	"path/filepath"
)

// WriteAtomic writes data to path so that readers see either the old file or
// the complete new one:
//   - ensures the destination directory exists
//   - writes a temp file in that directory, fsyncs and closes it
//   - renames it over path
//
// The temp file is removed on any failure.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("output path is empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(abs))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// No-op once the rename has succeeded.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, abs)
}
