package bundle

import (
	"os"
	"path/filepath"
	"time"
)

// writeFileAtomic writes data to a temp file next to path, stamps it with
// mtime and renames it into place. Readers never see a partial file.
func writeFileAtomic(path string, data []byte, mtime time.Time) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(name)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(name, 0o644); err != nil {
		return err
	}
	if err = os.Chtimes(name, mtime, mtime); err != nil {
		return err
	}
	return os.Rename(name, path)
}
