package ioutils

import (
	"io"
	"os"
	"path/filepath"
)

// AtomicWriteFile streams r into a temporary file next to filename and
// renames it into place once everything has been synced, so readers never
// observe a partially written file. It returns the number of bytes written.
func AtomicWriteFile(filename string, r io.Reader, perm os.FileMode) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(filename), ".tmp-"+filepath.Base(filename))
	if err != nil {
		return 0, err
	}

	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := f.Chmod(perm); err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if err != nil {
		return n, err
	}

	if err := f.Sync(); err != nil {
		return n, err
	}
	if err := f.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(f.Name(), filename); err != nil {
		return n, err
	}
	committed = true
	return n, nil
}
