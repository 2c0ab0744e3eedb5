//go:build !unix

package unit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// fileLock is a lock file created exclusively. Unlike flock it survives a
// crashed holder and must then be removed by hand.
type fileLock struct {
	path string
}

func lockFile(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrExist):
			return nil, fmt.Errorf("%w: %s", ErrUnitLocked, path)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %v", errMissingDir, err)
		}
		return nil, err
	}
	fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &fileLock{path: path}, nil
}

func (l *fileLock) unlock() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
