package unit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const dirLockName = ".lock"

type dirBackend struct{}

func (dirBackend) Name() string   { return "dir" }
func (dirBackend) Ext() string    { return ".dir" }
func (dirBackend) TextOnly() bool { return false }

func (b dirBackend) Paths(root string) ([]string, error) {
	return walkUnits(root, b.Ext(), true)
}

func (dirBackend) open(path string, mode Mode, _ Options) (Unit, error) {
	if !mode.Writable() {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, path)
			}
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", errUndetermined, path)
		}
		return &dirUnit{path: path}, nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create unit: %w", err)
	}
	lk, err := lockFile(filepath.Join(path, dirLockName))
	if err != nil {
		return nil, err
	}
	return &dirUnit{path: path, writable: true, lock: lk}, nil
}

// dirUnit stores each record as a file named by its decimal key.
type dirUnit struct {
	path     string
	writable bool
	lock     *fileLock
	closed   bool
}

func (u *dirUnit) Path() string { return u.path }

func (u *dirUnit) Get(key int64) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(u.path, strconv.FormatInt(key, 10)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	return b, err
}

func (u *dirUnit) Set(key int64, value []byte) error {
	if !u.writable {
		return ErrReadOnly
	}
	return writeFileAtomic(filepath.Join(u.path, strconv.FormatInt(key, 10)), value)
}

func (u *dirUnit) Keys() ([]int64, error) {
	entries, err := os.ReadDir(u.path)
	if err != nil {
		return nil, err
	}
	keys := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		k, err := parseDecimalKey([]byte(e.Name()))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (u *dirUnit) Items(fn func(key int64, value []byte) error) error {
	keys, err := u.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		v, err := u.Get(k)
		if err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (u *dirUnit) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.lock.unlock()
}
