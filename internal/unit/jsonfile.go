package unit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"unicode/utf8"
)

type jsonBackend struct{}

func (jsonBackend) Name() string   { return "json" }
func (jsonBackend) Ext() string    { return ".json" }
func (jsonBackend) TextOnly() bool { return true }

func (b jsonBackend) Paths(root string) ([]string, error) {
	return walkUnits(root, b.Ext(), false)
}

// jsonLockPath is the sidecar lock for a JSON unit. It is dot-prefixed so
// discovery skips it.
func jsonLockPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+".lock")
}

func (jsonBackend) open(path string, mode Mode, _ Options) (Unit, error) {
	u := &jsonUnit{path: path, writable: mode.Writable(), data: map[string]string{}}
	if u.writable {
		lk, err := lockFile(jsonLockPath(path))
		if err != nil {
			return nil, err
		}
		u.lock = lk
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !u.writable {
			return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, path)
		}
		return u, nil
	case err != nil:
		u.lock.unlock()
		return nil, err
	}
	if err := json.Unmarshal(raw, &u.data); err != nil {
		u.lock.unlock()
		return nil, fmt.Errorf("%w: %v", errUndetermined, err)
	}
	return u, nil
}

// jsonUnit holds the whole document in memory and rewrites it on close.
type jsonUnit struct {
	path     string
	data     map[string]string
	writable bool
	dirty    bool
	lock     *fileLock
}

func (u *jsonUnit) Path() string { return u.path }

func (u *jsonUnit) Get(key int64) ([]byte, error) {
	v, ok := u.data[strconv.FormatInt(key, 10)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return []byte(v), nil
}

func (u *jsonUnit) Set(key int64, value []byte) error {
	if !u.writable {
		return ErrReadOnly
	}
	if !utf8.Valid(value) {
		return ErrBinaryValue
	}
	u.data[strconv.FormatInt(key, 10)] = string(value)
	u.dirty = true
	return nil
}

func (u *jsonUnit) Keys() ([]int64, error) {
	keys := make([]int64, 0, len(u.data))
	for k := range u.data {
		key, err := parseDecimalKey([]byte(k))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (u *jsonUnit) Items(fn func(key int64, value []byte) error) error {
	keys, err := u.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := fn(k, []byte(u.data[strconv.FormatInt(k, 10)])); err != nil {
			return err
		}
	}
	return nil
}

func (u *jsonUnit) Close() error {
	if u.data == nil {
		return nil
	}
	var err error
	if u.writable && u.dirty {
		var raw []byte
		raw, err = json.Marshal(u.data)
		if err == nil {
			err = writeFileAtomic(u.path, raw)
		}
		if err != nil {
			err = fmt.Errorf("save %s: %w", u.path, err)
		}
	}
	u.data = nil
	if uerr := u.lock.unlock(); err == nil {
		err = uerr
	}
	return err
}
