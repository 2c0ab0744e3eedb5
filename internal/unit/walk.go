package unit

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// walkUnits lists unit paths under root with the given extension. Directory
// units are not descended into. Dot entries (configs, locks, temp files) are
// skipped.
func walkUnits(root, ext string, dirs bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(name) != ext {
			return nil
		}
		switch {
		case dirs && d.IsDir():
			paths = append(paths, p)
			return filepath.SkipDir
		case !dirs && d.Type().IsRegular():
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover units under %s: %w", root, err)
	}
	return paths, nil
}

// writeFileAtomic writes data to path through a dot-prefixed temp file in
// the same directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func decimalKey(k int64) []byte {
	return strconv.AppendInt(nil, k, 10)
}

func parseDecimalKey(b []byte) (int64, error) {
	k, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad key %q", ErrCorruptUnit, b)
	}
	return k, nil
}

// orderedKey encodes k so that byte order matches numeric order.
func orderedKey(k int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k)^(1<<63))
	return b[:]
}

func parseOrderedKey(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: bad key length %d", ErrCorruptUnit, len(b))
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}
