package unit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/rs/zerolog"
)

type badgerBackend struct{}

func (badgerBackend) Name() string   { return "badger" }
func (badgerBackend) Ext() string    { return ".badger" }
func (badgerBackend) TextOnly() bool { return false }

func (b badgerBackend) Paths(root string) ([]string, error) {
	return walkUnits(root, b.Ext(), true)
}

// badgerOptions sizes a badger instance for a small shard rather than a
// whole database.
func badgerOptions(path string, readOnly bool, log zerolog.Logger) badger.Options {
	return badger.DefaultOptions(path).
		WithReadOnly(readOnly).
		WithLogger(badgerLogger{log: log.With().Str("component", "badger").Logger()}).
		WithMetricsEnabled(false).
		WithMemTableSize(8 << 20).
		WithValueThreshold(1 << 10).
		WithValueLogFileSize(16 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithNumCompactors(2).
		WithCompression(options.None).
		WithBlockCacheSize(0).
		WithDetectConflicts(false)
}

func (badgerBackend) open(path string, mode Mode, opts Options) (Unit, error) {
	readOnly := !mode.Writable()
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, path)
			}
			return nil, err
		}
	}
	db, err := badger.Open(badgerOptions(path, readOnly, opts.Logger))
	if err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) || strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("%w: %s", ErrUnitLocked, path)
		}
		return nil, err
	}
	return &badgerUnit{path: path, db: db, writable: !readOnly}, nil
}

// badgerUnit keys records by orderedKey, so iteration is numeric.
type badgerUnit struct {
	path     string
	db       *badger.DB
	writable bool
}

func (u *badgerUnit) Path() string { return u.path }

func (u *badgerUnit) Get(key int64) ([]byte, error) {
	var out []byte
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(orderedKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (u *badgerUnit) Set(key int64, value []byte) error {
	if !u.writable {
		return ErrReadOnly
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(orderedKey(key), value)
	})
}

func (u *badgerUnit) Keys() ([]int64, error) {
	var keys []int64
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k, err := parseOrderedKey(it.Item().Key())
			if err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return nil
	})
	return keys, err
}

func (u *badgerUnit) Items(fn func(key int64, value []byte) error) error {
	return u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k, err := parseOrderedKey(item.Key())
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *badgerUnit) Close() error {
	if u.db == nil {
		return nil
	}
	db := u.db
	u.db = nil
	return db.Close()
}

// badgerLogger adapts zerolog to badger's logger interface. Badger's info
// chatter is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
