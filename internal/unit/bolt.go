package unit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("records")

type boltBackend struct{}

func (boltBackend) Name() string   { return "bolt" }
func (boltBackend) Ext() string    { return ".dbm" }
func (boltBackend) TextOnly() bool { return false }

func (b boltBackend) Paths(root string) ([]string, error) {
	return walkUnits(root, b.Ext(), false)
}

// open maps bbolt's flock to the unit lock: writers take it exclusively,
// readers shared. A 1ns timeout makes the flock attempt non-blocking so the
// retry policy stays in Open.
func (boltBackend) open(path string, mode Mode, _ Options) (Unit, error) {
	readOnly := !mode.Writable()
	if readOnly {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, path)
			}
			return nil, err
		}
		// a zero-size file is one a writer has created but not yet initialized
		if info.Size() == 0 {
			return nil, fmt.Errorf("%w: %s is empty", errUndetermined, path)
		}
	}

	db, err := bbolt.Open(path, 0o644, &bbolt.Options{
		Timeout:  time.Nanosecond,
		ReadOnly: readOnly,
		NoSync:   !readOnly,
	})
	if err != nil {
		switch {
		case errors.Is(err, bbolt.ErrTimeout):
			return nil, fmt.Errorf("%w: %s", ErrUnitLocked, path)
		case errors.Is(err, bbolt.ErrInvalid),
			errors.Is(err, bbolt.ErrVersionMismatch),
			errors.Is(err, bbolt.ErrChecksum):
			return nil, fmt.Errorf("%w: %v", errUndetermined, err)
		case errors.Is(err, fs.ErrNotExist):
			if readOnly {
				return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, path)
			}
			return nil, fmt.Errorf("%w: %v", errMissingDir, err)
		}
		return nil, err
	}

	if !readOnly {
		err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(boltBucket)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init bucket: %w", err)
		}
	}
	return &boltUnit{path: path, db: db, writable: !readOnly}, nil
}

type boltUnit struct {
	path     string
	db       *bbolt.DB
	writable bool
}

func (u *boltUnit) Path() string { return u.path }

func (u *boltUnit) Get(key int64) ([]byte, error) {
	var out []byte
	err := u.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return ErrKeyNotFound
		}
		v := b.Get(decimalKey(key))
		if v == nil {
			return ErrKeyNotFound
		}
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

func (u *boltUnit) Set(key int64, value []byte) error {
	if !u.writable {
		return ErrReadOnly
	}
	return u.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(decimalKey(key), value)
	})
}

func (u *boltUnit) Keys() ([]int64, error) {
	var keys []int64
	err := u.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			key, err := parseDecimalKey(k)
			if err != nil {
				return err
			}
			keys = append(keys, key)
			return nil
		})
	})
	return keys, err
}

func (u *boltUnit) Items(fn func(key int64, value []byte) error) error {
	return u.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			key, err := parseDecimalKey(k)
			if err != nil {
				return err
			}
			return fn(key, append([]byte{}, v...))
		})
	})
}

func (u *boltUnit) Close() error {
	if u.db == nil {
		return nil
	}
	db := u.db
	u.db = nil
	if u.writable {
		if err := db.Sync(); err != nil {
			db.Close()
			return fmt.Errorf("sync %s: %w", u.path, err)
		}
	}
	return db.Close()
}
