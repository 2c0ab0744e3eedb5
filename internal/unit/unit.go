// Package unit implements storage units: the physical shards a store is made of.
//
// A unit holds a bounded, contiguous range of records in one file or
// directory. Four backends are available, selected by a stable name:
//
//   - bolt:   embedded ordered map (bbolt), one file per unit, decimal-string keys
//   - json:   one JSON document per unit, loaded on open, rewritten on close
//   - dir:    directory per unit, one plain file per key
//   - badger: sorted LSM tree (badger) per unit, numerically ordered iteration
//
// Units are opened through Open, which runs the shared open state machine:
// missing directories are created for writers, lock contention is retried in
// blocking modes (R, W), and an undeterminable file format is retried once
// before it is reported as corruption.
package unit

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/freeeve/treekv/internal/metrics"
)

var (
	// ErrUnitNotFound is returned when a unit opened for reading does not exist.
	ErrUnitNotFound = errors.New("unit: not found")

	// ErrUnitLocked is returned when another process (or handle) holds the unit.
	ErrUnitLocked = errors.New("unit: locked")

	// ErrCorruptUnit is returned when a unit's format cannot be determined after a retry.
	ErrCorruptUnit = errors.New("unit: corrupt")

	// ErrKeyNotFound is returned by Get for a key absent from an existing unit.
	ErrKeyNotFound = errors.New("unit: key not found")

	// ErrReadOnly is returned by Set on a unit opened for reading.
	ErrReadOnly = errors.New("unit: opened read-only")

	// ErrBinaryValue is returned when a text-only unit is given non-UTF-8 bytes.
	ErrBinaryValue = errors.New("unit: value is not valid UTF-8 text")

	// ErrUnitClosed is returned by operations on a closed unit.
	ErrUnitClosed = errors.New("unit: closed")

	// ErrInvalidMode is returned for an open mode outside r, w, R, W.
	ErrInvalidMode = errors.New("unit: invalid mode")

	// ErrUnknownBackend is returned for a backend name missing from the lookup table.
	ErrUnknownBackend = errors.New("unit: unknown backend")

	// errMissingDir reports that the unit's parent directory does not exist.
	errMissingDir = errors.New("unit directory missing")

	// errUndetermined reports a file whose format could not be recognized,
	// either corrupt or still being created by another process.
	errUndetermined = errors.New("unit format undetermined")
)

// Mode selects how a unit is opened.
type Mode byte

const (
	Read      Mode = 'r' // read, fail if absent or locked
	Write     Mode = 'w' // write, create if missing, fail fast if locked
	ReadWait  Mode = 'R' // read, wait while locked
	WriteWait Mode = 'W' // write, create if missing, wait while locked
)

// ParseMode parses a single-letter mode.
func ParseMode(s string) (Mode, error) {
	if len(s) == 1 {
		if m := Mode(s[0]); m.valid() {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) String() string { return string(rune(m)) }

// Writable reports whether the mode opens units for writing.
func (m Mode) Writable() bool { return m == Write || m == WriteWait }

// Blocking reports whether the mode waits on lock contention.
func (m Mode) Blocking() bool { return m == ReadWait || m == WriteWait }

func (m Mode) valid() bool {
	switch m {
	case Read, Write, ReadWait, WriteWait:
		return true
	}
	return false
}

// Unit is an open storage unit.
type Unit interface {
	// Path is the unit's file or directory path.
	Path() string
	// Get returns the stored bytes for key, or ErrKeyNotFound.
	Get(key int64) ([]byte, error)
	// Set stores value under key.
	Set(key int64, value []byte) error
	// Keys lists every key in the unit.
	Keys() ([]int64, error)
	// Items calls fn for every record in backend iteration order. Iteration
	// stops at the first error fn returns.
	Items(fn func(key int64, value []byte) error) error
	// Close flushes and releases the unit. Closing twice is a no-op.
	Close() error
}

// Backend is one physical unit format.
type Backend interface {
	// Name is the stable identifier persisted in store configs.
	Name() string
	// Ext is appended to unit paths.
	Ext() string
	// TextOnly reports whether stored values must be UTF-8 text.
	TextOnly() bool
	// Paths discovers every unit under root, in lexical order.
	Paths(root string) ([]string, error)

	// open makes a single open attempt; Open wraps it with retries.
	open(path string, mode Mode, opts Options) (Unit, error)
}

// Options configures unit opens.
type Options struct {
	Retry   RetryPolicy
	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

var (
	Bolt   Backend = boltBackend{}
	JSON   Backend = jsonBackend{}
	Dir    Backend = dirBackend{}
	Badger Backend = badgerBackend{}
)

var backends = map[string]Backend{
	Bolt.Name():   Bolt,
	JSON.Name():   JSON,
	Dir.Name():    Dir,
	Badger.Name(): Badger,
}

// Lookup resolves a backend by name.
func Lookup(name string) (Backend, error) {
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Names lists the available backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
