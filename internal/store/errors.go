package store

import (
	"errors"
	"fmt"

	"github.com/freeeve/treekv/internal/unit"
)

var (
	// ErrConfig wraps every configuration failure: unknown backend, converter
	// or router, an invalid layout, or an incompatible combination.
	ErrConfig = errors.New("store: invalid configuration")

	// ErrNotEmpty is returned by Create when the root already has content.
	ErrNotEmpty = errors.New("store: root is not empty")

	// ErrStoreNotExist is returned by Load when the root does not exist.
	ErrStoreNotExist = errors.New("store: root does not exist")

	// ErrNotStore is returned by Load when no known config format is present.
	ErrNotStore = errors.New("store: not a store")

	// ErrCursorClosed is returned by cursor operations after Close.
	ErrCursorClosed = errors.New("store: cursor closed")

	// ErrUnitInUse is returned when another writer in this process holds the
	// unit. It matches unit.ErrUnitLocked under errors.Is.
	ErrUnitInUse = fmt.Errorf("store: unit in use by another local writer: %w", unit.ErrUnitLocked)
)

func configError(err error) error {
	if errors.Is(err, ErrConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfig, err)
}
