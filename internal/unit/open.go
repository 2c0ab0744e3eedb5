package unit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/freeeve/treekv/internal/metrics"
)

// Open opens the unit at path through the open state machine:
//
//   - directory missing: writers create it and retry, readers get ErrUnitNotFound
//   - locked: R and W wait per opts.Retry and retry, r and w get ErrUnitLocked
//   - format undetermined: R and W retry once, then ErrCorruptUnit
//
// Readers never wait for a missing unit to appear.
func Open(ctx context.Context, b Backend, path string, mode Mode, opts Options) (Unit, error) {
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	log := opts.Logger.With().Str("unit", path).Str("mode", mode.String()).Logger()

	var (
		createdDir   bool
		undetermined bool
		waits        int
	)
	for {
		u, err := b.open(path, mode, opts)
		if err == nil {
			opts.Metrics.UnitOpened(b.Name(), mode.String())
			log.Debug().Msg("unit opened")
			return &tracked{Unit: u, backend: b.Name(), opts: opts}, nil
		}

		switch {
		case errors.Is(err, errMissingDir):
			if !mode.Writable() {
				return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, path)
			}
			if createdDir {
				return nil, fmt.Errorf("open unit %s: %w", path, err)
			}
			// a concurrent creator is fine, MkdirAll tolerates existing directories
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create unit directory: %w", err)
			}
			createdDir = true
			opts.Metrics.Retried(metrics.ReasonMissingDir)
			log.Debug().Msg("created unit directory")

		case errors.Is(err, ErrUnitLocked):
			if !mode.Blocking() {
				return nil, err
			}
			waits++
			opts.Metrics.Retried(metrics.ReasonLocked)
			log.Debug().Int("attempt", waits).Msg("unit locked, waiting")
			if werr := opts.Retry.Wait(ctx, waits); werr != nil {
				return nil, fmt.Errorf("open unit %s: %w (last error: %v)", path, werr, err)
			}

		case errors.Is(err, errUndetermined):
			if !mode.Blocking() || undetermined {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorruptUnit, path, err)
			}
			undetermined = true
			opts.Metrics.Retried(metrics.ReasonUndetermined)
			log.Debug().Err(err).Msg("unit format undetermined, retrying once")
			if werr := opts.Retry.Wait(ctx, 1); werr != nil {
				return nil, fmt.Errorf("open unit %s: %w (last error: %v)", path, werr, err)
			}

		default:
			return nil, fmt.Errorf("open unit %s: %w", path, err)
		}
	}
}

// tracked records closes and rejects use after close.
type tracked struct {
	Unit
	backend string
	opts    Options
	closed  bool
}

func (t *tracked) Get(key int64) ([]byte, error) {
	if t.closed {
		return nil, ErrUnitClosed
	}
	return t.Unit.Get(key)
}

func (t *tracked) Set(key int64, value []byte) error {
	if t.closed {
		return ErrUnitClosed
	}
	return t.Unit.Set(key, value)
}

func (t *tracked) Keys() ([]int64, error) {
	if t.closed {
		return nil, ErrUnitClosed
	}
	return t.Unit.Keys()
}

func (t *tracked) Items(fn func(key int64, value []byte) error) error {
	if t.closed {
		return ErrUnitClosed
	}
	return t.Unit.Items(fn)
}

func (t *tracked) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.opts.Metrics.UnitClosed(t.backend)
	t.opts.Logger.Debug().Str("unit", t.Path()).Msg("unit closed")
	return t.Unit.Close()
}
