package store

import (
	"context"
	"fmt"

	"github.com/freeeve/treekv/internal/metrics"
	"github.com/freeeve/treekv/internal/unit"
)

// cursor holds at most one open unit and switches units as keys move
// between them.
type cursor struct {
	s      *Store
	mode   unit.Mode
	path   string
	u      unit.Unit
	closed bool
}

func (s *Store) newCursor(mode unit.Mode) cursor {
	return cursor{s: s, mode: mode}
}

// use makes path the open unit, reusing the handle when it already is.
func (c *cursor) use(ctx context.Context, path string) error {
	if c.closed {
		return ErrCursorClosed
	}
	if c.u != nil && c.path == path {
		return nil
	}
	if err := c.release(); err != nil {
		return err
	}
	if c.mode.Writable() {
		if err := c.reserve(ctx, path); err != nil {
			return err
		}
	}
	u, err := unit.Open(ctx, c.s.backend, path, c.mode, c.s.unitOptions())
	if err != nil {
		if c.mode.Writable() {
			c.s.opts.Registry.release(path)
		}
		return err
	}
	c.u, c.path = u, path
	return nil
}

// reserve claims path in the registry, waiting per the retry policy in
// blocking mode. No unit is open while it waits.
func (c *cursor) reserve(ctx context.Context, path string) error {
	reg := c.s.opts.Registry
	for attempt := 1; ; attempt++ {
		if reg.reserve(path) {
			return nil
		}
		if !c.mode.Blocking() {
			return fmt.Errorf("%w: %s", ErrUnitInUse, path)
		}
		c.s.opts.Metrics.Retried(metrics.ReasonInUse)
		c.s.opts.Logger.Debug().Str("unit", path).Int("attempt", attempt).Msg("unit in use locally, waiting")
		if err := c.s.opts.Retry.Wait(ctx, attempt); err != nil {
			return fmt.Errorf("wait for %s: %w", path, err)
		}
	}
}

// release closes the open unit and gives up its registry entry.
func (c *cursor) release() error {
	if c.u == nil {
		return nil
	}
	err := c.u.Close()
	if c.mode.Writable() {
		c.s.opts.Registry.release(c.path)
	}
	c.u, c.path = nil, ""
	if err != nil {
		return fmt.Errorf("close unit: %w", err)
	}
	return nil
}

// Close releases the open unit. Closing twice is a no-op.
func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}
