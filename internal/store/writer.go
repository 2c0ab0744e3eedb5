package store

import (
	"context"
	"fmt"
)

// Writer stores records. Consecutive keys in the same unit reuse one open
// handle, so writing in key order opens each unit once.
type Writer struct {
	cursor
}

// Put encodes value with the store's converter and stores it under key.
func (w *Writer) Put(ctx context.Context, key int64, value any) error {
	if w.closed {
		return ErrCursorClosed
	}
	b, err := w.s.conv.Dump(value)
	if err != nil {
		return fmt.Errorf("put %d: %w", key, err)
	}
	return w.PutRaw(ctx, key, b)
}

// PutRaw stores already-encoded bytes under key.
func (w *Writer) PutRaw(ctx context.Context, key int64, b []byte) error {
	if err := w.use(ctx, w.s.router.Path(key)); err != nil {
		return err
	}
	if err := w.u.Set(key, b); err != nil {
		return fmt.Errorf("put %d: %w", key, err)
	}
	w.s.opts.Metrics.RecordWritten()
	return nil
}
