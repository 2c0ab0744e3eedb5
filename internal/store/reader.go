package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/freeeve/treekv/internal/unit"
)

// Reader fetches and scans records.
type Reader struct {
	cursor
}

// GetRaw returns the stored bytes for key. A missing unit yields
// unit.ErrUnitNotFound and a missing key in an existing unit
// unit.ErrKeyNotFound, without waiting in either read mode.
func (r *Reader) GetRaw(ctx context.Context, key int64) ([]byte, error) {
	if err := r.use(ctx, r.s.router.Path(key)); err != nil {
		return nil, err
	}
	b, err := r.u.Get(key)
	if err != nil {
		return nil, fmt.Errorf("get %d: %w", key, err)
	}
	r.s.opts.Metrics.RecordRead(1)
	return b, nil
}

// Get returns the decoded value for key.
func (r *Reader) Get(ctx context.Context, key int64) (any, error) {
	b, err := r.GetRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	return r.s.conv.Load(b)
}

// GetOr returns def when key or its unit is absent.
func (r *Reader) GetOr(ctx context.Context, key int64, def any) (any, error) {
	v, err := r.Get(ctx, key)
	if isMissing(err) {
		return def, nil
	}
	return v, err
}

func isMissing(err error) bool {
	return errors.Is(err, unit.ErrUnitNotFound) || errors.Is(err, unit.ErrKeyNotFound)
}

// unitKeys is the set of requested keys that live in one unit.
type unitKeys struct {
	path string
	keys []int64
}

// groupByUnit partitions keys by unit path, in path order.
func (r *Reader) groupByUnit(keys []int64) []unitKeys {
	byPath := make(map[string][]int64)
	for _, k := range keys {
		p := r.s.router.Path(k)
		byPath[p] = append(byPath[p], k)
	}
	groups := make([]unitKeys, 0, len(byPath))
	for p, ks := range byPath {
		groups = append(groups, unitKeys{path: p, keys: ks})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].path < groups[j].path })
	return groups
}

// GetMany fetches keys with one open per unit. Keys that are absent, or
// whose unit is absent, are left out of the result; use GetManyOr to get an
// entry for every requested key.
func (r *Reader) GetMany(ctx context.Context, keys []int64) (map[int64]any, error) {
	if r.closed {
		return nil, ErrCursorClosed
	}
	out := make(map[int64]any, len(keys))
	if err := r.getGroups(ctx, r.groupByUnit(keys), out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetManyOr is GetMany with def stored for every key that is absent.
func (r *Reader) GetManyOr(ctx context.Context, keys []int64, def any) (map[int64]any, error) {
	out, err := r.GetMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			out[k] = def
		}
	}
	return out, nil
}

func (r *Reader) getGroups(ctx context.Context, groups []unitKeys, out map[int64]any) error {
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, k := range g.keys {
			v, err := r.Get(ctx, k)
			if errors.Is(err, unit.ErrUnitNotFound) {
				break
			}
			if errors.Is(err, unit.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[k] = v
		}
	}
	return nil
}

// GetManyParallel is GetMany spread over exactly workers goroutines, each
// with its own reader. Units are dealt to workers round-robin, so no unit is
// opened by two workers.
func (r *Reader) GetManyParallel(ctx context.Context, keys []int64, workers int) (map[int64]any, error) {
	if r.closed {
		return nil, ErrCursorClosed
	}
	if workers < 1 {
		return nil, fmt.Errorf("store: workers must be at least 1, got %d", workers)
	}
	buckets := make([][]unitKeys, workers)
	for i, g := range r.groupByUnit(keys) {
		buckets[i%workers] = append(buckets[i%workers], g)
	}

	results := make([]map[int64]any, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range buckets {
		g.Go(func() error {
			wr := &Reader{cursor: r.s.newCursor(r.mode)}
			defer wr.Close()
			results[i] = make(map[int64]any)
			return wr.getGroups(gctx, buckets[i], results[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int64]any, len(keys))
	for _, m := range results {
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

// ScanRaw calls fn with the stored bytes of every record, one unit at a
// time in discovery order. Iteration stops at the first error.
func (r *Reader) ScanRaw(ctx context.Context, fn func(key int64, raw []byte) error) error {
	if r.closed {
		return ErrCursorClosed
	}
	paths, err := r.s.backend.Paths(r.s.root)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.use(ctx, p); err != nil {
			return err
		}
		n := 0
		err := r.u.Items(func(k int64, b []byte) error {
			n++
			return fn(k, b)
		})
		r.s.opts.Metrics.RecordRead(n)
		if err != nil {
			return err
		}
	}
	return nil
}

// Scan calls fn with every decoded record.
func (r *Reader) Scan(ctx context.Context, fn func(key int64, value any) error) error {
	return r.ScanRaw(ctx, func(k int64, b []byte) error {
		v, err := r.s.conv.Load(b)
		if err != nil {
			return fmt.Errorf("decode %d: %w", k, err)
		}
		return fn(k, v)
	})
}
