package store

import (
	"context"
	"fmt"
	"time"

	"github.com/freeeve/treekv/internal/convert"
	"github.com/freeeve/treekv/internal/unit"
)

// Reformat copies every record of s into dst, converting backend, layout
// and encoding on the way. Source units are read once each in read-wait
// mode; all writes go through one destination writer. The first failure
// aborts the run. Nothing is checkpointed: recover by reformatting again
// into an empty destination.
func (s *Store) Reformat(ctx context.Context, dst *Store) error {
	if dst.root == s.root {
		return configError(fmt.Errorf("reformat destination is the source %s", s.root))
	}
	start := time.Now()
	tc := convert.NewTranscoder(s.conv, dst.conv)

	r, err := s.Reader(unit.ReadWait)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := dst.Writer(unit.WriteWait)
	if err != nil {
		return err
	}
	defer w.Close()

	var n int64
	err = r.ScanRaw(ctx, func(k int64, b []byte) error {
		out, err := tc.Transcode(b)
		if err != nil {
			return fmt.Errorf("reformat key %d: %w", k, err)
		}
		if err := w.PutRaw(ctx, k, out); err != nil {
			return fmt.Errorf("reformat key %d: %w", k, err)
		}
		n++
		s.opts.Metrics.Reformatted()
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	s.opts.Logger.Info().
		Str("dst", dst.root).
		Int64("records", n).
		Dur("elapsed", time.Since(start)).
		Msg("reformat complete")
	return nil
}

// ReformatInto creates a store at root and reformats s into it. Blank cfg
// fields inherit from s; params are inherited only with the router.
func (s *Store) ReformatInto(ctx context.Context, root string, cfg Config) (*Store, error) {
	if cfg.Backend == "" {
		cfg.Backend = s.cfg.Backend
	}
	if cfg.Converter == "" {
		cfg.Converter = s.cfg.Converter
	}
	if cfg.Router == "" {
		cfg.Router = s.cfg.Router
		if len(cfg.Params) == 0 {
			cfg.Params = s.cfg.Params
		}
	}
	dst, err := Create(root, cfg, s.opts)
	if err != nil {
		return nil, err
	}
	if err := s.Reformat(ctx, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
