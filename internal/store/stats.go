package store

import (
	"context"
	"fmt"

	"github.com/freeeve/treekv/internal/unit"
)

// Stats summarizes a store's contents.
type Stats struct {
	Backend   string `json:"backend"`
	Converter string `json:"converter"`
	Router    string `json:"router"`
	Units     int    `json:"units"`
	Records   int64  `json:"records"`
}

// Stats counts units and records. Each unit is opened in read-wait mode.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Backend: s.cfg.Backend, Converter: s.cfg.Converter, Router: s.cfg.Router}
	paths, err := s.backend.Paths(s.root)
	if err != nil {
		return st, err
	}
	for _, p := range paths {
		u, err := unit.Open(ctx, s.backend, p, unit.ReadWait, s.unitOptions())
		if err != nil {
			return st, err
		}
		keys, err := u.Keys()
		cerr := u.Close()
		if err != nil {
			return st, fmt.Errorf("count %s: %w", p, err)
		}
		if cerr != nil {
			return st, fmt.Errorf("close %s: %w", p, cerr)
		}
		st.Units++
		st.Records += int64(len(keys))
	}
	return st, nil
}
