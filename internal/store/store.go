// Package store binds a router, a unit backend and a converter into a
// sharded key-value store rooted at one directory.
//
// Records are read and written through cursors. A Writer holds at most one
// unit open at a time and is the only local writer on it, enforced by the
// Registry; other processes are kept out by the backend's file lock. Cursors
// are not safe for concurrent use; give each goroutine its own.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/freeeve/treekv/internal/convert"
	"github.com/freeeve/treekv/internal/metrics"
	"github.com/freeeve/treekv/internal/router"
	"github.com/freeeve/treekv/internal/unit"
)

// Options configures a Store's runtime behavior. None of it is persisted.
type Options struct {
	Registry *Registry        // default DefaultRegistry
	Retry    unit.RetryPolicy // lock contention pacing, shared by unit opens and registry waits
	Logger   zerolog.Logger
	Metrics  *metrics.Collector
}

// Store is an opened store. It is safe for concurrent use; the cursors it
// hands out are not.
type Store struct {
	root    string
	cfg     Config
	router  router.Router
	backend unit.Backend
	conv    *convert.Converter
	opts    Options
}

// New builds a store from cfg without touching the filesystem. Blank config
// fields take their defaults.
func New(root string, cfg Config, opts Options) (*Store, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, configError(err)
	}
	backend, err := unit.Lookup(cfg.Backend)
	if err != nil {
		return nil, configError(err)
	}
	conv, err := convert.New(cfg.Converter, convert.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	if err != nil {
		return nil, configError(err)
	}
	if backend.TextOnly() && !conv.Text() {
		return nil, configError(fmt.Errorf("backend %q stores text only, converter %q produces binary",
			cfg.Backend, cfg.Converter))
	}
	rt, err := router.New(cfg.Router, root, cfg.Params, backend.Ext())
	if err != nil {
		return nil, configError(err)
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry
	}
	opts.Logger = opts.Logger.With().Str("store", rt.Root()).Logger()
	return &Store{
		root:    rt.Root(),
		cfg:     cfg,
		router:  rt,
		backend: backend,
		conv:    conv,
		opts:    opts,
	}, nil
}

// Create initializes a new store at root, which must be absent or empty.
func Create(root string, cfg Config, opts Options) (*Store, error) {
	s, err := New(root, cfg, opts)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("inspect root: %w", err)
	case len(entries) > 0:
		return nil, fmt.Errorf("%w: %s", ErrNotEmpty, s.root)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	if err := writeConfig(s.root, s.cfg); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	s.opts.Logger.Info().
		Str("backend", s.cfg.Backend).
		Str("converter", s.cfg.Converter).
		Str("router", s.cfg.Router).
		Msg("created store")
	return s, nil
}

// Load opens an existing store, reconstructing the backend, router and
// converter recorded in its config.
func Load(root string, opts Options) (*Store, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotExist, root)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotStore, root)
	}
	cfg, err := readConfig(root)
	if err != nil {
		return nil, err
	}
	return New(root, cfg, opts)
}

// Root is the absolute store root.
func (s *Store) Root() string { return s.root }

// Config is the effective config, defaults included.
func (s *Store) Config() Config { return s.cfg }

func (s *Store) Router() router.Router         { return s.router }
func (s *Store) Backend() unit.Backend         { return s.backend }
func (s *Store) Converter() *convert.Converter { return s.conv }

// Reader returns a read cursor. mode must be unit.Read or unit.ReadWait.
func (s *Store) Reader(mode unit.Mode) (*Reader, error) {
	if mode != unit.Read && mode != unit.ReadWait {
		return nil, fmt.Errorf("%w: reader mode %q", unit.ErrInvalidMode, mode)
	}
	return &Reader{cursor: s.newCursor(mode)}, nil
}

// Writer returns a write cursor. mode must be unit.Write or unit.WriteWait.
func (s *Store) Writer(mode unit.Mode) (*Writer, error) {
	if mode != unit.Write && mode != unit.WriteWait {
		return nil, fmt.Errorf("%w: writer mode %q", unit.ErrInvalidMode, mode)
	}
	return &Writer{cursor: s.newCursor(mode)}, nil
}

func (s *Store) unitOptions() unit.Options {
	return unit.Options{Retry: s.opts.Retry, Logger: s.opts.Logger, Metrics: s.opts.Metrics}
}
