// Package ingest loads JSON Lines files dropped into a watch directory into
// a store.
//
// Each line is {"key": <int>, "value": <any JSON>}. Files ending in .jsonl
// or .jsonl.zst are picked up, written through a blocking writer per file,
// and moved to the processed directory once every record is stored.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/freeeve/treekv/internal/store"
	"github.com/freeeve/treekv/internal/unit"
)

// Config configures the ingest worker.
type Config struct {
	WatchDir         string         // Directory to watch for .jsonl files
	ProcessedDir     string         // Directory to move processed files to
	Workers          int            // Files processed in parallel, default 2
	RecordsPerSecond float64        // Write rate limit across all files, 0 = unlimited
	PollInterval     time.Duration  // How often to check for new files
	Logger           zerolog.Logger // Logger
}

// Worker watches a folder and ingests record files.
type Worker struct {
	cfg     Config
	st      *store.Store
	log     zerolog.Logger
	limiter *rate.Limiter
}

// Result summarizes one pass over the watch directory.
type Result struct {
	Processed int   `json:"processed"`
	Failed    int   `json:"failed"`
	Records   int64 `json:"records"`
}

// NewWorker creates a new ingest worker.
func NewWorker(cfg Config, st *store.Store) (*Worker, error) {
	if cfg.WatchDir == "" {
		return nil, errors.New("ingest: watch dir is required")
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	if err := os.MkdirAll(cfg.WatchDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ProcessedDir, 0755); err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RecordsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RecordsPerSecond), 1)
	}
	return &Worker{
		cfg:     cfg,
		st:      st,
		log:     cfg.Logger,
		limiter: limiter,
	}, nil
}

// Run polls the watch directory until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Int("workers", w.cfg.Workers).
		Msg("ingest worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				w.log.Warn().Err(err).Msg("process files failed")
			}
		}
	}
}

// ProcessOnce ingests every record file currently in the watch directory.
// A failed file stays in place and is retried on the next pass.
func (w *Worker) ProcessOnce(ctx context.Context) (Result, error) {
	var res Result
	if err := ctx.Err(); err != nil {
		return res, err
	}

	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return res, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isRecordFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return res, nil
	}
	sort.Strings(files)
	w.log.Info().Int("files", len(files)).Int("workers", w.cfg.Workers).Msg("found record files to ingest")

	type fileResult struct {
		name    string
		records int64
		err     error
	}
	results := make([]fileResult, len(files))

	var g errgroup.Group
	g.SetLimit(w.cfg.Workers)
	for i, name := range files {
		g.Go(func() error {
			n, err := w.processFile(ctx, filepath.Join(w.cfg.WatchDir, name))
			results[i] = fileResult{name: name, records: n, err: err}
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		res.Records += r.records
		if r.err != nil {
			w.log.Error().Err(r.err).Str("file", r.name).Msg("ingest failed")
			res.Failed++
			continue
		}
		srcPath := filepath.Join(w.cfg.WatchDir, r.name)
		destPath := filepath.Join(w.cfg.ProcessedDir, r.name)
		if err := os.Rename(srcPath, destPath); err != nil {
			w.log.Warn().Err(err).Str("file", r.name).Msg("move to processed failed")
		} else {
			w.log.Debug().Str("file", r.name).Msg("moved to processed")
		}
		res.Processed++
	}
	w.log.Info().Int("processed", res.Processed).Int("failed", res.Failed).Int64("records", res.Records).Msg("batch complete")
	return res, ctx.Err()
}

type record struct {
	Key   *int64 `json:"key"`
	Value any    `json:"value"`
}

// processFile stores every record of one file and returns the count written.
func (w *Worker) processFile(ctx context.Context, path string) (int64, error) {
	startTime := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return 0, err
		}
		defer zr.Close()
		r = zr
	}

	wr, err := w.st.Writer(unit.WriteWait)
	if err != nil {
		return 0, err
	}
	defer wr.Close()

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var n int64
	for {
		var rec record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return n, fmt.Errorf("%s: record %d: %w", filepath.Base(path), n+1, err)
		}
		if rec.Key == nil {
			return n, fmt.Errorf("%s: record %d: missing key", filepath.Base(path), n+1)
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return n, err
		}
		if err := wr.Put(ctx, *rec.Key, rec.Value); err != nil {
			return n, err
		}
		n++
	}
	if err := wr.Close(); err != nil {
		return n, err
	}

	elapsed := time.Since(startTime)
	w.log.Info().
		Str("file", filepath.Base(path)).
		Int64("records", n).
		Dur("elapsed", elapsed).
		Float64("records_per_sec", float64(n)/elapsed.Seconds()).
		Msg("file ingest complete")
	return n, nil
}

func isRecordFile(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".jsonl.zst")
}
