package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/freeeve/treekv/internal/ingest"
	"github.com/freeeve/treekv/internal/store"
	"github.com/freeeve/treekv/internal/unit"
)

// record is the JSON line printed by get and scan.
type record struct {
	Key   int64 `json:"key"`
	Value any   `json:"value"`
}

func modeFlag(def unit.Mode) cli.Flag {
	return &cli.StringFlag{
		Name:  "mode",
		Usage: "r/w fail fast on a locked unit, R/W wait for it",
		Value: def.String(),
	}
}

func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Store a JSON value under a key",
		ArgsUsage: "<root> <key> <json-value>",
		Flags:     []cli.Flag{modeFlag(unit.WriteWait)},
		Action:    runPut,
	}
}

func runPut(c *cli.Context) error {
	e := getEnv(c)
	root, err := arg(c, 0, "root")
	if err != nil {
		return err
	}
	keyArg, err := arg(c, 1, "key")
	if err != nil {
		return err
	}
	raw, err := arg(c, 2, "json-value")
	if err != nil {
		return err
	}
	key, err := parseKey(keyArg)
	if err != nil {
		return err
	}
	value, err := decodeValue(raw)
	if err != nil {
		return err
	}
	mode, err := unit.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	s, err := store.Load(root, e.storeOptions())
	if err != nil {
		return err
	}
	w, err := s.Writer(mode)
	if err != nil {
		return err
	}
	if err := w.Put(c.Context, key, value); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// decodeValue parses one JSON value, keeping numbers exact.
func decodeValue(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON value: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON value: trailing data")
	}
	return v, nil
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the records stored under the given keys",
		ArgsUsage: "<root> <key>...",
		Flags: []cli.Flag{
			modeFlag(unit.Read),
			&cli.IntFlag{
				Name:  "workers",
				Usage: "fetch units with this many parallel readers",
				Value: 1,
			},
		},
		Action: runGet,
	}
}

func runGet(c *cli.Context) error {
	e := getEnv(c)
	root, err := arg(c, 0, "root")
	if err != nil {
		return err
	}
	if _, err := arg(c, 1, "key"); err != nil {
		return err
	}
	keys := make([]int64, 0, c.NArg()-1)
	for _, a := range c.Args().Slice()[1:] {
		k, err := parseKey(a)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	mode, err := unit.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	s, err := store.Load(root, e.storeOptions())
	if err != nil {
		return err
	}
	r, err := s.Reader(mode)
	if err != nil {
		return err
	}
	defer r.Close()

	var found map[int64]any
	if workers := c.Int("workers"); workers > 1 {
		found, err = r.GetManyParallel(c.Context, keys, workers)
	} else {
		found, err = r.GetMany(c.Context, keys)
	}
	if err != nil {
		return err
	}

	missing := 0
	for _, k := range keys {
		v, ok := found[k]
		if !ok {
			missing++
			e.log.Debug().Int64("key", k).Msg("key not found")
			continue
		}
		if err := printJSON(c, record{Key: k, Value: v}); err != nil {
			return err
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d keys: %w", missing, len(keys), unit.ErrKeyNotFound)
	}
	return nil
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Print every record, one unit at a time",
		ArgsUsage: "<root>",
		Flags: []cli.Flag{
			modeFlag(unit.ReadWait),
			&cli.BoolFlag{Name: "keys-only", Usage: "print keys without decoding values"},
		},
		Action: runScan,
	}
}

func runScan(c *cli.Context) error {
	e := getEnv(c)
	root, err := arg(c, 0, "root")
	if err != nil {
		return err
	}
	mode, err := unit.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	s, err := store.Load(root, e.storeOptions())
	if err != nil {
		return err
	}
	r, err := s.Reader(mode)
	if err != nil {
		return err
	}
	defer r.Close()

	if c.Bool("keys-only") {
		return r.ScanRaw(c.Context, func(k int64, _ []byte) error {
			_, err := fmt.Fprintln(c.App.Writer, k)
			return err
		})
	}
	return r.Scan(c.Context, func(k int64, v any) error {
		return printJSON(c, record{Key: k, Value: v})
	})
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Load .jsonl and .jsonl.zst record files from a directory",
		ArgsUsage: "<root> <watch-dir>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Usage: "files processed in parallel"},
			&cli.Float64Flag{Name: "rate", Usage: "records per second across all files, 0 = unlimited"},
			&cli.StringFlag{Name: "processed-dir", Usage: "where finished files go, default <watch-dir>/processed"},
			&cli.BoolFlag{Name: "watch", Usage: "keep polling until interrupted"},
			&cli.DurationFlag{Name: "poll-interval", Usage: "polling period with --watch"},
		},
		Action: runImport,
	}
}

func runImport(c *cli.Context) error {
	e := getEnv(c)
	root, err := arg(c, 0, "root")
	if err != nil {
		return err
	}
	watchDir, err := arg(c, 1, "watch-dir")
	if err != nil {
		return err
	}

	cfg := ingest.Config{
		WatchDir:         watchDir,
		ProcessedDir:     c.String("processed-dir"),
		Workers:          e.settings.Workers,
		RecordsPerSecond: e.settings.RecordsPerSecond,
		PollInterval:     e.settings.PollInterval,
		Logger:           e.log,
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("rate") {
		cfg.RecordsPerSecond = c.Float64("rate")
	}
	if c.IsSet("poll-interval") {
		cfg.PollInterval = c.Duration("poll-interval")
	}

	s, err := store.Load(root, e.storeOptions())
	if err != nil {
		return err
	}
	w, err := ingest.NewWorker(cfg, s)
	if err != nil {
		return err
	}
	if c.Bool("watch") {
		if err := w.Run(c.Context); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
	res, err := w.ProcessOnce(c.Context)
	if err != nil {
		return err
	}
	if err := printJSON(c, res); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("import: %d files failed", res.Failed)
	}
	return nil
}
