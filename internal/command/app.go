// Package command defines the treekv command-line interface.
//
// Settings come from an optional YAML file, then TREEKV_* environment
// variables, then global flags, each overriding the last.
package command

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/freeeve/treekv/internal/logx"
	"github.com/freeeve/treekv/internal/metrics"
	"github.com/freeeve/treekv/internal/store"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const envMetadataKey = "env"

// env is the per-invocation state built by the Before hook.
type env struct {
	settings Settings
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

func (e *env) storeOptions() store.Options {
	return store.Options{
		Retry:   e.settings.retryPolicy(),
		Logger:  e.log,
		Metrics: e.metrics,
	}
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "treekv",
		Usage:   "integer-keyed store sharded across many small unit files",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			createCommand(),
			putCommand(),
			getCommand(),
			scanCommand(),
			reformatCommand(),
			importCommand(),
			statsCommand(),
		},
		Before: setup,
		After:  report,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML settings file",
			EnvVars: []string{EnvPrefix + "CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "trace, debug, info, warn or error",
		},
		&cli.DurationFlag{
			Name:  "retry-interval",
			Usage: "wait between attempts on a locked unit",
		},
		&cli.IntFlag{
			Name:  "retry-attempts",
			Usage: "give up on a locked unit after this many attempts, 0 = never",
		},
		&cli.BoolFlag{
			Name:  "metrics",
			Usage: "print counters gathered during the command to stderr",
		},
	}
}

// setup loads settings, applies global flag overrides and builds the logger
// and metrics registry.
func setup(c *cli.Context) error {
	s, err := LoadSettings(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		s.LogLevel = c.String("log-level")
	}
	if c.IsSet("retry-interval") {
		s.RetryInterval = c.Duration("retry-interval")
	}
	if c.IsSet("retry-attempts") {
		s.RetryMaxAttempts = c.Int("retry-attempts")
	}

	level, err := logx.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	c.App.Metadata[envMetadataKey] = &env{
		settings: s,
		log:      logx.NewLoggerTo(c.App.ErrWriter, level),
		registry: reg,
		metrics:  metrics.New(reg),
	}
	return nil
}

// report prints gathered counters when --metrics is set.
func report(c *cli.Context) error {
	e := getEnv(c)
	if e == nil || !c.Bool("metrics") {
		return nil
	}
	totals, err := metrics.Totals(e.registry)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.App.ErrWriter, "%s %g\n", name, totals[name])
	}
	return nil
}

func getEnv(c *cli.Context) *env {
	e, _ := c.App.Metadata[envMetadataKey].(*env)
	return e
}

// printJSON writes v as one line of JSON to the app's writer.
func printJSON(c *cli.Context, v any) error {
	return json.NewEncoder(c.App.Writer).Encode(v)
}

// arg returns the i-th positional argument or a usage error naming it.
func arg(c *cli.Context, i int, name string) (string, error) {
	if c.NArg() <= i || c.Args().Get(i) == "" {
		return "", fmt.Errorf("%s: missing <%s> argument", c.Command.Name, name)
	}
	return c.Args().Get(i), nil
}

func parseKey(s string) (int64, error) {
	k, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return k, nil
}
