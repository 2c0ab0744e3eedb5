package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/freeeve/treekv/internal/convert"
	"github.com/freeeve/treekv/internal/router"
	"github.com/freeeve/treekv/internal/store"
	"github.com/freeeve/treekv/internal/unit"
)

func layoutFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "unit backend: " + strings.Join(unit.Names(), ", "),
		},
		&cli.StringFlag{
			Name:  "converter",
			Usage: "value converter, default " + convert.Default,
		},
		&cli.StringFlag{
			Name:  "router",
			Usage: "key router: " + strings.Join(router.Kinds(), ", "),
		},
		&cli.Int64Flag{Name: "unit-size", Usage: "range router: keys per unit"},
		&cli.Int64Flag{Name: "subfolder-size", Usage: "range router: units per subfolder, 0 = flat"},
		&cli.Int64Flag{Name: "first-key", Usage: "range router: lowest key of unit 0"},
		&cli.StringFlag{
			Name:  "params",
			Usage: `raw router params as JSON, e.g. '{"digits":6,"subfolder_digits":[2]}'`,
		},
	}
}

// layoutConfig builds a store config from the layout flags. With inherit
// set, only flags given on the command line are used and everything else is
// left blank; otherwise settings fill the gaps.
func layoutConfig(c *cli.Context, s Settings, inherit bool) (store.Config, error) {
	pick := func(flag, fallback string) string {
		if v := c.String(flag); v != "" {
			return v
		}
		if inherit {
			return ""
		}
		return fallback
	}
	cfg := store.Config{
		Backend:   pick("backend", s.Backend),
		Converter: pick("converter", s.Converter),
		Router:    pick("router", s.Router),
	}

	if c.IsSet("params") {
		raw := json.RawMessage(c.String("params"))
		if !json.Valid(raw) {
			return cfg, fmt.Errorf("%w: --params is not valid JSON", store.ErrConfig)
		}
		cfg.Params = raw
		return cfg, nil
	}

	sized := c.IsSet("unit-size") || c.IsSet("subfolder-size") || c.IsSet("first-key")
	if inherit && !sized {
		return cfg, nil
	}
	if cfg.Router == "" {
		cfg.Router = router.KindRange
	}
	if cfg.Router != router.KindRange {
		if sized {
			return cfg, fmt.Errorf("%w: size flags need the %s router, use --params for %s",
				store.ErrConfig, router.KindRange, cfg.Router)
		}
		return cfg, nil
	}
	p := router.Params{UnitSize: s.UnitSize, SubfolderSize: s.SubfolderSize, FirstKey: s.FirstKey}
	if c.IsSet("unit-size") {
		p.UnitSize = c.Int64("unit-size")
	}
	if c.IsSet("subfolder-size") {
		p.SubfolderSize = c.Int64("subfolder-size")
	}
	if c.IsSet("first-key") {
		p.FirstKey = c.Int64("first-key")
	}
	return store.RangeConfig(cfg.Backend, cfg.Converter, p), nil
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create an empty store",
		ArgsUsage: "<root>",
		Flags:     layoutFlags(),
		Action:    runCreate,
	}
}

func runCreate(c *cli.Context) error {
	e := getEnv(c)
	root, err := arg(c, 0, "root")
	if err != nil {
		return err
	}
	cfg, err := layoutConfig(c, e.settings, false)
	if err != nil {
		return err
	}
	s, err := store.Create(root, cfg, e.storeOptions())
	if err != nil {
		return err
	}
	return printJSON(c, s.Config())
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Count the units and records of a store",
		ArgsUsage: "<root>",
		Action:    runStats,
	}
}

func runStats(c *cli.Context) error {
	e := getEnv(c)
	root, err := arg(c, 0, "root")
	if err != nil {
		return err
	}
	s, err := store.Load(root, e.storeOptions())
	if err != nil {
		return err
	}
	st, err := s.Stats(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, st)
}

func reformatCommand() *cli.Command {
	return &cli.Command{
		Name:      "reformat",
		Usage:     "Copy a store into a new store with a different layout",
		ArgsUsage: "<src-root> <dst-root>",
		Description: "Layout flags that are not given are inherited from the source store. " +
			"Router params are inherited only when the router is.",
		Flags:  layoutFlags(),
		Action: runReformat,
	}
}

func runReformat(c *cli.Context) error {
	e := getEnv(c)
	srcRoot, err := arg(c, 0, "src-root")
	if err != nil {
		return err
	}
	dstRoot, err := arg(c, 1, "dst-root")
	if err != nil {
		return err
	}
	cfg, err := layoutConfig(c, e.settings, true)
	if err != nil {
		return err
	}
	src, err := store.Load(srcRoot, e.storeOptions())
	if err != nil {
		return err
	}
	dst, err := src.ReformatInto(c.Context, dstRoot, cfg)
	if err != nil {
		return err
	}
	st, err := dst.Stats(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, st)
}
