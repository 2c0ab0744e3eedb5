package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/freeeve/treekv/internal/convert"
	"github.com/freeeve/treekv/internal/router"
)

const (
	// ConfigFile is the store config under the root.
	ConfigFile = ".treekv.json"

	// LegacyConfigFile is the older, range-only config format.
	LegacyConfigFile = ".dbmdb.json"

	DefaultBackend = "bolt"
)

// DefaultParams is the range layout used when a config has no params.
var DefaultParams = router.Params{UnitSize: 1000, SubfolderSize: 1000, FirstKey: 0}

// Config selects a store's backend, converter and router. It is persisted
// as JSON at <root>/.treekv.json.
type Config struct {
	Backend   string          `json:"backend"`
	Converter string          `json:"converter"`
	Router    string          `json:"router"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// withDefaults fills blank fields.
func (c Config) withDefaults() (Config, error) {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Converter == "" {
		c.Converter = convert.Default
	}
	if c.Router == "" {
		c.Router = router.KindRange
	}
	if len(c.Params) == 0 && c.Router == router.KindRange {
		raw, err := json.Marshal(DefaultParams)
		if err != nil {
			return c, err
		}
		c.Params = raw
	}
	return c, nil
}

// RangeConfig is a Config for a range router with the given layout.
func RangeConfig(backend, converter string, p router.Params) Config {
	raw, _ := json.Marshal(p)
	return Config{Backend: backend, Converter: converter, Router: router.KindRange, Params: raw}
}

// configFormat is one on-disk config layout.
type configFormat struct {
	file  string
	parse func([]byte) (Config, error)
}

// configFormats are tried in order by Load.
var configFormats = []configFormat{
	{file: ConfigFile, parse: parseConfig},
	{file: LegacyConfigFile, parse: parseLegacyConfig},
}

func parseConfig(raw []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// legacyConfig predates pluggable backends: bolt units, the default
// converter and a range layout. Version 0 stores started at key 1.
type legacyConfig struct {
	Version       *int  `json:"version"`
	DBMSize       int64 `json:"dbm_size"`
	SubfolderSize int64 `json:"subfolder_size"`
}

func parseLegacyConfig(raw []byte) (Config, error) {
	var lc legacyConfig
	if err := json.Unmarshal(raw, &lc); err != nil {
		return Config{}, err
	}
	if lc.Version == nil {
		return Config{}, errors.New("legacy config has no version")
	}
	var first int64
	switch *lc.Version {
	case 0:
		first = 1
	case 1:
		first = 0
	default:
		return Config{}, fmt.Errorf("unsupported legacy config version %d", *lc.Version)
	}
	p := router.Params{UnitSize: lc.DBMSize, SubfolderSize: lc.SubfolderSize, FirstKey: first}
	return RangeConfig(DefaultBackend, convert.Default, p), nil
}

// readConfig tries each format in order. It returns ErrNotStore when none
// is present.
func readConfig(root string) (Config, error) {
	for _, f := range configFormats {
		raw, err := os.ReadFile(filepath.Join(root, f.file))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, err
		}
		cfg, err := f.parse(raw)
		if err != nil {
			return Config{}, configError(fmt.Errorf("parse %s: %w", f.file, err))
		}
		return cfg, nil
	}
	return Config{}, fmt.Errorf("%w: no config in %s", ErrNotStore, root)
}

// writeConfig saves cfg with a temp file and rename so a reader never sees
// a partial config.
func writeConfig(root string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(root, ConfigFile)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}
