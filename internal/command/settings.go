package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/freeeve/treekv/internal/unit"
)

// EnvPrefix prefixes every settings environment variable.
const EnvPrefix = "TREEKV_"

// Settings are the CLI defaults that can come from a YAML file or the
// environment. Keys are flat, so TREEKV_RETRY_INTERVAL sets retry_interval.
type Settings struct {
	LogLevel         string        `koanf:"log_level"`
	RetryInterval    time.Duration `koanf:"retry_interval"`
	RetryMaxAttempts int           `koanf:"retry_max_attempts"`

	// Store layout used by create when the matching flag is not set.
	Backend       string `koanf:"backend"`
	Converter     string `koanf:"converter"`
	Router        string `koanf:"router"`
	UnitSize      int64  `koanf:"unit_size"`
	SubfolderSize int64  `koanf:"subfolder_size"`
	FirstKey      int64  `koanf:"first_key"`

	// Import.
	Workers          int           `koanf:"workers"`
	RecordsPerSecond float64       `koanf:"records_per_second"`
	PollInterval     time.Duration `koanf:"poll_interval"`
}

// DefaultSettings returns the settings used when nothing overrides them.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:      "info",
		RetryInterval: unit.DefaultRetryInterval,
		UnitSize:      1000,
		SubfolderSize: 1000,
		Workers:       2,
		PollInterval:  10 * time.Second,
	}
}

// LoadSettings layers the YAML file at path (if any) and then TREEKV_*
// environment variables over DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return s, fmt.Errorf("load settings file %s: %w", path, err)
		}
	}

	envKey := func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	}
	if err := k.Load(kenv.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return s, fmt.Errorf("load settings env: %w", err)
	}

	if err := k.Unmarshal("", &s); err != nil {
		return s, fmt.Errorf("unmarshal settings: %w", err)
	}
	return s, nil
}

// retryPolicy is the unit retry policy described by s.
func (s Settings) retryPolicy() unit.RetryPolicy {
	return unit.RetryPolicy{Interval: s.RetryInterval, MaxAttempts: s.RetryMaxAttempts}
}
