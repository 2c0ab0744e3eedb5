// Package convert turns record values into stored bytes and back.
//
// A converter is a named pipeline of stages. Every pipeline except raw starts
// with a json stage (value to bytes), optionally followed by compression and
// base64 text encoding. Dump applies the stages in order, Load undoes them in
// reverse. Pipeline names are persisted in store configs and must stay stable.
package convert

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/freeeve/treekv/internal/metrics"
)

// Default is the pipeline used when a store config leaves the converter blank.
const Default = "compressed-json"

var (
	// ErrUnknownConverter is returned for a pipeline name missing from the table.
	ErrUnknownConverter = errors.New("convert: unknown converter")

	// ErrUnsupportedValue is returned when the raw pipeline is given something
	// other than []byte or string.
	ErrUnsupportedValue = errors.New("convert: raw converter needs []byte or string")
)

var pipelines = map[string][]string{
	"compressed-json":        {stageJSON, stageGzip},
	"base64-compressed-json": {stageJSON, stageGzip, stageBase64},
	"zstd-json":              {stageJSON, stageZstd},
	"base64-zstd-json":       {stageJSON, stageZstd, stageBase64},
	"json":                   {stageJSON},
	"raw":                    {},
}

// Names lists the available pipelines in sorted order.
func Names() []string {
	names := make([]string, 0, len(pipelines))
	for n := range pipelines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Options configures a Converter.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

// Converter is a named pipeline. It is safe for concurrent use.
type Converter struct {
	name   string
	json   bool
	stages []stage // byte stages after json
	opts   Options
}

// New builds the pipeline registered under name.
func New(name string, opts Options) (*Converter, error) {
	names, ok := pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConverter, name)
	}
	c := &Converter{name: name, opts: opts}
	for i, n := range names {
		if n == stageJSON {
			if i != 0 {
				return nil, fmt.Errorf("convert: %s: json must be the first stage", name)
			}
			c.json = true
			continue
		}
		c.stages = append(c.stages, byteStages[n])
	}
	return c, nil
}

// Name is the pipeline's persisted identifier.
func (c *Converter) Name() string { return c.name }

// Stages lists the stage names in Dump order.
func (c *Converter) Stages() []string {
	var out []string
	if c.json {
		out = append(out, stageJSON)
	}
	for _, s := range c.stages {
		out = append(out, s.name)
	}
	return out
}

// Text reports whether Dump output is always valid UTF-8 text, as text-only
// backends require.
func (c *Converter) Text() bool {
	if len(c.stages) == 0 {
		return c.json
	}
	return c.stages[len(c.stages)-1].text
}

// Dump encodes v into stored bytes.
func (c *Converter) Dump(v any) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if c.json {
		b, err = dumpJSON(v)
	} else {
		b, err = dumpRaw(v)
	}
	if err != nil {
		return nil, err
	}
	return c.dumpFrom(0, b)
}

// Load decodes stored bytes. JSON numbers come back as json.Number, so
// Load(Dump(42)) is json.Number("42") rather than int 42; values are equal to
// what was dumped after a JSON round trip, not as Go values.
func (c *Converter) Load(b []byte) (any, error) {
	b, err := c.loadTo(0, b)
	if err != nil {
		return nil, err
	}
	if !c.json {
		return b, nil
	}
	return c.loadJSON(b)
}

func (c *Converter) dumpFrom(i int, b []byte) ([]byte, error) {
	var err error
	for ; i < len(c.stages); i++ {
		if b, err = c.stages[i].dump(b); err != nil {
			return nil, fmt.Errorf("convert %s: %s: %w", c.name, c.stages[i].name, err)
		}
	}
	return b, nil
}

func (c *Converter) loadTo(i int, b []byte) ([]byte, error) {
	var err error
	for j := len(c.stages) - 1; j >= i; j-- {
		if b, err = c.stages[j].load(b); err != nil {
			return nil, fmt.Errorf("convert %s: un%s: %w", c.name, c.stages[j].name, err)
		}
	}
	return b, nil
}

func dumpRaw(v any) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return append([]byte{}, v...), nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("%w, got %T", ErrUnsupportedValue, v)
}

// Transcoder rewrites stored bytes of one pipeline as stored bytes of another.
type Transcoder struct {
	src, dst *Converter
	full     bool // value-level round trip through Load and Dump
	prefix   int  // shared byte stages left untouched
}

// NewTranscoder pairs src and dst. Stages the two pipelines share as a
// leading prefix are never undone, so identical pipelines copy bytes as-is.
func NewTranscoder(src, dst *Converter) *Transcoder {
	t := &Transcoder{src: src, dst: dst}
	if src.json != dst.json {
		t.full = true
		return t
	}
	for t.prefix < len(src.stages) && t.prefix < len(dst.stages) &&
		src.stages[t.prefix].name == dst.stages[t.prefix].name {
		t.prefix++
	}
	return t
}

// Transcode converts one stored value.
func (t *Transcoder) Transcode(b []byte) ([]byte, error) {
	if t.full {
		v, err := t.src.Load(b)
		if err != nil {
			return nil, err
		}
		return t.dst.Dump(v)
	}
	b, err := t.src.loadTo(t.prefix, b)
	if err != nil {
		return nil, err
	}
	return t.dst.dumpFrom(t.prefix, b)
}
