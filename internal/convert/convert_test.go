package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/freeeve/treekv/internal/metrics"
)

func mustNew(t *testing.T, name string) *Converter {
	t.Helper()
	c, err := New(name, Options{})
	if err != nil {
		t.Fatalf("New(%q): %v", name, err)
	}
	return c
}

// canonical re-encodes a value so decoded json.Numbers compare equal to ints.
func canonical(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestJSONPipelinesRoundTrip(t *testing.T) {
	// numbers load as json.Number, everything else as the JSON-native Go type
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{"", ""},
		{"héllo wörld", "héllo wörld"},
		{42, json.Number("42")},
		{-1.5, json.Number("-1.5")},
		{
			[]any{1, "two", nil, []any{3}},
			[]any{json.Number("1"), "two", nil, []any{json.Number("3")}},
		},
		{
			map[string]any{"a": map[string]any{"b": []any{1, 2, map[string]any{"c": nil}}}},
			map[string]any{"a": map[string]any{"b": []any{json.Number("1"), json.Number("2"), map[string]any{"c": nil}}}},
		},
	}
	for _, name := range Names() {
		if name == "raw" {
			continue
		}
		c := mustNew(t, name)
		for _, tt := range tests {
			b, err := c.Dump(tt.in)
			if err != nil {
				t.Fatalf("%s: Dump(%v): %v", name, tt.in, err)
			}
			if c.Text() && !utf8.Valid(b) {
				t.Errorf("%s: text pipeline produced non-UTF-8 output", name)
			}
			got, err := c.Load(b)
			if err != nil {
				t.Fatalf("%s: Load: %v", name, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s: Load(Dump(%v)) = %#v, want %#v", name, tt.in, got, tt.want)
			}
			if canonical(t, got) != canonical(t, tt.in) {
				t.Errorf("%s: round trip %s, want %s", name, canonical(t, got), canonical(t, tt.in))
			}
		}
	}
}

func TestLoadUsesNumbers(t *testing.T) {
	c := mustNew(t, "json")
	got, err := c.Load([]byte(`{"n":12345678901234567890}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{"n": json.Number("12345678901234567890")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %#v, want %#v", got, want)
	}
}

func TestDumpIsDeterministic(t *testing.T) {
	v := map[string]any{"k": []any{"x", 1, 2, 3}}
	for _, name := range Names() {
		if name == "raw" {
			continue
		}
		c := mustNew(t, name)
		a, _ := c.Dump(v)
		b, _ := c.Dump(v)
		if !bytes.Equal(a, b) {
			t.Errorf("%s: Dump output differs between calls", name)
		}
	}
}

func TestRaw(t *testing.T) {
	c := mustNew(t, "raw")
	if c.Text() {
		t.Error("raw should not be text")
	}
	b, err := c.Dump("abc")
	if err != nil || string(b) != "abc" {
		t.Fatalf("Dump(string) = %q, %v", b, err)
	}
	got, err := c.Load([]byte{0, 1, 2})
	if err != nil || !bytes.Equal(got.([]byte), []byte{0, 1, 2}) {
		t.Fatalf("Load = %v, %v", got, err)
	}
	if _, err := c.Dump(12); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("Dump(int) err = %v, want ErrUnsupportedValue", err)
	}
}

func TestTextPipelines(t *testing.T) {
	tests := map[string]bool{
		"compressed-json":        false,
		"base64-compressed-json": true,
		"zstd-json":              false,
		"base64-zstd-json":       true,
		"json":                   true,
		"raw":                    false,
	}
	for name, want := range tests {
		if got := mustNew(t, name).Text(); got != want {
			t.Errorf("%s.Text() = %v, want %v", name, got, want)
		}
	}
}

func TestUnknownConverter(t *testing.T) {
	if _, err := New("pickle", Options{}); !errors.Is(err, ErrUnknownConverter) {
		t.Fatalf("err = %v, want ErrUnknownConverter", err)
	}
}

func TestLossyDecode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New("compressed-json", Options{Metrics: metrics.New(reg)})
	if err != nil {
		t.Fatal(err)
	}
	stored, err := gzipDump([]byte("\"caf\xff\""))
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Load(stored)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "caf\uFFFD" {
		t.Errorf("Load = %q, want replacement character", got)
	}
	totals, err := metrics.Totals(reg)
	if err != nil {
		t.Fatal(err)
	}
	if totals["treekv_decode_degraded_total"] != 1 {
		t.Errorf("degraded = %v, want 1", totals["treekv_decode_degraded_total"])
	}
}

func TestTranscoder(t *testing.T) {
	v := map[string]any{"id": 7, "tags": []any{"a", "b"}}
	for _, srcName := range Names() {
		for _, dstName := range Names() {
			if (srcName == "raw") != (dstName == "raw") {
				continue
			}
			src, dst := mustNew(t, srcName), mustNew(t, dstName)
			in := any(v)
			if srcName == "raw" {
				in = "payload"
			}
			stored, err := src.Dump(in)
			if err != nil {
				t.Fatal(err)
			}
			got, err := NewTranscoder(src, dst).Transcode(stored)
			if err != nil {
				t.Fatalf("%s -> %s: %v", srcName, dstName, err)
			}
			want, _ := dst.Dump(in)
			if !bytes.Equal(got, want) {
				t.Errorf("%s -> %s: transcoded bytes differ from a direct Dump", srcName, dstName)
			}
		}
	}
}

func TestTranscoderKeepsSharedPrefix(t *testing.T) {
	src, dst := mustNew(t, "compressed-json"), mustNew(t, "base64-compressed-json")
	tc := NewTranscoder(src, dst)
	if tc.full || tc.prefix != 1 {
		t.Fatalf("prefix = %d full = %v, want gzip shared", tc.prefix, tc.full)
	}
	// arbitrary gzip payload that is not JSON must pass through untouched
	stored, _ := gzipDump([]byte("not json"))
	out, err := tc.Transcode(stored)
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	back, err := base64Load(out)
	if err != nil || !bytes.Equal(back, stored) {
		t.Errorf("gzip bytes changed across transcode")
	}
}
