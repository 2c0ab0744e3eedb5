package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/freeeve/treekv/internal/store"
	"github.com/freeeve/treekv/internal/unit"
)

// run executes the app with args and returns what it wrote to stdout and
// stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	app := App()
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"treekv", "--retry-interval", "5ms"}, args...))
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := run(t, args...)
	if err != nil {
		t.Fatalf("treekv %s: %v\n%s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "treekv" {
		t.Errorf("Name = %q, want treekv", app.Name)
	}
	names := make(map[string]bool)
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	for _, name := range []string{"create", "put", "get", "scan", "reformat", "import", "stats"} {
		if !names[name] {
			t.Errorf("missing command: %s", name)
		}
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treekv.yaml")
	yaml := "log_level: debug\nretry_interval: 250ms\nbackend: json\nunit_size: 10\nworkers: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TREEKV_BACKEND", "dir")
	t.Setenv("TREEKV_RETRY_MAX_ATTEMPTS", "7")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.LogLevel != "debug" || s.RetryInterval != 250*time.Millisecond || s.UnitSize != 10 || s.Workers != 3 {
		t.Errorf("file values not applied: %+v", s)
	}
	if s.Backend != "dir" || s.RetryMaxAttempts != 7 {
		t.Errorf("env values not applied: %+v", s)
	}
	if s.SubfolderSize != 1000 || s.PollInterval != 10*time.Second {
		t.Errorf("defaults lost: %+v", s)
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing settings file")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, _, err := run(t, "--log-level", "loud", "stats", t.TempDir()); err == nil {
		t.Fatal("expected an error for an unknown log level")
	}
}

func TestRecordCommands(t *testing.T) {
	root := filepath.Join(t.TempDir(), "db")
	out := mustRun(t, "create", "--backend", "json", "--converter", "json",
		"--unit-size", "4", "--subfolder-size", "2", root)
	var cfg store.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("create output %q: %v", out, err)
	}
	if cfg.Backend != "json" || cfg.Converter != "json" || cfg.Router != "range" {
		t.Errorf("created config = %+v", cfg)
	}

	mustRun(t, "put", root, "5", `{"a":1}`)
	mustRun(t, "put", root, "-3", `"neg"`)
	mustRun(t, "put", "--mode", "w", root, "12", `[1,2.5]`)

	got := lines(mustRun(t, "get", root, "5", "12"))
	want := []string{`{"key":5,"value":{"a":1}}`, `{"key":12,"value":[1,2.5]}`}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("get = %q, want %q", got, want)
	}

	got = lines(mustRun(t, "get", "--workers", "3", root, "12", "-3", "5"))
	if len(got) != 3 || got[1] != `{"key":-3,"value":"neg"}` {
		t.Errorf("parallel get = %q", got)
	}

	out, _, err := run(t, "get", root, "5", "99")
	if !errors.Is(err, unit.ErrKeyNotFound) {
		t.Errorf("get with a missing key: err = %v, want ErrKeyNotFound", err)
	}
	if strings.TrimSpace(out) != `{"key":5,"value":{"a":1}}` {
		t.Errorf("found keys should still print, got %q", out)
	}

	got = lines(mustRun(t, "scan", root))
	sort.Strings(got)
	want = []string{`{"key":-3,"value":"neg"}`, `{"key":12,"value":[1,2.5]}`, `{"key":5,"value":{"a":1}}`}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("scan = %q, want %q", got, want)
	}

	got = lines(mustRun(t, "scan", "--keys-only", root))
	sort.Strings(got)
	if strings.Join(got, ",") != "-3,12,5" {
		t.Errorf("scan --keys-only = %q", got)
	}

	var st store.Stats
	if err := json.Unmarshal([]byte(mustRun(t, "stats", root)), &st); err != nil {
		t.Fatal(err)
	}
	if st.Records != 3 || st.Units != 3 {
		t.Errorf("stats = %+v, want 3 records in 3 units", st)
	}
}

func TestPutRejectsBadInput(t *testing.T) {
	root := filepath.Join(t.TempDir(), "db")
	mustRun(t, "create", root)

	tests := []struct {
		name string
		args []string
	}{
		{"bad json", []string{"put", root, "1", "{nope"}},
		{"trailing data", []string{"put", root, "1", "1 2"}},
		{"bad key", []string{"put", root, "one", "1"}},
		{"missing value", []string{"put", root, "1"}},
		{"read mode", []string{"put", "--mode", "r", root, "1", "1"}},
		{"bad mode", []string{"put", "--mode", "x", root, "1", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := run(t, tt.args...); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	if _, _, err := run(t, "put", "--mode", "r", root, "1", "1"); !errors.Is(err, unit.ErrInvalidMode) {
		t.Errorf("put in read mode: err = %v, want ErrInvalidMode", err)
	}
}

func TestCreateRejectsSizeFlagsForDigits(t *testing.T) {
	root := filepath.Join(t.TempDir(), "db")
	_, _, err := run(t, "create", "--router", "digits", "--unit-size", "10", root)
	if !errors.Is(err, store.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	out := mustRun(t, "create", "--router", "digits", "--params", `{"digits":4,"subfolder_digits":[1]}`, root)
	if !strings.Contains(out, `"router":"digits"`) {
		t.Errorf("create output = %s", out)
	}
}

func TestReformatCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	mustRun(t, "create", "--unit-size", "3", "--subfolder-size", "2", src)
	for i, v := range []string{`"a"`, `{"b":[true,null]}`, `-7`, `"é"`, `[]`} {
		mustRun(t, "put", src, strconv.Itoa(i*2), v)
	}

	out := mustRun(t, "reformat", "--backend", "json", "--converter", "base64-zstd-json", src, dst)
	var st store.Stats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatal(err)
	}
	if st.Backend != "json" || st.Converter != "base64-zstd-json" || st.Router != "range" || st.Records != 5 {
		t.Errorf("reformat stats = %+v", st)
	}

	scanSorted := func(root string) string {
		got := lines(mustRun(t, "scan", root))
		sort.Strings(got)
		return strings.Join(got, "\n")
	}
	if a, b := scanSorted(src), scanSorted(dst); a != b {
		t.Errorf("reformatted contents differ:\n%s\n---\n%s", a, b)
	}

	if _, _, err := run(t, "reformat", src, src); err == nil {
		t.Error("reformat onto the source root should fail")
	}
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "db")
	watch := filepath.Join(dir, "in")
	mustRun(t, "create", root)
	if err := os.MkdirAll(watch, 0o755); err != nil {
		t.Fatal(err)
	}
	data := `{"key":100,"value":"x"}` + "\n" + `{"key":2000,"value":{"n":1}}` + "\n"
	if err := os.WriteFile(filepath.Join(watch, "batch.jsonl"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "import", "--workers", "1", root, watch)
	if strings.TrimSpace(out) != `{"processed":1,"failed":0,"records":2}` {
		t.Errorf("import output = %q", out)
	}
	got := lines(mustRun(t, "get", root, "100", "2000"))
	if len(got) != 2 || got[1] != `{"key":2000,"value":{"n":1}}` {
		t.Errorf("get after import = %q", got)
	}
	if _, err := os.Stat(filepath.Join(watch, "processed", "batch.jsonl")); err != nil {
		t.Errorf("file not moved: %v", err)
	}
}

func TestMetricsFlag(t *testing.T) {
	root := filepath.Join(t.TempDir(), "db")
	mustRun(t, "create", root)
	_, stderr, err := run(t, "--metrics", "put", root, "1", `"one"`)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"treekv_records_total 1", "treekv_unit_opens_total 1", "treekv_open_units 0"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("metrics output missing %q:\n%s", want, stderr)
		}
	}
}
