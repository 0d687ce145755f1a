package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_FILE", "")
	o := OptionsFromEnv()
	if o.Level != "debug" || o.ToFile || !o.Console || o.Format != "json" {
		t.Fatalf("unexpected options %+v", o)
	}
	if o.File != filepath.Join("logs", "xiangqi.log") {
		t.Fatalf("default log file = %q", o.File)
	}
}

func TestBuildWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "x.log")
	l, err := Build(Options{Level: "info", ToFile: true, File: path, Format: "json"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	l.Info("hello", zap.String("room", "XQ-ABC123"))
	_ = l.Sync()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"room":"XQ-ABC123"`) {
		t.Fatalf("log line missing field: %s", raw)
	}
}

func TestReplaceRestores(t *testing.T) {
	before := L()
	restore := Replace(zap.NewExample())
	if L() == before {
		t.Fatalf("Replace did not swap the logger")
	}
	restore()
	if L() != before {
		t.Fatalf("restore did not bring back the previous logger")
	}
}
