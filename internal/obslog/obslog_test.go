package obslog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestBuildJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	l, err := Build(Options{Level: "debug", Format: "json", Console: true}, &buf)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l.Debug("engine_spawned", zap.Int("pid", 42))
	_ = l.Sync()

	out := buf.String()
	if !strings.Contains(out, `"msg":"engine_spawned"`) || !strings.Contains(out, `"pid":42`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestBuildLegacyUsesSeparator(t *testing.T) {
	var buf bytes.Buffer
	l, err := Build(Options{Format: "bogus", Console: true}, &buf)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l.Info("sweep_done")
	l.Debug("hidden")
	_ = l.Sync()

	out := buf.String()
	if !strings.Contains(out, " | INFO | ") {
		t.Fatalf("legacy separator missing: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %s", out)
	}
}

func TestBuildFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "goban.log")
	l, err := Build(Options{Format: "json", ToFile: true, File: path}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l.Warn("engine_killed_after_timeout")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "engine_killed_after_timeout") {
		t.Fatalf("file log missing entry: %s", raw)
	}
}

func TestReplaceRestores(t *testing.T) {
	before := L()
	restore := Replace(zap.NewExample())
	if L() == before {
		t.Fatalf("logger not replaced")
	}
	restore()
	if L() != before {
		t.Fatalf("logger not restored")
	}
}
