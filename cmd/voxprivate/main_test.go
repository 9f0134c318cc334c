package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxprivate/internal/config"
)

func TestLoadConfig_DefaultPathMissing(t *testing.T) {
	t.Setenv(config.EnvModelDir, "/srv/models")

	cfg, watch, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"), false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if watch != "" {
		t.Errorf("watch path = %q, want empty", watch)
	}
	if cfg.Model.Dir != "/srv/models" || cfg.Model.SpeechRecognition != "tiny" {
		t.Errorf("model = %+v", cfg.Model)
	}
}

func TestLoadConfig_ExplicitPathMissing(t *testing.T) {
	t.Parallel()
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "custom.yaml"), true)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model:\n  speech_recognition: base.en\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, watch, err := loadConfig(path, false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if watch != path || cfg.Model.SpeechRecognition != "base.en" {
		t.Errorf("watch = %q, model = %q", watch, cfg.Model.SpeechRecognition)
	}
}

func TestNewLogger_FileFollowsLevel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vox.log")
	levels := new(slog.LevelVar)

	log, closeLog, err := newLogger(config.LoggingConfig{Enabled: true, File: path}, levels)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log = log.With("component", "test")
	log.Debug("hidden")
	levels.Set(slog.LevelDebug)
	log.Debug("detail")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %s", out)
	}
	if !strings.Contains(out, `"msg":"detail"`) || !strings.Contains(out, `"component":"test"`) {
		t.Errorf("log file = %s", out)
	}
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vox.log")
	levels := new(slog.LevelVar)

	log, closeLog, err := newLogger(config.LoggingConfig{Enabled: true, File: path}, levels)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Info("pipeline started", "state", "running")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"pipeline started"`) {
		t.Errorf("log file = %q", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("log file mode = %o, want 600", perm)
	}
}
