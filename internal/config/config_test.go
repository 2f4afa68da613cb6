// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package config_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/minitalk/internal/config"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		t.Fatalf("Write config: %v", err)
	}
	return path
}

func TestLoadEmpty(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.Preamble != nil {
		t.Errorf("Preamble: got %q, want nil", *cfg.Preamble)
	}
	if d := cfg.TimeoutDuration(); d != 0 {
		t.Errorf("Timeout: got %v, want 0", d)
	}

	// The default level is warn.
	log := cfg.Logger(new(bytes.Buffer), false)
	if log.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("Default logger has info enabled")
	}
	if !log.Enabled(t.Context(), slog.LevelWarn) {
		t.Error("Default logger has warn disabled")
	}
	if !cfg.Logger(new(bytes.Buffer), true).Enabled(t.Context(), slog.LevelDebug) {
		t.Error("Verbose logger has debug disabled")
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log:
  level: info
  format: json
preamble: "\n> "
timeout: 1m30s
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.Preamble == nil || *cfg.Preamble != "\n> " {
		t.Errorf("Preamble: got %v, want %q", cfg.Preamble, "\n> ")
	}
	if d := cfg.TimeoutDuration(); d != 90*time.Second {
		t.Errorf("Timeout: got %v, want 1m30s", d)
	}

	var buf bytes.Buffer
	log := cfg.Logger(&buf, false)
	log.Debug("hidden")
	log.Info("shown", "peer", 17)

	var rec struct {
		Level string `json:"level"`
		Msg   string `json:"msg"`
		Peer  int    `json:"peer"`
	}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Decode log record %q: %v", buf.String(), err)
	}
	if rec.Level != "INFO" || rec.Msg != "shown" || rec.Peer != 17 {
		t.Errorf("Log record: got %+v", rec)
	}
}

func TestLoadEmptyPreamble(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `preamble: ""`))
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.Preamble == nil || *cfg.Preamble != "" {
		t.Errorf("Preamble: got %v, want empty", cfg.Preamble)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name, text, want string
	}{
		{"Syntax", "log: [", "parse config"},
		{"Level", "log: {level: loud}", "invalid log level"},
		{"Format", "log: {format: xml}", "unknown log format"},
		{"Timeout", "timeout: soon", "invalid timeout"},
		{"Negative", "timeout: -5s", "must not be negative"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, tc.text))
			if err == nil {
				t.Fatalf("Load: got %+v, want error", cfg)
			} else if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load: got %v, want error containing %q", err, tc.want)
			}
		})
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "nonesuch.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load missing file: got %v, want not-exist", err)
	}
}
