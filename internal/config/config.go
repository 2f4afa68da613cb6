// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package config loads the optional configuration file shared by the client
// and server programs, and builds their loggers.
//
// The file is YAML:
//
//	log:
//	  level: debug     # debug, info, warn (default), or error
//	  format: json     # text (default) or json
//	preamble: "\n> "   # server: written at the start of each session
//	timeout: 30s       # client: give up waiting for an acknowledgment
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the contents of a configuration file.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	// Preamble, if set, replaces the server's default session preamble.
	Preamble *string `yaml:"preamble"`

	// Timeout is a duration string. Empty or zero means wait forever.
	Timeout string `yaml:"timeout"`

	timeout time.Duration // parsed from Timeout by Load
}

// Load reads and validates the configuration file at path. If path == "",
// Load returns an empty configuration.
func Load(path string) (*Config, error) {
	cfg := new(Config)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	d, err := parseTimeout(c.Timeout)
	if err != nil {
		return err
	}
	c.timeout = d
	return nil
}

func (c *Config) level() (slog.Level, error) {
	if c.Log.Level == "" {
		return slog.LevelWarn, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level: %w", err)
	}
	return lvl, nil
}

// TimeoutDuration reports the timeout setting as parsed by [Load].
// Zero means wait forever.
func (c *Config) TimeoutDuration() time.Duration { return c.timeout }

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	} else if d < 0 {
		return 0, errors.New("timeout must not be negative")
	}
	return d, nil
}

// Logger returns a logger that writes to w according to c. If verbose is
// true, the level is lowered to debug regardless of the file setting.
func (c *Config) Logger(w io.Writer, verbose bool) *slog.Logger {
	lvl, err := c.level()
	if verbose {
		lvl = slog.LevelDebug
	} else if err != nil {
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
