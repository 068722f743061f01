// Package config reads the command line defaults from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings shared by every ensemble command. Flags override
// these values.
type Config struct {
	LogLevel  string `env:"ENSEMBLE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ENSEMBLE_LOG_FORMAT" envDefault:"text"`
	Workers   int    `env:"ENSEMBLE_WORKERS" envDefault:"0"`
	// Store is the directory of a DirStore, or a path ending in .db for the
	// sqlite store. Empty disables archiving.
	Store string `env:"ENSEMBLE_STORE"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the configuration found in the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Logger builds the slog logger described by cfg, writing to w.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log format %q: want text or json", c.LogFormat)
}
