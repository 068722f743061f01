package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" || cfg.Workers != 0 || cfg.Store != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENSEMBLE_WORKERS", "4")
	t.Setenv("ENSEMBLE_STORE", "/tmp/archive.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 4 || cfg.Store != "/tmp/archive.db" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("ENSEMBLE_WORKERS", "many")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLogger(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		expect  string
		wantErr bool
	}{
		{name: "text", cfg: Config{LogLevel: "info", LogFormat: "text"}, expect: "msg=hello"},
		{name: "json", cfg: Config{LogLevel: "debug", LogFormat: "json"}, expect: `"msg":"hello"`},
		{name: "bad level", cfg: Config{LogLevel: "loud"}, wantErr: true},
		{name: "bad format", cfg: Config{LogLevel: "info", LogFormat: "xml"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := tc.cfg.Logger(&buf)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("logger: %v", err)
			}
			logger.Info("hello")
			if !strings.Contains(buf.String(), tc.expect) {
				t.Fatalf("expected %q in %q", tc.expect, buf.String())
			}
		})
	}
}
