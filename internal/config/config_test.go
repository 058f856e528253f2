package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"WA_ASSISTANT_ENV",
		"WA_ASSISTANT_LOG_LEVEL",
		"WA_ASSISTANT_DATA_DIR",
		"WA_ASSISTANT_DB_PATH",
		"WA_ASSISTANT_STORE_BACKEND",
		"WA_ASSISTANT_STATE_DIR",
		"WA_ASSISTANT_CALENDAR_DIR",
		"WA_ASSISTANT_SCRIPTS_FILE",
		"WA_ASSISTANT_WATCH_SCRIPTS",
		"WA_ASSISTANT_TRANSCRIPT_DIR",
		"WA_ASSISTANT_OWNER_NUMBER",
		"WA_ASSISTANT_VIP_NUMBER",
		"WA_ASSISTANT_TIMEZONE",
		"WA_ASSISTANT_WORKERS",
		"WA_ASSISTANT_MAX_DELAY_SECONDS",
		"WA_ASSISTANT_INBOUND_DEDUP_SECONDS",
		"WA_ASSISTANT_DIGEST_ENABLED",
		"WA_ASSISTANT_DIGEST_CRON",
	} {
		t.Setenv(name, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg := FromEnv()

	if cfg.DataDir != "/data" {
		t.Fatalf("unexpected data dir %q", cfg.DataDir)
	}
	if cfg.DBPath != filepath.Join("/data", "wa-assistant", "state.sqlite") {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
	if cfg.StoreBackend != StoreBackendSQLite {
		t.Fatalf("unexpected backend %q", cfg.StoreBackend)
	}
	if cfg.CalendarDir != filepath.Join("/data", "wa-assistant", "calendar") {
		t.Fatalf("unexpected calendar dir %q", cfg.CalendarDir)
	}
	if cfg.Workers != 4 || cfg.MaxDelay() != 15*time.Minute || cfg.InboundDedupWindow() != 4*time.Second {
		t.Fatalf("unexpected worker/delay defaults %+v", cfg)
	}
	if cfg.DigestEnabled || cfg.DigestCron != "0 21 * * *" || !cfg.WatchScripts {
		t.Fatalf("unexpected digest/watch defaults %+v", cfg)
	}
	if cfg.Timezone != "America/Santiago" {
		t.Fatalf("unexpected timezone %q", cfg.Timezone)
	}
	if cfg.Environment != "development" {
		t.Fatalf("unexpected environment %q", cfg.Environment)
	}
	if cfg.TranscriptDir != "" {
		t.Fatalf("transcripts must be off by default, got %q", cfg.TranscriptDir)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WA_ASSISTANT_DATA_DIR", "/tmp/wa")
	t.Setenv("WA_ASSISTANT_STORE_BACKEND", "FILE")
	t.Setenv("WA_ASSISTANT_OWNER_NUMBER", " +56911110000 ")
	t.Setenv("WA_ASSISTANT_VIP_NUMBER", "+56975551112")
	t.Setenv("WA_ASSISTANT_WORKERS", "8")
	t.Setenv("WA_ASSISTANT_MAX_DELAY_SECONDS", "-1")
	t.Setenv("WA_ASSISTANT_DIGEST_ENABLED", "yes")
	t.Setenv("WA_ASSISTANT_WATCH_SCRIPTS", "off")

	cfg := FromEnv()
	if cfg.StoreBackend != StoreBackendFile {
		t.Fatalf("unexpected backend %q", cfg.StoreBackend)
	}
	if cfg.StateDir != filepath.Join("/tmp/wa", "wa-assistant", "state") {
		t.Fatalf("unexpected state dir %q", cfg.StateDir)
	}
	if cfg.OwnerNumber != "+56911110000" || cfg.VIPNumber != "+56975551112" {
		t.Fatalf("unexpected numbers %q %q", cfg.OwnerNumber, cfg.VIPNumber)
	}
	if cfg.Workers != 8 || cfg.MaxDelaySeconds != 900 {
		t.Fatalf("unexpected ints %+v", cfg)
	}
	if !cfg.DigestEnabled || cfg.WatchScripts {
		t.Fatalf("unexpected bools %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := FromEnv()
	base.Timezone = "UTC"

	cases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "unknown backend", mutate: func(cfg *Config) { cfg.StoreBackend = "redis" }},
		{name: "same numbers", mutate: func(cfg *Config) { cfg.OwnerNumber, cfg.VIPNumber = "+1", "+1" }},
		{name: "bad timezone", mutate: func(cfg *Config) { cfg.Timezone = "Mars/Olympus" }},
		{name: "missing db path", mutate: func(cfg *Config) { cfg.DBPath = "" }},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}
