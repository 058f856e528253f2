package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	StoreBackendSQLite = "sqlite"
	StoreBackendFile   = "file"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Environment string
	LogLevel    string

	DataDir      string
	DBPath       string
	StoreBackend string // sqlite | file
	StateDir     string
	CalendarDir  string
	ScriptsFile  string
	WatchScripts bool

	// TranscriptDir enables per-contact conversation logs when set.
	TranscriptDir string

	OwnerNumber string
	VIPNumber   string
	Timezone    string

	Workers             int
	MaxDelaySeconds     int
	InboundDedupSeconds int

	DigestEnabled bool
	DigestCron    string
}

func FromEnv() Config {
	dataDir := stringOrDefault("WA_ASSISTANT_DATA_DIR", "/data")
	baseDir := filepath.Join(dataDir, "wa-assistant")

	return Config{
		Environment:         stringOrDefault("WA_ASSISTANT_ENV", "development"),
		LogLevel:            stringOrDefault("WA_ASSISTANT_LOG_LEVEL", "info"),
		DataDir:             dataDir,
		DBPath:              stringOrDefault("WA_ASSISTANT_DB_PATH", filepath.Join(baseDir, "state.sqlite")),
		StoreBackend:        backendOrDefault("WA_ASSISTANT_STORE_BACKEND", StoreBackendSQLite),
		StateDir:            stringOrDefault("WA_ASSISTANT_STATE_DIR", filepath.Join(baseDir, "state")),
		CalendarDir:         stringOrDefault("WA_ASSISTANT_CALENDAR_DIR", filepath.Join(baseDir, "calendar")),
		ScriptsFile:         strings.TrimSpace(os.Getenv("WA_ASSISTANT_SCRIPTS_FILE")),
		WatchScripts:        boolOrDefault("WA_ASSISTANT_WATCH_SCRIPTS", true),
		TranscriptDir:       strings.TrimSpace(os.Getenv("WA_ASSISTANT_TRANSCRIPT_DIR")),
		OwnerNumber:         strings.TrimSpace(os.Getenv("WA_ASSISTANT_OWNER_NUMBER")),
		VIPNumber:           strings.TrimSpace(os.Getenv("WA_ASSISTANT_VIP_NUMBER")),
		Timezone:            stringOrDefault("WA_ASSISTANT_TIMEZONE", "America/Santiago"),
		Workers:             intOrDefault("WA_ASSISTANT_WORKERS", 4),
		MaxDelaySeconds:     intOrDefault("WA_ASSISTANT_MAX_DELAY_SECONDS", 900),
		InboundDedupSeconds: intOrDefault("WA_ASSISTANT_INBOUND_DEDUP_SECONDS", 4),
		DigestEnabled:       boolOrDefault("WA_ASSISTANT_DIGEST_ENABLED", false),
		DigestCron:          stringOrDefault("WA_ASSISTANT_DIGEST_CRON", "0 21 * * *"),
	}
}

// Validate reports settings the runtime cannot start with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("%w: db path is required for the sqlite backend", ErrInvalidConfig)
		}
	case StoreBackendFile:
		if strings.TrimSpace(c.StateDir) == "" {
			return fmt.Errorf("%w: state dir is required for the file backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	if c.OwnerNumber != "" && c.OwnerNumber == c.VIPNumber {
		return fmt.Errorf("%w: owner and vip numbers must differ", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return location
}

func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds) * time.Second
}

func (c Config) InboundDedupWindow() time.Duration {
	return time.Duration(c.InboundDedupSeconds) * time.Second
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func backendOrDefault(name, fallback string) string {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if value == "" {
		return fallback
	}
	return value
}
