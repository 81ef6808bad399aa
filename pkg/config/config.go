package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Snapshot SnapshotConfig
	LogLevel string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// DatabaseConfig selects the store. Driver is "sqlite" or "postgres"; for
// sqlite the DSN is a file path.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// LedgerConfig holds the ledger settings read from the environment.
type LedgerConfig struct {
	// DeleteSecretHash is the bcrypt hash of the secret that authorizes
	// customer deletion.
	DeleteSecretHash string
	AuditTrail       bool
}

// SnapshotConfig drives the daily snapshot job. An empty CronSchedule
// disables it.
type SnapshotConfig struct {
	CronSchedule string
	Timezone     string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		_ = godotenv.Load()
	}

	audit, err := strconv.ParseBool(getenvWithDefault("AUDIT_TRAIL", "true"))
	if err != nil {
		return nil, fmt.Errorf("AUDIT_TRAIL must be a boolean: %w", err)
	}

	cronSchedule, set := os.LookupEnv("SNAPSHOT_CRON")
	if !set {
		cronSchedule = "0 21 * * *"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver: getenvWithDefault("DB_DRIVER", "sqlite"),
			DSN:    getenvWithDefault("DB_DSN", "ganapathi.db"),
		},
		Ledger: LedgerConfig{
			DeleteSecretHash: os.Getenv("DELETE_SECRET_HASH"),
			AuditTrail:       audit,
		},
		Snapshot: SnapshotConfig{
			CronSchedule: cronSchedule,
			Timezone:     getenvWithDefault("TIMEZONE", "Asia/Kolkata"),
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("DB_DSN must be provided")
	}

	if c.Ledger.DeleteSecretHash == "" {
		return errors.New("DELETE_SECRET_HASH must be provided")
	}

	if _, err := time.LoadLocation(c.Snapshot.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	if c.Snapshot.CronSchedule != "" {
		if _, err := cron.ParseStandard(c.Snapshot.CronSchedule); err != nil {
			return fmt.Errorf("SNAPSHOT_CRON is invalid: %w", err)
		}
	}

	return nil
}

// Location returns the time zone that decides what "today" is.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Snapshot.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
