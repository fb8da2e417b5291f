/*
Package config loads server settings and builds the process logger.

SOURCES (later wins):
  1. Defaults
  2. .env file in the working directory, if present
  3. Environment variables
  4. Command-line flags

VARIABLES:
  PORT                           HTTP port (8080)
  DB_DRIVER                      sqlite3 | pgx (sqlite3)
  DATABASE_URL                   SQLite path or postgres:// URL (erp.db)
  LOG_LEVEL                      logrus level name (info)
  CORS_ORIGINS                   comma separated allowed origins
  CLOSING_REQUIRE_FIXED_MASTERS  refuse closing before BOMs and prices are fixed (true)
  ENFORCE_PROCESS_SEQUENCE       refuse weld/paint before press/weld output exists (true)
  CLOSING_REMINDER_INTERVAL      how often ended open months are logged (1h, 0 disables)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        int
	DBDriver    string
	DatabaseURL string
	LogLevel    string
	CORSOrigins []string

	RequireFixedMasters    bool
	EnforceProcessSequence bool
	ReminderInterval       time.Duration
}

func defaults() Config {
	return Config{
		Port:                   8080,
		DBDriver:               "sqlite3",
		DatabaseURL:            "erp.db",
		LogLevel:               "info",
		CORSOrigins:            []string{"http://localhost:5173", "http://localhost:8080"},
		RequireFixedMasters:    true,
		EnforceProcessSequence: true,
		ReminderInterval:       time.Hour,
	}
}

// Load reads .env, the environment and then args (usually os.Args[1:]).
func Load(args []string) (Config, error) {
	if err := readDotEnv(); err != nil {
		return Config{}, err
	}
	return load(os.LookupEnv, args)
}

// readDotEnv loads files (".env" when none are given) into the environment
// without overriding variables that are already set. A missing file is
// skipped; a malformed one is an error.
func readDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}
	return nil
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	cfg := defaults()

	if v, ok := lookup("PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}
	if v, ok := lookup("DB_DRIVER"); ok && v != "" {
		cfg.DBDriver = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.DatabaseURL = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	var err error
	if cfg.RequireFixedMasters, err = boolVar(lookup, "CLOSING_REQUIRE_FIXED_MASTERS", cfg.RequireFixedMasters); err != nil {
		return cfg, err
	}
	if cfg.EnforceProcessSequence, err = boolVar(lookup, "ENFORCE_PROCESS_SEQUENCE", cfg.EnforceProcessSequence); err != nil {
		return cfg, err
	}
	if v, ok := lookup("CLOSING_REMINDER_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CLOSING_REMINDER_INTERVAL %q: %w", v, err)
		}
		cfg.ReminderInterval = d
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "database driver (sqlite3 or pgx)")
	fs.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "SQLite path or PostgreSQL URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.ReminderInterval < 0 {
		return cfg, fmt.Errorf("CLOSING_REMINDER_INTERVAL must not be negative")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	switch cfg.DBDriver {
	case "sqlite3", "pgx":
	default:
		return cfg, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	return cfg, nil
}

func boolVar(lookup func(string) (string, bool), key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NewLogger returns a JSON logger writing to stdout at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
