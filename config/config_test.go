package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "erp.db", cfg.DatabaseURL)
	assert.True(t, cfg.RequireFixedMasters)
	assert.True(t, cfg.EnforceProcessSequence)
	assert.Equal(t, time.Hour, cfg.ReminderInterval)
}

func TestLoad_EnvironmentThenFlags(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"PORT":                          "9000",
		"DB_DRIVER":                     "pgx",
		"DATABASE_URL":                  "postgres://erp@localhost/erp",
		"CORS_ORIGINS":                  "https://a.example, https://b.example,",
		"CLOSING_REQUIRE_FIXED_MASTERS": "false",
		"LOG_LEVEL":                     "debug",
		"CLOSING_REMINDER_INTERVAL":     "15m",
	}), []string{"-port", "9100"})
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "flag overrides env")
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, "postgres://erp@localhost/erp", cfg.DatabaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.RequireFixedMasters)
	assert.True(t, cfg.EnforceProcessSequence)
	assert.Equal(t, 15*time.Minute, cfg.ReminderInterval)
	assert.Equal(t, logrus.DebugLevel, cfg.NewLogger().GetLevel())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"port":      {"PORT": "eighty"},
		"driver":    {"DB_DRIVER": "mysql"},
		"level":     {"LOG_LEVEL": "loud"},
		"bool flag": {"ENFORCE_PROCESS_SEQUENCE": "sometimes"},
		"interval":  {"CLOSING_REMINDER_INTERVAL": "-5m"},
		"unknown":   {"CLOSING_REMINDER_INTERVAL": "weekly"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(env(vars), nil)
			assert.Error(t, err)
		})
	}
}

func TestReadDotEnv(t *testing.T) {
	// GIVEN: A missing file, a valid file and a malformed file
	// WHEN: Reading each one
	// THEN: Only the malformed file is an error

	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		assert.NoError(t, readDotEnv(filepath.Join(dir, "absent.env")))
	})

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "valid.env")
		require.NoError(t, os.WriteFile(path, []byte("ERP_DOTENV_TEST_PORT=9300\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("ERP_DOTENV_TEST_PORT") })

		require.NoError(t, readDotEnv(path))
		assert.Equal(t, "9300", os.Getenv("ERP_DOTENV_TEST_PORT"))
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.env")
		require.NoError(t, os.WriteFile(path, []byte("BAD-KEY=1\n"), 0o600))

		err := readDotEnv(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read .env")
	})
}
