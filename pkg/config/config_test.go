package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"LEDGER_API_URL", "LEDGER_TENANTS_FILE", "LEDGER_MAX_ATTEMPTS", "LEDGER_INITIAL_BACKOFF",
	"LEDGER_REQUESTS_PER_SECOND", "LEDGER_HTTP_TIMEOUT", "LEDGER_ROOT", "LEDGER_DB_PATH",
	"LEDGER_MAPPING_FILE", "LEDGER_CURRENCY", "EMULATOR_ADDR", "EMULATOR_DB_PATH", "DEBUG",
}

// clearEnv empties every key for the duration of the test. godotenv never
// overrides variables that are already set, so the .env tests unset them for real.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.airtable.com", cfg.Store.APIURL)
	assert.Equal(t, 3, cfg.Store.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.InitialBackoff)
	assert.Equal(t, 5.0, cfg.Store.RequestsPerSecond)
	assert.Equal(t, 30*time.Second, cfg.Store.HTTPTimeout)
	assert.Equal(t, "./config/tenants.yaml", cfg.Tenants.File)
	assert.Equal(t, "./ledger", cfg.Ledger.Root)
	assert.Empty(t, cfg.Ledger.DBPath)
	assert.Equal(t, "EUR", cfg.Ledger.Currency)
	assert.Equal(t, ":8089", cfg.Emulator.Addr)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"LEDGER_MAX_ATTEMPTS=5\nLEDGER_INITIAL_BACKOFF=250ms\nLEDGER_ROOT=/srv/ledger\nDEBUG=true\n",
	), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Store.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.InitialBackoff)
	assert.Equal(t, "/srv/ledger", cfg.Ledger.Root)
	assert.True(t, cfg.Debug)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LEDGER_MAX_ATTEMPTS", "three"},
		{"LEDGER_INITIAL_BACKOFF", "soon"},
		{"LEDGER_REQUESTS_PER_SECOND", "fast"},
		{"LEDGER_HTTP_TIMEOUT", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{APIURL: "http://localhost", MaxAttempts: 0},
		Ledger: LedgerConfig{Root: "./ledger"},
	}

	require.NoError(t, cfg.Validate("store.apiUrl", "ledger.root"))

	err := cfg.Validate("store.maxAttempts", "ledger.dbPath", "ledger.root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.maxAttempts, ledger.dbPath")

	assert.Error(t, cfg.Validate("nope"))
}
