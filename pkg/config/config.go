// Package config provides configuration management for the reconciliation tool.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Store    StoreConfig
	Tenants  TenantsConfig
	Ledger   LedgerConfig
	Emulator EmulatorConfig
	Debug    bool
}

// StoreConfig represents the table store client and retry settings.
type StoreConfig struct {
	APIURL            string
	MaxAttempts       int
	InitialBackoff    time.Duration
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
}

// TenantsConfig locates the tenant credential pool.
type TenantsConfig struct {
	File string
}

// LedgerConfig represents ledger export settings.
type LedgerConfig struct {
	Root        string
	DBPath      string
	MappingFile string
	Currency    string
}

// EmulatorConfig represents the local table store emulator settings.
type EmulatorConfig struct {
	Addr   string
	DBPath string
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	maxAttempts, err := parseIntEnv("LEDGER_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	backoff, err := parseDurationEnv("LEDGER_INITIAL_BACKOFF", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	rps, err := parseFloatEnv("LEDGER_REQUESTS_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationEnv("LEDGER_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Store: StoreConfig{
			APIURL:            getEnvOrDefault("LEDGER_API_URL", "https://api.airtable.com"),
			MaxAttempts:       maxAttempts,
			InitialBackoff:    backoff,
			RequestsPerSecond: rps,
			HTTPTimeout:       timeout,
		},
		Tenants: TenantsConfig{
			File: getEnvOrDefault("LEDGER_TENANTS_FILE", "./config/tenants.yaml"),
		},
		Ledger: LedgerConfig{
			Root:        getEnvOrDefault("LEDGER_ROOT", "./ledger"),
			DBPath:      os.Getenv("LEDGER_DB_PATH"),
			MappingFile: getEnvOrDefault("LEDGER_MAPPING_FILE", "./config/account-mapping.yaml"),
			Currency:    getEnvOrDefault("LEDGER_CURRENCY", "EUR"),
		},
		Emulator: EmulatorConfig{
			Addr:   getEnvOrDefault("EMULATOR_ADDR", ":8089"),
			DBPath: getEnvOrDefault("EMULATOR_DB_PATH", "./data/emulator.db"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate checks that the given dotted paths (e.g. "ledger.mappingFile") are set.
func (c *Config) Validate(required ...string) error {
	var missing []string

	for _, path := range required {
		var value string
		switch path {
		case "store.apiUrl":
			value = c.Store.APIURL
		case "store.maxAttempts":
			value = positive(c.Store.MaxAttempts)
		case "tenants.file":
			value = c.Tenants.File
		case "ledger.root":
			value = c.Ledger.Root
		case "ledger.dbPath":
			value = c.Ledger.DBPath
		case "ledger.mappingFile":
			value = c.Ledger.MappingFile
		case "ledger.currency":
			value = c.Ledger.Currency
		case "emulator.addr":
			value = c.Emulator.Addr
		case "emulator.dbPath":
			value = c.Emulator.DBPath
		default:
			return fmt.Errorf("unknown configuration path %q", path)
		}

		if value == "" {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s\nPlease check your .env file or environment variables", strings.Join(missing, ", "))
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	return parsed, nil
}

func positive(n int) string {
	if n < 1 {
		return ""
	}
	return "set"
}
