package config

import (
	"os"
	"strconv"
	"strings"

	"golmer/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Data      DataConfig
	Screen    ScreenConfig
	Ledger    LedgerConfig
	Server    ServerConfig
	Profiling ProfilingConfig
}

// DataConfig holds dataset source settings. Either Path or URL names the
// source; both empty is valid for servers that receive data per request.
type DataConfig struct {
	Path        string
	Format      string // "csv" or "xlsx", empty means infer from the path
	Delimiter   string // cell delimiter for delimited text, "" keeps the reader default
	URL         string
	RecordsPath string // JSON path to the record array for URL sources
	Response    string
	Groups      []string
	Predictors  []string
	ForceFactor []string
}

// ScreenConfig holds model fitting and screening settings
type ScreenConfig struct {
	Criterion        string
	MaxParallel      int
	MaxIterations    int
	MaxEvaluations   int
	Tolerance        float64
	AnomalyTolerance float64
}

// LedgerConfig holds screen report persistence settings
type LedgerConfig struct {
	Enabled bool
	Driver  string
	DSN     string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Data:      loadDataConfig(),
		Screen:    loadScreenConfig(),
		Ledger:    loadLedgerConfig(),
		Server:    loadServerConfig(),
		Profiling: loadProfilingConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDataConfig() DataConfig {
	return DataConfig{
		Path:        getEnvOrDefault("DATA_PATH", ""),
		Format:      getEnvOrDefault("DATA_FORMAT", ""),
		Delimiter:   getEnvOrDefault("DATA_DELIMITER", ""),
		URL:         getEnvOrDefault("DATA_URL", ""),
		RecordsPath: getEnvOrDefault("DATA_RECORDS_PATH", "records"),
		Response:    getEnvOrDefault("RESPONSE_COLUMN", ""),
		Groups:      getEnvListOrDefault("RANDOM_GROUPS", nil),
		Predictors:  getEnvListOrDefault("PREDICTORS", nil),
		ForceFactor: getEnvListOrDefault("FORCE_FACTOR", nil),
	}
}

func loadScreenConfig() ScreenConfig {
	return ScreenConfig{
		Criterion:        strings.ToUpper(getEnvOrDefault("FIT_CRITERION", "ML")),
		MaxParallel:      getEnvIntOrDefault("MAX_PARALLEL_FITS", 4),
		MaxIterations:    getEnvIntOrDefault("FIT_MAX_ITERATIONS", 500),
		MaxEvaluations:   getEnvIntOrDefault("FIT_MAX_EVALUATIONS", 4000),
		Tolerance:        getEnvFloatOrDefault("FIT_TOLERANCE", 1e-10),
		AnomalyTolerance: getEnvFloatOrDefault("ANOMALY_TOLERANCE", 1e-6),
	}
}

func loadLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Enabled: getEnvBoolOrDefault("LEDGER_ENABLED", false),
		Driver:  getEnvOrDefault("LEDGER_DRIVER", "sqlite3"),
		DSN:     getEnvOrDefault("LEDGER_DSN", ""),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func validateConfig(config *Config) error {
	if config.Data.Path != "" && config.Data.URL != "" {
		return errors.ConfigInvalid("DATA_PATH and DATA_URL are mutually exclusive")
	}
	if (config.Data.Path != "" || config.Data.URL != "") && config.Data.Response == "" {
		return errors.ConfigInvalid("RESPONSE_COLUMN is required when a data source is set")
	}
	if (config.Data.Path != "" || config.Data.URL != "") && len(config.Data.Groups) == 0 {
		return errors.ConfigInvalid("RANDOM_GROUPS is required when a data source is set")
	}

	switch config.Screen.Criterion {
	case "ML", "REML":
	default:
		return errors.ConfigInvalid("FIT_CRITERION must be ML or REML, got " + config.Screen.Criterion)
	}
	if config.Screen.MaxParallel < 1 {
		return errors.ConfigInvalid("MAX_PARALLEL_FITS must be at least 1")
	}
	if config.Screen.MaxIterations < 1 || config.Screen.MaxEvaluations < 1 {
		return errors.ConfigInvalid("optimizer budgets must be positive")
	}

	if config.Ledger.Enabled {
		if config.Ledger.DSN == "" {
			return errors.ConfigInvalid("LEDGER_DSN is required when the ledger is enabled")
		}
		switch config.Ledger.Driver {
		case "sqlite3", "postgres":
		default:
			return errors.ConfigInvalid("LEDGER_DRIVER must be sqlite3 or postgres, got " + config.Ledger.Driver)
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
