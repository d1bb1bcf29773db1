package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gosegment/domain/segmentation"
	"gosegment/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig
	Analytics AnalyticsConfig
	Database  DatabaseConfig
	Catalog   CatalogConfig
	Wizard    WizardConfig
	Logging   LoggingConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// AnalyticsMode selects the analytics backend implementation
type AnalyticsMode string

const (
	AnalyticsRemote AnalyticsMode = "remote"
	AnalyticsStub   AnalyticsMode = "stub"
)

// AnalyticsConfig holds remote analytics service settings
type AnalyticsConfig struct {
	Mode       AnalyticsMode
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerSec float64
	StubPort   string
	StubSeed   int64
}

// DatabaseConfig holds run-history store settings
type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite"
	URL    string
}

// CatalogConfig holds variable metadata settings
type CatalogConfig struct {
	CodebookFile  string
	CodebookSheet string
}

// WizardConfig holds wizard defaults
type WizardConfig struct {
	DetectRange     segmentation.Range
	DefaultClusters int
	IdleTTL         time.Duration
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    *loadServerConfig(),
		Analytics: *loadAnalyticsConfig(),
		Database:  *loadDatabaseConfig(),
		Catalog:   *loadCatalogConfig(),
		Wizard:    *loadWizardConfig(),
		Logging:   LoggingConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadAnalyticsConfig() *AnalyticsConfig {
	return &AnalyticsConfig{
		Mode:       AnalyticsMode(strings.ToLower(getEnvOrDefault("ANALYTICS_MODE", string(AnalyticsRemote)))),
		BaseURL:    strings.TrimRight(getEnvOrDefault("ANALYTICS_URL", ""), "/"),
		APIKey:     getEnvOrDefault("ANALYTICS_API_KEY", ""),
		Timeout:    getEnvDurationOrDefault("ANALYTICS_TIMEOUT", 120*time.Second),
		RatePerSec: getEnvFloatOrDefault("ANALYTICS_RATE_PER_SEC", 2),
		StubPort:   getEnvOrDefault("STUB_PORT", "8090"),
		StubSeed:   int64(getEnvIntOrDefault("STUB_SEED", 42)),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Driver: strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", "sqlite")),
		URL:    getEnvOrDefault("DATABASE_URL", "file:gosegment.db"),
	}
}

func loadCatalogConfig() *CatalogConfig {
	return &CatalogConfig{
		CodebookFile:  getEnvOrDefault("CODEBOOK_FILE", ""),
		CodebookSheet: getEnvOrDefault("CODEBOOK_SHEET", "Variables"),
	}
}

func loadWizardConfig() *WizardConfig {
	def := segmentation.DefaultRange()
	return &WizardConfig{
		DetectRange: segmentation.Range{
			Low:  getEnvIntOrDefault("DETECT_RANGE_LOW", def.Low),
			High: getEnvIntOrDefault("DETECT_RANGE_HIGH", def.High),
		},
		DefaultClusters: getEnvIntOrDefault("DEFAULT_CLUSTERS", segmentation.DefaultClusters),
		IdleTTL:         getEnvDurationOrDefault("WIZARD_IDLE_TTL", 30*time.Minute),
	}
}

func validateConfig(config *Config) error {
	switch config.Analytics.Mode {
	case AnalyticsRemote:
		if config.Analytics.BaseURL == "" {
			return errors.ConfigInvalid("ANALYTICS_URL is required when ANALYTICS_MODE=remote")
		}
	case AnalyticsStub:
	default:
		return errors.ConfigInvalid("ANALYTICS_MODE must be remote or stub")
	}
	if config.Analytics.Timeout <= 0 {
		return errors.ConfigInvalid("ANALYTICS_TIMEOUT must be positive")
	}
	if config.Analytics.RatePerSec <= 0 {
		return errors.ConfigInvalid("ANALYTICS_RATE_PER_SEC must be positive")
	}
	switch config.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.ConfigInvalid("DATABASE_DRIVER must be postgres or sqlite")
	}
	if config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	if err := config.Wizard.DetectRange.Validate(); err != nil {
		return errors.ConfigInvalid("detection range: " + err.Error())
	}
	if config.Wizard.DefaultClusters < segmentation.MinClusters {
		return errors.ConfigInvalid("DEFAULT_CLUSTERS must be at least 2")
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
