package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"hypolab/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Scoring  ScoringConfig
	Records  RecordsConfig
}

// DatabaseConfig holds transition history persistence settings. An empty
// URL keeps history in memory only.
type DatabaseConfig struct {
	Driver       string `validate:"oneof=postgres sqlite"`
	URL          string
	MaxOpenConns int `validate:"min=1"`
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port          string `validate:"required,numeric"`
	EnableMetrics bool
}

// LoggingConfig holds the log level name
type LoggingConfig struct {
	Level string `validate:"oneof=ERROR WARN INFO DEBUG"`
}

// ScoringConfig points at the YAML scoring policy; empty uses the defaults
type ScoringConfig struct {
	PolicyFile string
}

// RecordsConfig holds where sealed session records are kept
type RecordsConfig struct {
	Dir string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file, then the environment, and validates the result
func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	config := &Config{
		Database: loadDatabaseConfig(),
		Server: ServerConfig{
			Port:          getEnvOrDefault("PORT", "8080"),
			EnableMetrics: getEnvBoolOrDefault("ENABLE_METRICS", true),
		},
		Logging: LoggingConfig{
			Level: strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
		},
		Scoring: ScoringConfig{
			PolicyFile: os.Getenv("SCORING_POLICY"),
		},
		Records: RecordsConfig{
			Dir: getEnvOrDefault("SESSION_RECORDS_DIR", "./records"),
		},
	}

	if err := validateStruct(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadDatabaseConfig() DatabaseConfig {
	url := os.Getenv("DATABASE_URL")
	driver := strings.ToLower(os.Getenv("DATABASE_DRIVER"))
	if driver == "" {
		driver = "postgres"
		if strings.HasPrefix(url, "file:") || strings.HasSuffix(url, ".db") || url == ":memory:" {
			driver = "sqlite"
		}
	}
	return DatabaseConfig{
		Driver:       driver,
		URL:          url,
		MaxOpenConns: getEnvIntOrDefault("DATABASE_MAX_OPEN_CONNS", 10),
	}
}

// validateStruct reports the first failing field as a ConfigInvalid error
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.ConfigInvalid(fmt.Sprintf("%s failed %s check (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.ConfigInvalid(err.Error())
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
