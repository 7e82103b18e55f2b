// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent calendar drift in the activity ledger.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Process envconfig struct tags to populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Stage   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the process configuration from the
// environment. A .env file in the working directory is honored for local
// development but never overrides real environment variables.
func LoadConfig() (*Config, error) {
	// Enforce UTC so that (year, month) bucketing of activity events is
	// identical across every process touching the ledger.
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Stage:   "parse",
			Message: "failed to process environment variables",
			Err:     err,
		}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{
			Stage:   "validate",
			Message: "configuration failed validation",
			Err:     err,
		}
	}

	return &cfg, nil
}

// WorkerConfig is the configuration subset needed by the email worker. The
// worker never touches the database or the billing provider, so those
// sections (and their required fields) are absent.
type WorkerConfig struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	AWS   AWSConfig
	Email EmailConfig
}

// LoadWorkerConfig loads and validates the email worker configuration.
func LoadWorkerConfig() (*WorkerConfig, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Stage:   "parse",
			Message: "failed to process environment variables",
			Err:     err,
		}
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{
			Stage:   "validate",
			Message: "configuration failed validation",
			Err:     err,
		}
	}

	return &cfg, nil
}
