// Package config defines the global configuration structure for the LoveBirdz
// admin billing engine. Configuration is loaded once at process initialization
// and is immutable thereafter, following 12-Factor principles.
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"lovebirdz/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"lovebirdz-admin"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	AWS      AWSConfig
	Email    EmailConfig
}

// ServerConfig holds HTTP server settings for the admin API.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8002"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// BillingConfig holds Stripe integration credentials and call tuning.
// CallTimeout bounds every outbound provider call; a tripped deadline is
// surfaced as upstream_billing_timeout.
type BillingConfig struct {
	StripeSecretKey     SecretString  `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET"`
	CallTimeout         time.Duration `envconfig:"BILLING_CALL_TIMEOUT" default:"20s"`
}

// AWSConfig holds AWS resource identifiers for the notification queue and
// worker telemetry.
type AWSConfig struct {
	Region       string `envconfig:"AWS_REGION" default:"us-east-1"`
	WelcomeQueue string `envconfig:"SQS_WELCOME_QUEUE" validate:"required,url"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds email delivery provider credentials used by the welcome
// email worker.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"hello@lovebirdz.app"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"LoveBirdz"`
}
