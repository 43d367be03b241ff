package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the batch jobs service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Encryption EncryptionConfig `yaml:"encryption"`
	SES        SESConfig        `yaml:"ses"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Rates      RatesConfig      `yaml:"rates"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Renewal    RenewalConfig    `yaml:"renewal"`
	FeesTax    FeesTaxConfig    `yaml:"fees_tax"`
	Redis      RedisConfig      `yaml:"redis"`
	Sentry     SentryConfig     `yaml:"sentry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the application database connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// EncryptionConfig holds the process-wide credential decryption key.
type EncryptionConfig struct {
	// PaymentEncryptionKey is the base64-encoded 256-bit AES key used to
	// decrypt per-tenant provider secrets. Sanitized before decode.
	PaymentEncryptionKey string `yaml:"payment_encryption_key"`
}

// SESConfig holds AWS SES configuration for outbound email.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromEmail      string `yaml:"from_email"`
	ReplyToEmail   string `yaml:"reply_to_email"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StripeConfig holds Stripe API pacing configuration. Secret keys are
// per-tenant and come from the credential vault, never from config.
type StripeConfig struct {
	TimeoutSeconds   int `yaml:"timeout_seconds"`
	RateLimitDelayMs int `yaml:"rate_limit_delay_ms"`
}

// Timeout returns the configured timeout as a duration
func (c StripeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitDelay returns the post-call sleep as a duration.
func (c StripeConfig) RateLimitDelay() time.Duration {
	return time.Duration(c.RateLimitDelayMs) * time.Millisecond
}

// RatesConfig holds per-provider token bucket rates.
type RatesConfig struct {
	SESPerSecond    int `yaml:"ses_per_second"`
	StripePerSecond int `yaml:"stripe_per_second"`
}

// JobsConfig holds orchestrator and worker pool settings.
type JobsConfig struct {
	WorkerPoolSize        int `yaml:"worker_pool_size"`
	QueueSize             int `yaml:"queue_size"`
	JobTimeoutMinutes     int `yaml:"job_timeout_minutes"`
	EmailBatchSize        int `yaml:"email_batch_size"`
	MaxEmails             int `yaml:"max_emails"`
	PrewarmTimeoutSeconds int `yaml:"prewarm_timeout_seconds"`
}

// JobTimeout returns the overall per-job deadline as a duration.
func (c JobsConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMinutes) * time.Minute
}

// PrewarmTimeout returns the asset readiness budget as a duration.
func (c JobsConfig) PrewarmTimeout() time.Duration {
	return time.Duration(c.PrewarmTimeoutSeconds) * time.Second
}

// RenewalConfig holds subscription reconciliation settings.
type RenewalConfig struct {
	ThresholdDays int `yaml:"threshold_days"`
	// ExtendedDays widens the candidate window for rows that still carry a
	// provider subscription id. Required; there is no safe default.
	ExtendedDays     int `yaml:"extended_days"`
	BatchSize        int `yaml:"batch_size"`
	MaxSubscriptions int `yaml:"max_subscriptions"`
}

// FeesTaxConfig holds fee/tax backfill settings.
type FeesTaxConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// RedisConfig holds the optional distributed rate counter backend.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// SentryConfig holds optional error tracking settings.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Stripe.TimeoutSeconds == 0 {
		cfg.Stripe.TimeoutSeconds = 30
	}
	if cfg.Stripe.RateLimitDelayMs == 0 {
		cfg.Stripe.RateLimitDelayMs = 100
	}
	if cfg.Rates.SESPerSecond == 0 {
		cfg.Rates.SESPerSecond = 200
	}
	if cfg.Rates.StripePerSecond == 0 {
		cfg.Rates.StripePerSecond = 100
	}
	if cfg.Jobs.WorkerPoolSize == 0 {
		cfg.Jobs.WorkerPoolSize = 4
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 100
	}
	if cfg.Jobs.JobTimeoutMinutes == 0 {
		cfg.Jobs.JobTimeoutMinutes = 30
	}
	if cfg.Jobs.EmailBatchSize == 0 {
		cfg.Jobs.EmailBatchSize = 50
	}
	if cfg.Jobs.MaxEmails == 0 {
		cfg.Jobs.MaxEmails = 10000
	}
	if cfg.Jobs.PrewarmTimeoutSeconds == 0 {
		cfg.Jobs.PrewarmTimeoutSeconds = 10
	}
	if cfg.Renewal.ThresholdDays == 0 {
		cfg.Renewal.ThresholdDays = 7
	}
	if cfg.Renewal.BatchSize == 0 {
		cfg.Renewal.BatchSize = 500
	}
	if cfg.Renewal.MaxSubscriptions == 0 {
		cfg.Renewal.MaxSubscriptions = 1000
	}
	if cfg.FeesTax.BatchSize == 0 {
		cfg.FeesTax.BatchSize = 100
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = "development"
	}
}

// Validate checks the settings that have no safe default. A non-nil error
// here is fatal at boot.
func (cfg *Config) Validate() error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database url is required (database.url or DATABASE_URL)")
	}
	if cfg.Encryption.PaymentEncryptionKey == "" {
		return fmt.Errorf("payment encryption key is required (encryption.payment_encryption_key or PAYMENT_ENCRYPTION_KEY)")
	}
	if cfg.Renewal.ExtendedDays <= 0 {
		return fmt.Errorf("renewal extended_days is required and must be positive (renewal.extended_days or RENEWAL_EXTENDED_DAYS)")
	}
	if cfg.SES.FromEmail == "" {
		return fmt.Errorf("ses from_email is required (ses.from_email or SES_FROM_EMAIL)")
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("PAYMENT_ENCRYPTION_KEY"); v != "" {
		cfg.Encryption.PaymentEncryptionKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SES_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
	}
	if v := os.Getenv("SES_REPLY_TO_EMAIL"); v != "" {
		cfg.SES.ReplyToEmail = v
	}
	if v := os.Getenv("STRIPE_RATE_LIMIT_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Stripe.RateLimitDelayMs = ms
		}
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Jobs.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("JOB_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Jobs.JobTimeoutMinutes = n
		}
	}
	if v := os.Getenv("RENEWAL_EXTENDED_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Renewal.ExtendedDays = n
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		cfg.Sentry.DSN = v
	}
	if v := os.Getenv("SENTRY_ENVIRONMENT"); v != "" {
		cfg.Sentry.Environment = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
