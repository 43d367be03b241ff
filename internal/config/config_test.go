package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost:5432/events?sslmode=disable"

encryption:
  payment_encryption_key: "dGVzdC1rZXktdGVzdC1rZXktdGVzdC1rZXktdGVzdA=="

ses:
  region: "us-west-2"
  access_key: "AKIATEST"
  secret_key: "secret"
  from_email: "events@example.com"
  timeout_seconds: 45

stripe:
  timeout_seconds: 20
  rate_limit_delay_ms: 50

rates:
  ses_per_second: 100
  stripe_per_second: 25

jobs:
  worker_pool_size: 8
  email_batch_size: 25
  max_emails: 500

renewal:
  threshold_days: 10
  extended_days: 30

fees_tax:
  batch_size: 250
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost:5432/events?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "us-west-2", cfg.SES.Region)
	assert.Equal(t, 45, cfg.SES.TimeoutSeconds)
	assert.Equal(t, 50, cfg.Stripe.RateLimitDelayMs)
	assert.Equal(t, 100, cfg.Rates.SESPerSecond)
	assert.Equal(t, 25, cfg.Rates.StripePerSecond)
	assert.Equal(t, 8, cfg.Jobs.WorkerPoolSize)
	assert.Equal(t, 25, cfg.Jobs.EmailBatchSize)
	assert.Equal(t, 500, cfg.Jobs.MaxEmails)
	assert.Equal(t, 10, cfg.Renewal.ThresholdDays)
	assert.Equal(t, 30, cfg.Renewal.ExtendedDays)
	assert.Equal(t, 250, cfg.FeesTax.BatchSize)
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  url: "postgres://localhost/test"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 200, cfg.Rates.SESPerSecond)
	assert.Equal(t, 100, cfg.Rates.StripePerSecond)
	assert.Equal(t, 100, cfg.Stripe.RateLimitDelayMs)
	assert.Equal(t, 50, cfg.Jobs.EmailBatchSize)
	assert.Equal(t, 10000, cfg.Jobs.MaxEmails)
	assert.Equal(t, 10, cfg.Jobs.PrewarmTimeoutSeconds)
	assert.Equal(t, 7, cfg.Renewal.ThresholdDays)
	assert.Equal(t, 100, cfg.FeesTax.BatchSize)
	assert.Equal(t, 4, cfg.Jobs.WorkerPoolSize)
	assert.Equal(t, 30, cfg.Jobs.JobTimeoutMinutes)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080

database:
  url: "postgres://localhost/from-file"

encryption:
  payment_encryption_key: "ZmlsZS1rZXk="

ses:
  from_email: "file@example.com"

renewal:
  extended_days: 14
`)

	t.Setenv("DATABASE_URL", "postgres://localhost/from-env")
	t.Setenv("PAYMENT_ENCRYPTION_KEY", "ZW52LWtleQ==")
	t.Setenv("SES_FROM_EMAIL", "env@example.com")
	t.Setenv("RENEWAL_EXTENDED_DAYS", "21")
	t.Setenv("STRIPE_RATE_LIMIT_DELAY_MS", "250")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/from-env", cfg.Database.URL)
	assert.Equal(t, "ZW52LWtleQ==", cfg.Encryption.PaymentEncryptionKey)
	assert.Equal(t, "env@example.com", cfg.SES.FromEmail)
	assert.Equal(t, 21, cfg.Renewal.ExtendedDays)
	assert.Equal(t, 250, cfg.Stripe.RateLimitDelayMs)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestValidateRequiredKeys(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Database.URL = "postgres://localhost/test"
	cfg.SES.FromEmail = "events@example.com"
	cfg.Renewal.ExtendedDays = 30

	// Missing encryption key fails.
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment encryption key")

	cfg.Encryption.PaymentEncryptionKey = "a2V5"
	require.NoError(t, cfg.Validate())

	// Missing extended_days fails; there is no default for it.
	cfg.Renewal.ExtendedDays = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extended_days")
}
