package domain

// ProviderName identifies an external provider a credential belongs to.
type ProviderName string

const (
	ProviderStripe ProviderName = "STRIPE"
	ProviderSES    ProviderName = "SES"
)

// ProviderCredential is one tenant's encrypted credential record for an
// external provider. The service never writes these rows and never persists
// plaintext; decrypted values live only in the per-run vault cache.
type ProviderCredential struct {
	ID                     int64        `json:"id" db:"id"`
	TenantID               int64        `json:"tenant_id" db:"tenant_id"`
	ProviderName           ProviderName `json:"provider_name" db:"provider_name"`
	EncryptedSecretKey     *string      `json:"-" db:"encrypted_secret_key"`
	EncryptedAPIKey        *string      `json:"-" db:"encrypted_api_key"`
	EncryptedWebhookSecret *string      `json:"-" db:"encrypted_webhook_secret"`
	UseCase                *string      `json:"use_case" db:"use_case"`
	FallbackOrder          int          `json:"fallback_order" db:"fallback_order"`
	ConfigJSON             *string      `json:"-" db:"config_json"`
}
