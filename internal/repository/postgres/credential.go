package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
	"github.com/gatherhq/batch-jobs-service/internal/service/credvault"
)

// CredentialRepo implements credvault.Repository against PostgreSQL. The
// table is owned by the platform; this service only ever reads it.
type CredentialRepo struct{ db *sql.DB }

// NewCredentialRepo creates a Postgres-backed credential repository.
func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{db: db} }

func (r *CredentialRepo) GetCredential(ctx context.Context, tenantID int64, provider domain.ProviderName) (*domain.ProviderCredential, error) {
	c := &domain.ProviderCredential{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, provider_name, encrypted_secret_key, encrypted_api_key,
		       encrypted_webhook_secret, use_case, COALESCE(fallback_order, 0), config_json
		FROM provider_credentials
		WHERE tenant_id = $1 AND provider_name = $2
		ORDER BY fallback_order
		LIMIT 1
	`, tenantID, provider).Scan(
		&c.ID, &c.TenantID, &c.ProviderName, &c.EncryptedSecretKey, &c.EncryptedAPIKey,
		&c.EncryptedWebhookSecret, &c.UseCase, &c.FallbackOrder, &c.ConfigJSON,
	)
	if err == sql.ErrNoRows {
		return nil, credvault.ErrTenantUnconfigured
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for tenant %d provider %s: %w", tenantID, provider, err)
	}
	return c, nil
}
