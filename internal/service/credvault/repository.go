package credvault

import (
	"context"

	"github.com/gatherhq/batch-jobs-service/internal/domain"
)

// Repository loads provider credential rows.
type Repository interface {
	// GetCredential returns the credential for a tenant and provider.
	// Implementations return ErrTenantUnconfigured when no row exists.
	GetCredential(ctx context.Context, tenantID int64, provider domain.ProviderName) (*domain.ProviderCredential, error)
}
