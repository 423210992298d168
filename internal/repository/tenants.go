package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossposter/relay/internal/models"
)

// TenantsRepository handles tenant_accounts table operations.
type TenantsRepository struct {
	db *gorm.DB
}

// NewTenantsRepository creates a new tenants repository.
func NewTenantsRepository(db *gorm.DB) *TenantsRepository {
	return &TenantsRepository{db: db}
}

// GetByID returns a tenant by ID.
func (r *TenantsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TenantAccount, error) {
	var t models.TenantAccount
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get tenant by id: %w", translateErr(err))
	}
	return &t, nil
}

// DailyPostQuota returns the daily post quota for a tenant, falling back to
// the default when the tenant row carries no explicit quota.
func (r *TenantsRepository) DailyPostQuota(ctx context.Context, id uuid.UUID) (int, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if t.DailyPostQuota <= 0 {
		return models.DefaultDailyPostQuota, nil
	}
	return t.DailyPostQuota, nil
}
