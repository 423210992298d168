package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossposter/relay/internal/models"
)

// RecordsRepository handles the append-only delivery_records ledger.
type RecordsRepository struct {
	db *gorm.DB
}

// NewRecordsRepository creates a new records repository.
func NewRecordsRepository(db *gorm.DB) *RecordsRepository {
	return &RecordsRepository{db: db}
}

// Create appends one delivery record. Exactly one row is written per
// (link, inbound message) attempt regardless of outcome.
func (r *RecordsRepository) Create(ctx context.Context, rec *models.DeliveryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create delivery record: %w", err)
	}
	return nil
}

// ListByLink returns delivery records for a link, newest first, with the
// total count for pagination.
func (r *RecordsRepository) ListByLink(ctx context.Context, linkID uuid.UUID, limit, offset int) ([]models.DeliveryRecord, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Where("link_id = ?", linkID).
		Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("count delivery records: %w", err)
	}

	var records []models.DeliveryRecord
	err = r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery records: %w", err)
	}

	return records, total, nil
}

// CountSuccessSince counts successful deliveries across a tenant's active
// links since the given instant. The daily quota is this live aggregate, not
// a separately maintained counter, so the check can never drift from the
// ledger.
func (r *RecordsRepository) CountSuccessSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Joins("JOIN links ON links.id = delivery_records.link_id").
		Where("links.tenant_id = ?", tenantID).
		Where("links.is_active = ?", true).
		Where("delivery_records.status = ?", models.DeliveryStatusSuccess).
		Where("delivery_records.created_at >= ?", since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count successful deliveries: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes delivery records past their retention window.
// Successful and failed records have independent cutoffs. Returns the number
// of rows removed.
func (r *RecordsRepository) DeleteOlderThan(ctx context.Context, successBefore, failedBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(status = ? AND created_at < ?) OR (status = ? AND created_at < ?)",
			models.DeliveryStatusSuccess, successBefore,
			models.DeliveryStatusFailed, failedBefore).
		Delete(&models.DeliveryRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old delivery records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
