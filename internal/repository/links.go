package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossposter/relay/internal/models"
)

// ResolvedLink is a link joined with the destination it delivers to.
type ResolvedLink struct {
	Link        models.Link
	Destination models.DestinationChannel
}

// LinksRepository handles links table operations.
type LinksRepository struct {
	db *gorm.DB
}

// NewLinksRepository creates a new links repository.
func NewLinksRepository(db *gorm.DB) *LinksRepository {
	return &LinksRepository{db: db}
}

// ResolveActive returns every link fanning out from a source channel where
// the link, its destination and the source itself are all active, ordered by
// link creation time ascending. An empty result is a valid no-op, not an
// error.
func (r *LinksRepository) ResolveActive(ctx context.Context, sourceChannelID uuid.UUID) ([]ResolvedLink, error) {
	var links []models.Link
	err := r.db.WithContext(ctx).
		Joins("JOIN destination_channels ON destination_channels.id = links.destination_channel_id").
		Joins("JOIN source_channels ON source_channels.id = links.source_channel_id").
		Where("links.source_channel_id = ?", sourceChannelID).
		Where("links.is_active = ?", true).
		Where("destination_channels.is_active = ?", true).
		Where("source_channels.is_active = ?", true).
		Order("links.created_at ASC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("resolve active links: %w", err)
	}

	resolved := make([]ResolvedLink, 0, len(links))
	for _, l := range links {
		var dest models.DestinationChannel
		if err := r.db.WithContext(ctx).First(&dest, "id = ?", l.DestinationChannelID).Error; err != nil {
			return nil, fmt.Errorf("load destination %s: %w", l.DestinationChannelID, translateErr(err))
		}
		resolved = append(resolved, ResolvedLink{Link: l, Destination: dest})
	}
	return resolved, nil
}

// GetByID returns a link by ID.
func (r *LinksRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Link, error) {
	var l models.Link
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get link by id: %w", translateErr(err))
	}
	return &l, nil
}

// CountActiveByTenant returns the number of active links owned by a tenant.
func (r *LinksRepository) CountActiveByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Link{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count active links: %w", err)
	}
	return n, nil
}
