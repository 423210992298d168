package repository

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/crossposter/relay/internal/models"
)

// ChannelsRepository handles source and destination channel table operations.
type ChannelsRepository struct {
	db *gorm.DB
}

// NewChannelsRepository creates a new channels repository.
func NewChannelsRepository(db *gorm.DB) *ChannelsRepository {
	return &ChannelsRepository{db: db}
}

// GetSourceByID returns a source channel by ID.
func (r *ChannelsRepository) GetSourceByID(ctx context.Context, id uuid.UUID) (*models.SourceChannel, error) {
	var ch models.SourceChannel
	if err := r.db.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get source channel: %w", translateErr(err))
	}
	return &ch, nil
}

// FindSourceByWebhookSecret resolves a webhook path secret to its active
// source channel. Secrets are compared in constant time over the candidate
// set so the lookup does not leak which stored secrets share a prefix with
// the probe. Returns ErrNotFound when nothing matches.
func (r *ChannelsRepository) FindSourceByWebhookSecret(ctx context.Context, secret string) (*models.SourceChannel, error) {
	var candidates []struct {
		ID            uuid.UUID
		WebhookSecret string
	}
	err := r.db.WithContext(ctx).
		Model(&models.SourceChannel{}).
		Select("id", "webhook_secret").
		Where("is_active = ?", true).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list webhook secrets: %w", err)
	}

	var matched *uuid.UUID
	for i := range candidates {
		if subtle.ConstantTimeCompare([]byte(candidates[i].WebhookSecret), []byte(secret)) == 1 {
			id := candidates[i].ID
			matched = &id
			// keep scanning so the loop cost does not depend on match position
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("find source by webhook secret: %w", ErrNotFound)
	}

	return r.GetSourceByID(ctx, *matched)
}

// GetSourceByWebhookSecretAny returns a source channel by secret regardless
// of its active flag. Used by the webhook health probe.
func (r *ChannelsRepository) GetSourceByWebhookSecretAny(ctx context.Context, secret string) (*models.SourceChannel, error) {
	var ch models.SourceChannel
	if err := r.db.WithContext(ctx).First(&ch, "webhook_secret = ?", secret).Error; err != nil {
		return nil, fmt.Errorf("get source by webhook secret: %w", translateErr(err))
	}
	return &ch, nil
}

// UpdateSourceWebhookSecret replaces a source channel's webhook secret. The
// old secret stops resolving as soon as the row is updated.
func (r *ChannelsRepository) UpdateSourceWebhookSecret(ctx context.Context, id uuid.UUID, secret string) error {
	res := r.db.WithContext(ctx).
		Model(&models.SourceChannel{}).
		Where("id = ?", id).
		Update("webhook_secret", secret)
	if res.Error != nil {
		return fmt.Errorf("update webhook secret: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update webhook secret: %w", ErrNotFound)
	}
	return nil
}

// UpdateSourceWebhookURL records the externally registered webhook URL for a
// source channel.
func (r *ChannelsRepository) UpdateSourceWebhookURL(ctx context.Context, id uuid.UUID, url *string) error {
	res := r.db.WithContext(ctx).
		Model(&models.SourceChannel{}).
		Where("id = ?", id).
		Update("webhook_url", url)
	if res.Error != nil {
		return fmt.Errorf("update webhook url: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update webhook url: %w", ErrNotFound)
	}
	return nil
}
