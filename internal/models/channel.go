package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceChannel is one configured inbound Telegram channel. One inbound bot
// services exactly one channel; the bot token is stored vault-encrypted.
type SourceChannel struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`

	TelegramChannelID int64   `json:"telegram_channel_id" gorm:"not null"`
	TelegramUsername  *string `json:"telegram_username,omitempty"`

	// vault ciphertext, never plaintext
	BotTokenEnc []byte `json:"-" gorm:"not null"`

	// opaque random token embedded in the webhook URL path
	WebhookSecret string  `json:"-" gorm:"uniqueIndex;not null"`
	WebhookURL    *string `json:"webhook_url,omitempty"`

	IsActive bool `json:"is_active" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for SourceChannel.
func (SourceChannel) TableName() string {
	return "source_channels"
}

// DestinationChannel is one configured outbound Max chat.
type DestinationChannel struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`

	// vault ciphertext, never plaintext
	BotTokenEnc []byte `json:"-" gorm:"not null"`

	MaxChatID int64   `json:"max_chat_id" gorm:"not null"`
	Name      *string `json:"name,omitempty"`

	IsActive bool `json:"is_active" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for DestinationChannel.
func (DestinationChannel) TableName() string {
	return "destination_channels"
}
