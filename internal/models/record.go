package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentKind classifies the relayed content of an inbound channel post.
type ContentKind string

// ContentKind constants define the content classes the relay handles. Only
// text and photo are delivered; everything else is recorded as unsupported
// if it reaches the delivery engine at all.
const (
	ContentKindText        ContentKind = "text"
	ContentKindPhoto       ContentKind = "photo"
	ContentKindUnsupported ContentKind = "unsupported"
)

// DeliveryStatus is the outcome of a single delivery attempt.
type DeliveryStatus string

// DeliveryStatus constants define the possible delivery outcomes.
const (
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// DeliveryRecord is one append-only audit row per (Link, inbound message)
// delivery attempt. Never mutated or deleted by the relay, except for
// retention cleanup.
type DeliveryRecord struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	LinkID uuid.UUID `json:"link_id" gorm:"type:uuid;not null;index"`

	TelegramMessageID int64   `json:"telegram_message_id"`
	MaxMessageID      *string `json:"max_message_id,omitempty"`

	ContentKind ContentKind    `json:"content_kind" gorm:"not null"`
	Status      DeliveryStatus `json:"status" gorm:"not null"`
	ErrorDetail *string        `json:"error_detail,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for DeliveryRecord.
func (DeliveryRecord) TableName() string {
	return "delivery_records"
}
