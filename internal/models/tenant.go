// Package models defines shared data types for the relay.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Default limits applied to newly registered tenants.
const (
	DefaultDailyPostQuota = 100
	DefaultMaxLinks       = 3
)

// TenantAccount is an authenticated owner of channels and links.
// The relay reads it for quota enforcement and never mutates it.
type TenantAccount struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null"`
	DailyPostQuota int       `json:"daily_post_quota" gorm:"not null;default:100"`
	MaxLinks       int       `json:"max_links" gorm:"not null;default:3"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for TenantAccount.
func (TenantAccount) TableName() string {
	return "tenant_accounts"
}
