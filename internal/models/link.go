package models

import (
	"time"

	"github.com/google/uuid"
)

// Link is the directed edge SourceChannel -> DestinationChannel, owned by a
// tenant. Both endpoints must belong to the same tenant as the Link. Deleting
// either endpoint cascades to the Link (enforced by the schema).
type Link struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`

	SourceChannelID      uuid.UUID `json:"source_channel_id" gorm:"type:uuid;not null;index"`
	DestinationChannelID uuid.UUID `json:"destination_channel_id" gorm:"type:uuid;not null;index"`

	Name *string `json:"name,omitempty"`

	IsActive bool `json:"is_active" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Link.
func (Link) TableName() string {
	return "links"
}
