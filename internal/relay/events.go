package relay

import (
	"context"

	"github.com/google/uuid"

	"github.com/crossposter/relay/internal/models"
)

// DeliveryEvent is published after every recorded delivery attempt so
// downstream consumers can observe outcomes without polling the ledger.
type DeliveryEvent struct {
	LinkID            uuid.UUID             `json:"link_id"`
	TenantID          uuid.UUID             `json:"tenant_id"`
	Status            models.DeliveryStatus `json:"status"`
	ContentKind       models.ContentKind    `json:"content_kind"`
	TelegramMessageID int64                 `json:"telegram_message_id"`
	MaxMessageID      string                `json:"max_message_id,omitempty"`
	ErrorDetail       string                `json:"error_detail,omitempty"`
}

// EventPublisher publishes delivery events. Implementations must be safe for
// concurrent use. Publishing is best-effort: failures are logged, never
// propagated into the delivery outcome.
type EventPublisher interface {
	PublishDelivery(ctx context.Context, event DeliveryEvent) error
}
