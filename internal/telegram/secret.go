package telegram

import (
	"strings"

	"github.com/google/uuid"
)

// NewWebhookSecret generates the opaque token embedded in a channel's
// webhook URL path. Two UUIDs give 256 bits of randomness, which is the
// whole authentication scheme for inbound calls.
func NewWebhookSecret() string {
	a := strings.ReplaceAll(uuid.NewString(), "-", "")
	b := strings.ReplaceAll(uuid.NewString(), "-", "")
	return a + b
}
