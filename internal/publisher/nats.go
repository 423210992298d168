// Package publisher emits relay delivery events over NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/crossposter/relay/internal/relay"
)

// SubjectDelivery is the subject delivery events are published on.
const SubjectDelivery = "relay.delivery"

// NATSConn is the subset of *nats.Conn the publisher needs; it allows
// mocking in tests.
type NATSConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements relay.EventPublisher on top of a NATS connection.
type NATSPublisher struct {
	conn NATSConn
}

// New creates a publisher over an established NATS connection.
func New(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// NewWithConn creates a publisher over any NATSConn. Tests only.
func NewWithConn(conn NATSConn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// PublishDelivery publishes one delivery event.
func (p *NATSPublisher) PublishDelivery(_ context.Context, event relay.DeliveryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.conn.Publish(SubjectDelivery, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}
