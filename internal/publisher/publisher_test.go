package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossposter/relay/internal/models"
	"github.com/crossposter/relay/internal/relay"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return f.err
}

func TestNATSPublisher_PublishDelivery(t *testing.T) {
	conn := &fakeConn{}
	p := NewWithConn(conn)

	event := relay.DeliveryEvent{
		LinkID:            uuid.New(),
		TenantID:          uuid.New(),
		Status:            models.DeliveryStatusSuccess,
		ContentKind:       models.ContentKindText,
		TelegramMessageID: 42,
		MaxMessageID:      "max-1",
	}

	require.NoError(t, p.PublishDelivery(context.Background(), event))
	assert.Equal(t, SubjectDelivery, conn.subject)

	var got relay.DeliveryEvent
	require.NoError(t, json.Unmarshal(conn.data, &got))
	assert.Equal(t, event, got)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats down")}
	p := NewWithConn(conn)

	err := p.PublishDelivery(context.Background(), relay.DeliveryEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats down")
}
