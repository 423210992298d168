package repository

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/crossposter/relay/internal/models"
)

// Setup in-memory DB for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// named shared-cache DB so every pooled connection sees the same data
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.TenantAccount{},
		&models.SourceChannel{},
		&models.DestinationChannel{},
		&models.Link{},
		&models.DeliveryRecord{},
	))

	return db
}

func createTenant(t *testing.T, db *gorm.DB, quota int) *models.TenantAccount {
	t.Helper()

	tenant := &models.TenantAccount{
		ID:             uuid.New(),
		Email:          uuid.NewString() + "@example.com",
		DailyPostQuota: quota,
		MaxLinks:       models.DefaultMaxLinks,
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

func createSource(t *testing.T, db *gorm.DB, tenantID uuid.UUID, active bool) *models.SourceChannel {
	t.Helper()

	ch := &models.SourceChannel{
		ID:                uuid.New(),
		TenantID:          tenantID,
		TelegramChannelID: -1001234567890,
		BotTokenEnc:       []byte{0xde, 0xad, 0xbe, 0xef},
		WebhookSecret:     uuid.NewString(),
		IsActive:          active,
	}
	require.NoError(t, db.Create(ch).Error)
	return ch
}

func createDestination(t *testing.T, db *gorm.DB, tenantID uuid.UUID, active bool) *models.DestinationChannel {
	t.Helper()

	ch := &models.DestinationChannel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		BotTokenEnc: []byte{0xca, 0xfe},
		MaxChatID:   77001,
		IsActive:    active,
	}
	require.NoError(t, db.Create(ch).Error)
	return ch
}

func createLink(t *testing.T, db *gorm.DB, tenantID, srcID, dstID uuid.UUID, active bool, createdAt time.Time) *models.Link {
	t.Helper()

	l := &models.Link{
		ID:                   uuid.New(),
		TenantID:             tenantID,
		SourceChannelID:      srcID,
		DestinationChannelID: dstID,
		IsActive:             active,
		CreatedAt:            createdAt,
	}
	require.NoError(t, db.Create(l).Error)
	return l
}
