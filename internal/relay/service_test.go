package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/crossposter/relay/internal/limiter"
	"github.com/crossposter/relay/internal/models"
	"github.com/crossposter/relay/internal/repository"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []DeliveryEvent
}

func (p *capturePublisher) PublishDelivery(_ context.Context, e DeliveryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type serviceFixture struct {
	db      *gorm.DB
	svc     *Service
	pub     *capturePublisher
	tenant  *models.TenantAccount
	source  *models.SourceChannel
	quota   *limiter.DailyQuotaLimiter
	records *repository.RecordsRepository
}

func setupService(t *testing.T, engine Deliverer, dailyQuota int) *serviceFixture {
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

	tenant := &models.TenantAccount{ID: uuid.New(), Email: "relay@example.com", DailyPostQuota: dailyQuota, MaxLinks: 10}
	require.NoError(t, db.Create(tenant).Error)

	source := &models.SourceChannel{
		ID:                uuid.New(),
		TenantID:          tenant.ID,
		TelegramChannelID: -1001234567890,
		BotTokenEnc:       []byte{0x01},
		WebhookSecret:     "sekret-" + uuid.NewString(),
		IsActive:          true,
	}
	require.NoError(t, db.Create(source).Error)

	channels := repository.NewChannelsRepository(db)
	links := repository.NewLinksRepository(db)
	records := repository.NewRecordsRepository(db)
	quota := limiter.New(repository.NewTenantsRepository(db), records)

	pub := &capturePublisher{}
	svc := NewService(channels, links, records, quota, engine, pub, nil)

	return &serviceFixture{db: db, svc: svc, pub: pub, tenant: tenant, source: source, quota: quota, records: records}
}

func (f *serviceFixture) addLink(t *testing.T, active bool, createdAt time.Time) *models.Link {
	t.Helper()

	dst := &models.DestinationChannel{
		ID:          uuid.New(),
		TenantID:    f.tenant.ID,
		BotTokenEnc: []byte{0x02},
		MaxChatID:   77001,
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(dst).Error)

	link := &models.Link{
		ID:                   uuid.New(),
		TenantID:             f.tenant.ID,
		SourceChannelID:      f.source.ID,
		DestinationChannelID: dst.ID,
		IsActive:             active,
		CreatedAt:            createdAt,
	}
	require.NoError(t, f.db.Create(link).Error)
	return link
}

func (f *serviceFixture) allRecords(t *testing.T) []models.DeliveryRecord {
	t.Helper()
	var recs []models.DeliveryRecord
	require.NoError(t, f.db.Find(&recs).Error)
	return recs
}

func textUpdate(messageID int64) []byte {
	return []byte(fmt.Sprintf(
		`{"update_id": 1, "channel_post": {"message_id": %d, "chat": {"id": -1001234567890}, "text": "hello"}}`,
		messageID,
	))
}

// stubDeliverer is a controllable delivery engine.
type stubDeliverer struct {
	mu    sync.Mutex
	calls int
	err   error
	msgID string
}

func (d *stubDeliverer) Deliver(_ context.Context, _ *models.SourceChannel, _ *models.DestinationChannel, _ Content) (string, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	return d.msgID, nil
}

func (d *stubDeliverer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestHandleWebhook_UnknownSecret(t *testing.T) {
	engine := &stubDeliverer{msgID: "m"}
	f := setupService(t, engine, 100)

	_, err := f.svc.HandleWebhook(context.Background(), "wrong-secret", textUpdate(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownWebhook))
	assert.Empty(t, f.allRecords(t), "unknown webhook must not create records")
	assert.Equal(t, 0, engine.callCount())
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	f := setupService(t, &stubDeliverer{msgID: "m"}, 100)

	_, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, []byte(`{broken`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPayload))
	assert.Empty(t, f.allRecords(t))
}

func TestHandleWebhook_ZeroActiveLinks(t *testing.T) {
	engine := &stubDeliverer{msgID: "m"}
	f := setupService(t, engine, 100)

	res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(1))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, f.allRecords(t), "no links means no records")
	assert.Equal(t, 0, engine.callCount())
}

func TestHandleWebhook_SingleLinkSuccess(t *testing.T) {
	engine := &stubDeliverer{msgID: "max-42"}
	f := setupService(t, engine, 100)
	link := f.addLink(t, true, time.Now().UTC())

	res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(42))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Total)

	recs := f.allRecords(t)
	require.Len(t, recs, 1)
	assert.Equal(t, link.ID, recs[0].LinkID)
	assert.Equal(t, int64(42), recs[0].TelegramMessageID)
	assert.Equal(t, models.ContentKindText, recs[0].ContentKind)
	assert.Equal(t, models.DeliveryStatusSuccess, recs[0].Status)
	require.NotNil(t, recs[0].MaxMessageID)
	assert.Equal(t, "max-42", *recs[0].MaxMessageID)
	assert.Nil(t, recs[0].ErrorDetail)
}

func TestHandleWebhook_FanOutCreatesOneRecordPerLink(t *testing.T) {
	engine := &stubDeliverer{msgID: "m"}
	f := setupService(t, engine, 100)

	base := time.Now().UTC()
	l1 := f.addLink(t, true, base)
	l2 := f.addLink(t, true, base.Add(time.Second))
	l3 := f.addLink(t, true, base.Add(2*time.Second))
	f.addLink(t, false, base.Add(3*time.Second)) // inactive, excluded

	res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(7))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 3, engine.callCount())

	recs := f.allRecords(t)
	require.Len(t, recs, 3)
	seen := map[uuid.UUID]bool{}
	for _, r := range recs {
		seen[r.LinkID] = true
	}
	assert.True(t, seen[l1.ID] && seen[l2.ID] && seen[l3.ID], "each record references a distinct link")
}

func TestHandleWebhook_SiblingFailureDoesNotAbortOthers(t *testing.T) {
	// fail only for one destination chat id
	engine := &selectiveDeliverer{failChat: 88001}
	f := setupService(t, engine, 100)

	f.addLink(t, true, time.Now().UTC())

	badDst := &models.DestinationChannel{ID: uuid.New(), TenantID: f.tenant.ID, BotTokenEnc: []byte{3}, MaxChatID: 88001, IsActive: true}
	require.NoError(t, f.db.Create(badDst).Error)
	badLink := &models.Link{ID: uuid.New(), TenantID: f.tenant.ID, SourceChannelID: f.source.ID, DestinationChannelID: badDst.ID, IsActive: true, CreatedAt: time.Now().UTC().Add(time.Second)}
	require.NoError(t, f.db.Create(badLink).Error)

	res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(9))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Processed)

	recs := f.allRecords(t)
	require.Len(t, recs, 2)

	byLink := map[uuid.UUID]models.DeliveryRecord{}
	for _, r := range recs {
		byLink[r.LinkID] = r
	}
	assert.Equal(t, models.DeliveryStatusFailed, byLink[badLink.ID].Status)
	require.NotNil(t, byLink[badLink.ID].ErrorDetail)
}

type selectiveDeliverer struct {
	failChat int64
}

func (d *selectiveDeliverer) Deliver(_ context.Context, _ *models.SourceChannel, dest *models.DestinationChannel, _ Content) (string, error) {
	if dest.MaxChatID == d.failChat {
		return "", fmt.Errorf("max api [POST /messages]: status 502: bad gateway")
	}
	return "ok-msg", nil
}

func TestHandleWebhook_QuotaBoundary(t *testing.T) {
	engine := &stubDeliverer{msgID: "m"}
	f := setupService(t, engine, 3)
	link := f.addLink(t, true, time.Now().UTC())

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	f.quota.SetNow(func() time.Time { return now })

	// three successes already today
	for i := 0; i < 3; i++ {
		rec := &models.DeliveryRecord{
			ID:          uuid.New(),
			LinkID:      link.ID,
			ContentKind: models.ContentKindText,
			Status:      models.DeliveryStatusSuccess,
			CreatedAt:   now.Add(-time.Duration(i+1) * time.Hour),
		}
		require.NoError(t, f.db.Create(rec).Error)
	}

	res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(10))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 0, engine.callCount(), "no outbound call over quota")

	recs := f.allRecords(t)
	require.Len(t, recs, 4)

	var skipped *models.DeliveryRecord
	for i := range recs {
		if recs[i].TelegramMessageID == 10 {
			skipped = &recs[i]
		}
	}
	require.NotNil(t, skipped)
	assert.Equal(t, models.DeliveryStatusFailed, skipped.Status)
	require.NotNil(t, skipped.ErrorDetail)
	assert.Equal(t, limiter.DailyLimitDetail, *skipped.ErrorDetail)
	assert.Nil(t, skipped.MaxMessageID)
}

func TestHandleWebhook_InactiveSourceResolvesNothing(t *testing.T) {
	engine := &stubDeliverer{msgID: "m"}
	f := setupService(t, engine, 100)
	f.addLink(t, true, time.Now().UTC())

	require.NoError(t, f.db.Model(f.source).Update("is_active", false).Error)

	// an inactive source is indistinguishable from an unknown secret
	_, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(11))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownWebhook))
	assert.Empty(t, f.allRecords(t))
}

func TestHandleWebhook_IgnoredUpdates(t *testing.T) {
	engine := &stubDeliverer{msgID: "m"}
	f := setupService(t, engine, 100)
	f.addLink(t, true, time.Now().UTC())

	t.Run("non channel post", func(t *testing.T) {
		res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, []byte(`{"update_id": 3, "message": {"message_id": 1, "chat": {"id": 5}, "text": "dm"}}`))
		require.NoError(t, err)
		assert.True(t, res.Ignored)
	})

	t.Run("channel mismatch", func(t *testing.T) {
		res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, []byte(`{"channel_post": {"message_id": 2, "chat": {"id": -999}, "text": "hi"}}`))
		require.NoError(t, err)
		assert.True(t, res.Ignored)
		assert.Equal(t, "channel mismatch", res.IgnoredReason)
	})

	t.Run("unsupported content", func(t *testing.T) {
		res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, []byte(`{"channel_post": {"message_id": 3, "chat": {"id": -1001234567890}, "video": {"file_id": "v"}}}`))
		require.NoError(t, err)
		assert.True(t, res.Ignored)
	})

	assert.Empty(t, f.allRecords(t), "ignored updates must not create records")
	assert.Equal(t, 0, engine.callCount())
}

func TestHandleWebhook_PhotoWithUnreachableDestination(t *testing.T) {
	// a real engine against a dead Max endpoint: transport error captured
	v := newTestVault(t)

	tgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path[len(r.URL.Path)-8:] == "/getFile" {
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"file_id": "p", "file_path": "photos/p.jpg"}})
			return
		}
		w.Write([]byte{0x01})
	}))
	defer tgSrv.Close()

	engine := NewEngine(v, EngineConfig{
		TelegramAPIBase:     tgSrv.URL,
		TelegramFileAPIBase: tgSrv.URL,
		MaxAPIBase:          "http://127.0.0.1:1",
		Timeout:             time.Second,
	})

	f := setupService(t, engine, 100)
	require.NoError(t, f.db.Model(f.source).Update("bot_token_enc", encrypt(t, v, "tg-tok")).Error)
	f.source.BotTokenEnc = encrypt(t, v, "tg-tok")

	link := f.addLink(t, true, time.Now().UTC())
	require.NoError(t, f.db.Model(&models.DestinationChannel{}).
		Where("id = ?", link.DestinationChannelID).
		Update("bot_token_enc", encrypt(t, v, "max-tok")).Error)

	body := []byte(`{"channel_post": {"message_id": 5, "chat": {"id": -1001234567890}, "photo": [{"file_id": "p"}], "caption": "c"}}`)

	res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, body)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	recs := f.allRecords(t)
	require.Len(t, recs, 1)
	assert.Equal(t, models.ContentKindPhoto, recs[0].ContentKind)
	assert.Equal(t, models.DeliveryStatusFailed, recs[0].Status)
	assert.Nil(t, recs[0].MaxMessageID)
	require.NotNil(t, recs[0].ErrorDetail)
	assert.Contains(t, *recs[0].ErrorDetail, "upload photo")
}

func TestHandleWebhook_CorruptCredentialRecorded(t *testing.T) {
	v := newTestVault(t)
	engine := NewEngine(v, EngineConfig{MaxAPIBase: "http://127.0.0.1:1", Timeout: time.Second})

	f := setupService(t, engine, 100)
	f.addLink(t, true, time.Now().UTC()) // destination token is garbage bytes

	res, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(6))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	recs := f.allRecords(t)
	require.Len(t, recs, 1)
	assert.Equal(t, models.DeliveryStatusFailed, recs[0].Status)
	require.NotNil(t, recs[0].ErrorDetail)
	assert.Contains(t, *recs[0].ErrorDetail, "credential corrupt")
}

func TestHandleWebhook_PublishesDeliveryEvents(t *testing.T) {
	engine := &stubDeliverer{msgID: "max-77"}
	f := setupService(t, engine, 100)
	link := f.addLink(t, true, time.Now().UTC())

	_, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(12))
	require.NoError(t, err)

	require.Len(t, f.pub.events, 1)
	e := f.pub.events[0]
	assert.Equal(t, link.ID, e.LinkID)
	assert.Equal(t, f.tenant.ID, e.TenantID)
	assert.Equal(t, models.DeliveryStatusSuccess, e.Status)
	assert.Equal(t, "max-77", e.MaxMessageID)
	assert.Equal(t, int64(12), e.TelegramMessageID)
}

func TestHandleWebhook_TruncatesLongFailureDetail(t *testing.T) {
	longErr := errors.New(string(make([]byte, MaxErrorDetailLen*3)))
	engine := &stubDeliverer{err: longErr}
	f := setupService(t, engine, 100)
	f.addLink(t, true, time.Now().UTC())

	_, err := f.svc.HandleWebhook(context.Background(), f.source.WebhookSecret, textUpdate(13))
	require.NoError(t, err)

	recs := f.allRecords(t)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].ErrorDetail)
	assert.Len(t, *recs[0].ErrorDetail, MaxErrorDetailLen)
}
