package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/crossposter/relay/internal/limiter"
	"github.com/crossposter/relay/internal/logger"
	"github.com/crossposter/relay/internal/models"
	"github.com/crossposter/relay/internal/repository"
)

// Deliverer is the outbound half of the pipeline. Satisfied by *Engine;
// swappable in tests.
type Deliverer interface {
	Deliver(ctx context.Context, source *models.SourceChannel, dest *models.DestinationChannel, content Content) (string, error)
}

// Result summarizes one processed webhook call.
type Result struct {
	// Ignored is set when the update was acknowledged without any link
	// processing (non-post update, channel mismatch, unsupported content).
	Ignored       bool
	IgnoredReason string

	// Processed counts successful deliveries; Total counts attempted links.
	Processed int
	Total     int
}

// Service runs the resolution, rate-limit, delivery and bookkeeping pipeline
// for inbound webhook calls.
type Service struct {
	channels *repository.ChannelsRepository
	links    *repository.LinksRepository
	records  *repository.RecordsRepository
	limiter  *limiter.DailyQuotaLimiter
	engine   Deliverer
	events   EventPublisher // optional
	log      *logger.Logger
}

// NewService creates a relay service. events may be nil.
func NewService(
	channels *repository.ChannelsRepository,
	links *repository.LinksRepository,
	records *repository.RecordsRepository,
	quota *limiter.DailyQuotaLimiter,
	engine Deliverer,
	events EventPublisher,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		channels: channels,
		links:    links,
		records:  records,
		limiter:  quota,
		engine:   engine,
		events:   events,
		log:      log,
	}
}

// HandleWebhook processes one inbound webhook call end to end. It returns
// only after every fan-out delivery has been attempted and recorded, because
// the acknowledgment to Telegram must not race the bookkeeping.
//
// ErrUnknownWebhook and ErrMalformedPayload abort before any link
// processing; per-link failures never surface as errors here.
func (s *Service) HandleWebhook(ctx context.Context, secret string, body []byte) (*Result, error) {
	source, err := s.channels.FindSourceByWebhookSecret(ctx, secret)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownWebhook
		}
		return nil, fmt.Errorf("resolve webhook: %w", err)
	}

	upd, err := ParseUpdate(body)
	if err != nil {
		return nil, err
	}

	if !upd.IsChannelPost() {
		s.log.Debug().Int64("update_id", upd.UpdateID).Msg("non-channel-post update ignored")
		return &Result{Ignored: true, IgnoredReason: "not a channel post"}, nil
	}

	if upd.ChannelID != source.TelegramChannelID {
		s.log.Warn().
			Int64("got_channel", upd.ChannelID).
			Int64("want_channel", source.TelegramChannelID).
			Msg("channel post from unexpected channel")
		return &Result{Ignored: true, IgnoredReason: "channel mismatch"}, nil
	}

	if upd.Content.Class == ClassOther {
		s.log.Debug().Int64("message_id", upd.MessageID).Msg("unsupported post content ignored")
		return &Result{Ignored: true, IgnoredReason: "unsupported content"}, nil
	}

	resolved, err := s.links.ResolveActive(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve links: %w", err)
	}
	if len(resolved) == 0 {
		s.log.Info().
			Int64("telegram_channel_id", source.TelegramChannelID).
			Msg("no active links for channel")
		return &Result{Total: 0, Processed: 0}, nil
	}

	// Sibling links are independent: deliver concurrently, but respond only
	// after every attempt is durable in the ledger.
	outcomes := make([]bool, len(resolved))
	var wg sync.WaitGroup
	for i := range resolved {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = s.processLink(ctx, source, resolved[i], upd)
		}(i)
	}
	wg.Wait()

	res := &Result{Total: len(resolved)}
	for _, ok := range outcomes {
		if ok {
			res.Processed++
		}
	}
	return res, nil
}

// processLink runs one link's pipeline to completion and reports success.
// Every path writes exactly one delivery record.
func (s *Service) processLink(ctx context.Context, source *models.SourceChannel, rl repository.ResolvedLink, upd *Update) bool {
	rec := &models.DeliveryRecord{
		LinkID:            rl.Link.ID,
		TelegramMessageID: upd.MessageID,
		ContentKind:       upd.Content.RecordKind(),
	}

	decision, err := s.limiter.CheckAndReserve(ctx, rl.Link.TenantID)
	switch {
	case err != nil:
		s.fail(rec, fmt.Sprintf("quota check failed: %v", err))
	case decision == limiter.QuotaExceeded:
		s.log.Warn().
			Str("link_id", rl.Link.ID.String()).
			Str("tenant_id", rl.Link.TenantID.String()).
			Msg("daily limit reached, skipping delivery")
		s.fail(rec, limiter.DailyLimitDetail)
	default:
		maxMsgID, err := s.engine.Deliver(ctx, source, &rl.Destination, upd.Content)
		if err != nil {
			s.log.Error().Err(err).
				Str("link_id", rl.Link.ID.String()).
				Msg("delivery failed")
			s.fail(rec, err.Error())
		} else {
			rec.Status = models.DeliveryStatusSuccess
			rec.MaxMessageID = &maxMsgID
			s.log.Info().
				Str("link_id", rl.Link.ID.String()).
				Str("max_message_id", maxMsgID).
				Msg("post relayed")
		}
	}

	if err := s.records.Create(ctx, rec); err != nil {
		// the ledger write itself failed; nothing more to do than log
		s.log.Error().Err(err).
			Str("link_id", rl.Link.ID.String()).
			Msg("failed to write delivery record")
		return false
	}

	s.publish(ctx, rl, rec)

	return rec.Status == models.DeliveryStatusSuccess
}

func (s *Service) fail(rec *models.DeliveryRecord, detail string) {
	rec.Status = models.DeliveryStatusFailed
	d := truncateDetail(detail)
	rec.ErrorDetail = &d
}

func (s *Service) publish(ctx context.Context, rl repository.ResolvedLink, rec *models.DeliveryRecord) {
	if s.events == nil {
		return
	}

	event := DeliveryEvent{
		LinkID:            rec.LinkID,
		TenantID:          rl.Link.TenantID,
		Status:            rec.Status,
		ContentKind:       rec.ContentKind,
		TelegramMessageID: rec.TelegramMessageID,
	}
	if rec.MaxMessageID != nil {
		event.MaxMessageID = *rec.MaxMessageID
	}
	if rec.ErrorDetail != nil {
		event.ErrorDetail = *rec.ErrorDetail
	}

	if err := s.events.PublishDelivery(ctx, event); err != nil {
		s.log.Error().Err(err).Msg("failed to publish delivery event")
	}
}
