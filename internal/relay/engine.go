package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/crossposter/relay/internal/maxapi"
	"github.com/crossposter/relay/internal/models"
	"github.com/crossposter/relay/internal/telegram"
	"github.com/crossposter/relay/internal/vault"
)

// EngineConfig points the delivery engine at the two platforms.
type EngineConfig struct {
	TelegramAPIBase     string
	TelegramFileAPIBase string
	MaxAPIBase          string

	// per outbound call; DefaultTimeout applies when zero
	Timeout time.Duration
}

// Engine performs the outbound platform calls for one delivery. It decrypts
// credentials per attempt and holds no credential cache, so rotated tokens
// take effect immediately and multiple instances stay consistent.
//
// Deliveries are single-attempt. Retrying inside the webhook handler risks
// duplicate outbound posts on transient errors; the ledger is the tool for
// spotting failures.
type Engine struct {
	vault *vault.Vault
	cfg   EngineConfig
	pacer *maxapi.RateLimiter
}

// NewEngine creates a delivery engine.
func NewEngine(v *vault.Vault, cfg EngineConfig) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = maxapi.DefaultTimeout
	}
	return &Engine{
		vault: v,
		cfg:   cfg,
		pacer: maxapi.DefaultRateLimiter(),
	}
}

// Deliver relays one piece of content through one link and returns the
// outbound Max message id on success.
func (e *Engine) Deliver(ctx context.Context, source *models.SourceChannel, dest *models.DestinationChannel, content Content) (string, error) {
	switch content.Class {
	case ClassText:
		return e.deliverText(ctx, dest, content.Text)
	case ClassPhoto:
		return e.deliverPhoto(ctx, source, dest, content)
	default:
		return "", ErrUnsupportedContent
	}
}

func (e *Engine) deliverText(ctx context.Context, dest *models.DestinationChannel, text string) (string, error) {
	maxToken, err := e.vault.Decrypt(dest.BotTokenEnc)
	if err != nil {
		return "", fmt.Errorf("destination credential: %w", err)
	}

	client := maxapi.NewClient(e.cfg.MaxAPIBase, maxToken, e.cfg.Timeout, e.pacer)
	msgID, err := client.SendText(ctx, dest.MaxChatID, text)
	if err != nil {
		return "", err
	}
	return msgID, nil
}

func (e *Engine) deliverPhoto(ctx context.Context, source *models.SourceChannel, dest *models.DestinationChannel, content Content) (string, error) {
	tgToken, err := e.vault.Decrypt(source.BotTokenEnc)
	if err != nil {
		return "", fmt.Errorf("source credential: %w", err)
	}

	tg := telegram.NewClient(e.cfg.TelegramAPIBase, e.cfg.TelegramFileAPIBase, tgToken, e.cfg.Timeout)

	file, err := tg.GetFile(ctx, content.PhotoFileID)
	if err != nil {
		return "", fmt.Errorf("fetch photo metadata: %w", err)
	}

	data, err := tg.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return "", fmt.Errorf("download photo: %w", err)
	}

	maxToken, err := e.vault.Decrypt(dest.BotTokenEnc)
	if err != nil {
		return "", fmt.Errorf("destination credential: %w", err)
	}

	max := maxapi.NewClient(e.cfg.MaxAPIBase, maxToken, e.cfg.Timeout, e.pacer)

	upload, err := max.UploadImage(ctx, dest.MaxChatID, data)
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}

	msgID, err := max.SendImage(ctx, dest.MaxChatID, upload, content.Caption)
	if err != nil {
		return "", fmt.Errorf("send photo: %w", err)
	}
	return msgID, nil
}
