package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/crossposter/relay/internal/config"
	"github.com/crossposter/relay/internal/database"
	"github.com/crossposter/relay/internal/limiter"
	"github.com/crossposter/relay/internal/logger"
	"github.com/crossposter/relay/internal/migrator"
	"github.com/crossposter/relay/internal/publisher"
	"github.com/crossposter/relay/internal/relay"
	"github.com/crossposter/relay/internal/repository"
	"github.com/crossposter/relay/internal/vault"
	"github.com/crossposter/relay/internal/webhook"
	"github.com/crossposter/relay/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting crosspost relay service")

	// fail closed: no valid key, no service
	key, err := cfg.DecodeEncryptionKey()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption key")
	}
	v, err := vault.New(key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create vault")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// migrations
	m, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migrator")
	}
	if err := m.Up(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// repositories
	channels := repository.NewChannelsRepository(db.GORM)
	links := repository.NewLinksRepository(db.GORM)
	records := repository.NewRecordsRepository(db.GORM)
	tenants := repository.NewTenantsRepository(db.GORM)

	// optional delivery event publishing
	var events relay.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer nc.Close()
		events = publisher.New(nc)
		log.Info().Str("url", cfg.NatsURL).Msg("delivery events enabled")
	}

	engine := relay.NewEngine(v, relay.EngineConfig{
		TelegramAPIBase:     cfg.TelegramAPIBase,
		TelegramFileAPIBase: cfg.TelegramFileAPIBase,
		MaxAPIBase:          cfg.MaxAPIBase,
		Timeout:             time.Duration(cfg.OutboundTimeoutSec) * time.Second,
	})

	quota := limiter.New(tenants, records)
	service := relay.NewService(channels, links, records, quota, engine, events, log)
	handler := webhook.NewHandler(service, channels, links, records, quota, log)

	go runRetentionCleanup(ctx, records, cfg, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           webhook.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.HTTPPort).Msg("relay listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}

	log.Info().Msg("relay stopped")
}

// runRetentionCleanup prunes old delivery records once a day.
func runRetentionCleanup(ctx context.Context, records *repository.RecordsRepository, cfg *config.Config, log *logger.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			deleted, err := records.DeleteOlderThan(ctx,
				now.AddDate(0, 0, -cfg.RetainSuccessDays),
				now.AddDate(0, 0, -cfg.RetainFailedDays),
			)
			if err != nil {
				log.Error().Err(err).Msg("retention cleanup failed")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("pruned old delivery records")
			}
		}
	}
}
