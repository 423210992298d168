// webhookctl manages the Telegram webhook registration for a source channel.
//
// Usage:
//
//	webhookctl set    -channel <uuid>            register the webhook
//	webhookctl info   -channel <uuid>            show registration state
//	webhookctl delete -channel <uuid>            remove the registration
//	webhookctl rotate -channel <uuid>            replace the secret and re-register
//	webhookctl check  -channel <uuid> [-chat @x] verify the stored bot token
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/crossposter/relay/internal/config"
	"github.com/crossposter/relay/internal/database"
	"github.com/crossposter/relay/internal/repository"
	"github.com/crossposter/relay/internal/telegram"
	"github.com/crossposter/relay/internal/vault"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	channelID := fs.String("channel", "", "source channel id (uuid)")
	chat := fs.String("chat", "", "channel @username to resolve (check only)")
	maxConnections := fs.Int("max-connections", 40, "telegram webhook max_connections (set only)")
	_ = fs.Parse(os.Args[2:])

	if *channelID == "" {
		fmt.Fprintln(os.Stderr, "error: -channel is required")
		os.Exit(2)
	}
	id, err := uuid.Parse(*channelID)
	if err != nil {
		fatal("invalid channel id: %v", err)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key, err := cfg.DecodeEncryptionKey()
	if err != nil {
		fatal("encryption key: %v", err)
	}
	v, err := vault.New(key)
	if err != nil {
		fatal("vault: %v", err)
	}

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("connect database: %v", err)
	}
	defer db.Close()

	channels := repository.NewChannelsRepository(db.GORM)
	links := repository.NewLinksRepository(db.GORM)
	tenants := repository.NewTenantsRepository(db.GORM)

	source, err := channels.GetSourceByID(ctx, id)
	if err != nil {
		fatal("load source channel: %v", err)
	}

	token, err := v.Decrypt(source.BotTokenEnc)
	if err != nil {
		fatal("decrypt bot token: %v", err)
	}

	tg := telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramFileAPIBase, token, 0)

	switch command {
	case "set":
		if cfg.WebhookBaseURL == "" {
			fatal("WEBHOOK_BASE_URL must be set to register a webhook")
		}
		webhookURL := fmt.Sprintf("%s/webhook/telegram/%s",
			strings.TrimRight(cfg.WebhookBaseURL, "/"), source.WebhookSecret)
		if err := tg.SetWebhook(ctx, webhookURL, *maxConnections); err != nil {
			fatal("set webhook: %v", err)
		}
		if err := channels.UpdateSourceWebhookURL(ctx, source.ID, &webhookURL); err != nil {
			fatal("record webhook url: %v", err)
		}
		fmt.Printf("webhook registered: %s\n", webhookURL)

	case "info":
		info, err := tg.GetWebhookInfo(ctx)
		if err != nil {
			fatal("get webhook info: %v", err)
		}
		fmt.Printf("url:             %s\n", info.URL)
		fmt.Printf("pending updates: %d\n", info.PendingUpdateCount)
		fmt.Printf("max connections: %d\n", info.MaxConnections)
		if info.LastErrorMessage != "" {
			fmt.Printf("last error:      %s (%s)\n",
				info.LastErrorMessage, time.Unix(info.LastErrorDate, 0).UTC().Format(time.RFC3339))
		}

	case "rotate":
		secret := telegram.NewWebhookSecret()
		if err := channels.UpdateSourceWebhookSecret(ctx, source.ID, secret); err != nil {
			fatal("rotate secret: %v", err)
		}
		fmt.Println("secret rotated")
		if cfg.WebhookBaseURL != "" {
			webhookURL := fmt.Sprintf("%s/webhook/telegram/%s",
				strings.TrimRight(cfg.WebhookBaseURL, "/"), secret)
			if err := tg.SetWebhook(ctx, webhookURL, *maxConnections); err != nil {
				fatal("re-register webhook: %v", err)
			}
			if err := channels.UpdateSourceWebhookURL(ctx, source.ID, &webhookURL); err != nil {
				fatal("record webhook url: %v", err)
			}
			fmt.Printf("webhook re-registered: %s\n", webhookURL)
		}

	case "delete":
		if err := tg.DeleteWebhook(ctx); err != nil {
			fatal("delete webhook: %v", err)
		}
		if err := channels.UpdateSourceWebhookURL(ctx, source.ID, nil); err != nil {
			fatal("clear webhook url: %v", err)
		}
		fmt.Println("webhook removed")

	case "check":
		bot, err := tg.GetMe(ctx)
		if err != nil {
			fatal("get me: %v", err)
		}
		fmt.Printf("bot: @%s (id %d)\n", bot.Username, bot.ID)

		tenant, err := tenants.GetByID(ctx, source.TenantID)
		if err != nil {
			fatal("load tenant: %v", err)
		}
		activeLinks, err := links.CountActiveByTenant(ctx, source.TenantID)
		if err != nil {
			fatal("count links: %v", err)
		}
		fmt.Printf("tenant: %s, active links %d/%d\n", tenant.Email, activeLinks, tenant.MaxLinks)

		if *chat != "" {
			info, err := tg.GetChatByUsername(ctx, *chat)
			if err != nil {
				fatal("get chat: %v", err)
			}
			fmt.Printf("chat: %s (%s, id %d)\n", info.Title, info.Type, info.ID)
			if info.ID != source.TelegramChannelID {
				fmt.Printf("warning: chat id does not match stored channel id %d\n", source.TelegramChannelID)
			}
		}

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: webhookctl <set|info|delete|rotate|check> -channel <uuid> [flags]")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
