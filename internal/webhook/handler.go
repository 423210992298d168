package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crossposter/relay/internal/limiter"
	"github.com/crossposter/relay/internal/logger"
	"github.com/crossposter/relay/internal/relay"
	"github.com/crossposter/relay/internal/repository"
)

// maxBodyBytes bounds inbound webhook payloads.
const maxBodyBytes = 1 << 20

// defaultHistoryPageSize is used when the history query carries no limit.
const defaultHistoryPageSize = 50

// Handler handles HTTP requests for the relay service.
type Handler struct {
	service  *relay.Service
	channels *repository.ChannelsRepository
	links    *repository.LinksRepository
	records  *repository.RecordsRepository
	quota    *limiter.DailyQuotaLimiter
	log      *logger.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *relay.Service, channels *repository.ChannelsRepository, links *repository.LinksRepository, records *repository.RecordsRepository, quota *limiter.DailyQuotaLimiter, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		service:  service,
		channels: channels,
		links:    links,
		records:  records,
		quota:    quota,
		log:      log,
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// TelegramWebhook handles POST /webhook/telegram/{secret}.
//
// The response is deliberately flat: unknown secrets and ignored updates are
// acknowledged with a 200 so callers cannot probe secret validity and
// Telegram does not disable the webhook over repeated errors. Only a
// malformed body earns a 400.
func (h *Handler) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), secret, body)
	switch {
	case errors.Is(err, relay.ErrUnknownWebhook):
		h.log.Warn().Msg("webhook received with unknown secret")
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	case errors.Is(err, relay.ErrMalformedPayload):
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("webhook processing failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if result.Ignored {
		respondJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": result.IgnoredReason,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"processed": result.Processed,
		"total":     result.Total,
	})
}

// WebhookHealth handles GET /webhook/telegram/{secret}/health. Useful for
// verifying that a registered webhook URL is reachable.
func (h *Handler) WebhookHealth(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")

	ch, err := h.channels.GetSourceByWebhookSecretAny(r.Context(), secret)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "webhook not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := map[string]any{
		"status":              "healthy",
		"telegram_channel_id": ch.TelegramChannelID,
		"is_active":           ch.IsActive,
	}
	if remaining, err := h.quota.Remaining(r.Context(), ch.TenantID); err == nil {
		payload["quota_remaining"] = remaining
	} else {
		h.log.Warn().Err(err).Msg("quota lookup failed for webhook health")
	}

	respondJSON(w, http.StatusOK, payload)
}

// LinkHistory handles GET /api/v1/links/{linkID}/history.
func (h *Handler) LinkHistory(w http.ResponseWriter, r *http.Request) {
	linkID, err := uuid.Parse(chi.URLParam(r, "linkID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid link id")
		return
	}

	if _, err := h.links.GetByID(r.Context(), linkID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "link not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	limit := queryInt(r, "limit", defaultHistoryPageSize)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryPageSize
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.records.ListByLink(r.Context(), linkID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items":  records,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if val := r.URL.Query().Get(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
