// Package telegram is a minimal Telegram Bot API client covering the calls
// the relay needs: bot identity, chat lookup, webhook lifecycle and file
// download for photo relaying.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every Bot API call. A hung call is a failure, not a
// stuck delivery.
const DefaultTimeout = 10 * time.Second

// Client calls the Telegram Bot API with a single bot token.
type Client struct {
	apiBase  string
	fileBase string
	token    string
	http     *http.Client
}

// NewClient creates a client for one bot token. apiBase and fileBase are
// overridable for the emulator and tests; pass "" for the production
// endpoints.
func NewClient(apiBase, fileBase, token string, timeout time.Duration) *Client {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	if fileBase == "" {
		fileBase = "https://api.telegram.org/file"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiBase:  strings.TrimRight(apiBase, "/"),
		fileBase: strings.TrimRight(fileBase, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// BotInfo describes the bot behind a token.
type BotInfo struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// ChatInfo describes a channel or chat.
type ChatInfo struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

// FileInfo is the getFile result; FilePath feeds DownloadFile.
type FileInfo struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

// WebhookInfo is the getWebhookInfo result.
type WebhookInfo struct {
	URL                  string `json:"url"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorDate        int64  `json:"last_error_date"`
	LastErrorMessage     string `json:"last_error_message"`
	MaxConnections       int    `json:"max_connections"`
	AllowedUpdatesJoined string `json:"-"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	if params != nil {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: read body: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !envelope.OK {
		desc := envelope.Description
		if desc == "" {
			desc = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("telegram %s: %s", method, desc)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns the bot's identity.
func (c *Client) GetMe(ctx context.Context) (*BotInfo, error) {
	var info BotInfo
	if err := c.call(ctx, "getMe", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetChatByUsername resolves a public channel by @username.
func (c *Client) GetChatByUsername(ctx context.Context, username string) (*ChatInfo, error) {
	username = strings.TrimPrefix(username, "@")

	params := url.Values{}
	params.Set("chat_id", "@"+username)

	var info ChatInfo
	if err := c.call(ctx, "getChat", params, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetWebhook registers webhookURL for channel_post updates only, so the
// relay never receives private messages or edits it would ignore anyway.
func (c *Client) SetWebhook(ctx context.Context, webhookURL string, maxConnections int) error {
	if maxConnections <= 0 {
		maxConnections = 40
	}

	params := url.Values{}
	params.Set("url", webhookURL)
	params.Set("max_connections", fmt.Sprintf("%d", maxConnections))
	params.Set("allowed_updates", `["channel_post"]`)

	return c.call(ctx, "setWebhook", params, nil)
}

// DeleteWebhook removes the bot's webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", nil, nil)
}

// GetWebhookInfo returns the current webhook registration state.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := c.call(ctx, "getWebhookInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetFile resolves a file_id to a downloadable file path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*FileInfo, error) {
	params := url.Values{}
	params.Set("file_id", fileID)

	var info FileInfo
	if err := c.call(ctx, "getFile", params, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadFile fetches raw file bytes for a path returned by GetFile.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.fileBase, c.token, strings.TrimLeft(filePath, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram file download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram file download: read body: %w", err)
	}
	return data, nil
}
