// Package maxapi is an HTTP client for the Max Bot API. It centralizes
// authentication, base URL and outbound pacing in a single place.
package maxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every Max API call.
const DefaultTimeout = 10 * time.Second

// Client calls the Max Bot API with a single bot token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	pacer   *RateLimiter
}

// NewClient creates a client for one bot token. baseURL is overridable for
// the emulator and tests; pass "" for the production endpoint. A nil pacer
// disables pacing.
func NewClient(baseURL, token string, timeout time.Duration, pacer *RateLimiter) *Client {
	if baseURL == "" {
		baseURL = "https://botapi.max.ru"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		pacer:   pacer,
	}
}

// UploadResult is the token handed back by the uploads endpoint. The raw
// body is kept verbatim because the send call echoes it back as the
// attachment payload.
type UploadResult struct {
	Token string
	Raw   json.RawMessage
}

// messageResponse is the envelope of a successful /messages call.
type messageResponse struct {
	MessageID string `json:"message_id"`
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, jsonBody any, rawBody []byte, contentType string) ([]byte, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("max api pacing: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if params != nil {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	switch {
	case jsonBody != nil:
		data, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case rawBody != nil:
		body = bytes.NewReader(rawBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("max api [%s %s]: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("max api [%s %s]: read body: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests && c.pacer != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			c.pacer.SetRetryAfter(secs)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("max api [%s %s]: status %d: %s", method, path, resp.StatusCode, respBody)
	}

	return respBody, nil
}

// SendText sends a text message to a chat and returns the outbound message
// id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (string, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))

	body, err := c.request(ctx, http.MethodPost, "/messages", params, map[string]any{"text": text}, nil, "")
	if err != nil {
		return "", err
	}

	var msg messageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("max api send text: decode response: %w", err)
	}
	return msg.MessageID, nil
}

// UploadImage uploads raw photo bytes and returns the attachment token for a
// later send.
func (c *Client) UploadImage(ctx context.Context, chatID int64, data []byte) (*UploadResult, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("type", "photo")

	body, err := c.request(ctx, http.MethodPost, "/uploads", params, nil, data, "image/jpeg")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Token string `json:"token"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("max api upload: decode response: %w", err)
	}

	token := parsed.Token
	if token == "" {
		token = parsed.ID
	}
	if token == "" {
		return nil, fmt.Errorf("max api upload: response carries no attachment token")
	}

	return &UploadResult{Token: token, Raw: json.RawMessage(body)}, nil
}

// SendImage sends a message carrying a previously uploaded image attachment
// with an optional caption, and returns the outbound message id.
func (c *Client) SendImage(ctx context.Context, chatID int64, upload *UploadResult, caption string) (string, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))

	payload := map[string]any{
		"attachments": []map[string]any{
			{"type": "image", "payload": upload.Raw},
		},
	}
	if caption != "" {
		payload["text"] = caption
	}

	body, err := c.request(ctx, http.MethodPost, "/messages", params, payload, nil, "")
	if err != nil {
		return "", err
	}

	var msg messageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("max api send image: decode response: %w", err)
	}
	return msg.MessageID, nil
}
