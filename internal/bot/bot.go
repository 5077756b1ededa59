// Package bot talks to a Slack-style chat platform API.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/router-for-me/APIGateway/internal/config"
	"github.com/tidwall/gjson"
)

// ErrNotConfigured is returned when token or base URL are missing.
var ErrNotConfigured = errors.New("bot: not configured")

// NotConfiguredMessage is the client-facing text for ErrNotConfigured.
const NotConfiguredMessage = "Bot is not configured"

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 4 << 20
	channelTypes    = "public_channel,private_channel"
)

// APIError is a platform-reported failure.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Channel is a conversation visible to the bot.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// PostedMessage identifies a message accepted by the platform.
type PostedMessage struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// Client calls the bot platform API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client from bot config. A nil httpClient uses a 10s timeout.
func NewClient(cfg config.BotConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		token:   strings.TrimSpace(cfg.Token),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		http:    httpClient,
	}
}

// Configured reports whether token and base URL are set.
func (c *Client) Configured() bool {
	return c != nil && c.token != "" && c.baseURL != ""
}

// PostMessage sends text to channel via chat.postMessage.
func (c *Client) PostMessage(ctx context.Context, channel, text string, attachments json.RawMessage) (PostedMessage, error) {
	if !c.Configured() {
		return PostedMessage{}, ErrNotConfigured
	}
	payload := map[string]any{
		"token":   c.token,
		"channel": channel,
		"text":    text,
	}
	if hasAttachments(attachments) {
		payload["attachments"] = attachments
	}
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return PostedMessage{}, fmt.Errorf("bot: encode message: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if errReq != nil {
		return PostedMessage{}, fmt.Errorf("bot: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")

	result, errDo := c.do(req)
	if errDo != nil {
		return PostedMessage{}, errDo
	}
	return PostedMessage{Channel: channel, TS: result.Get("ts").String()}, nil
}

// ListChannels returns public and private channels via conversations.list.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("token", c.token)
	q.Set("types", channelTypes)
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/conversations.list?"+q.Encode(), nil)
	if errReq != nil {
		return nil, fmt.Errorf("bot: build request: %w", errReq)
	}

	result, errDo := c.do(req)
	if errDo != nil {
		return nil, errDo
	}
	channels := make([]Channel, 0)
	result.Get("channels").ForEach(func(_, ch gjson.Result) bool {
		channels = append(channels, Channel{
			ID:        ch.Get("id").String(),
			Name:      ch.Get("name").String(),
			IsPrivate: ch.Get("is_private").Bool(),
		})
		return true
	})
	return channels, nil
}

// do runs req and returns the parsed body when the platform reports ok.
func (c *Client) do(req *http.Request) (gjson.Result, error) {
	resp, errDo := c.http.Do(req)
	if errDo != nil {
		return gjson.Result{}, fmt.Errorf("bot: request: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if errRead != nil {
		return gjson.Result{}, fmt.Errorf("bot: read response: %w", errRead)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("bot: invalid response (status %d)", resp.StatusCode)
	}
	result := gjson.ParseBytes(raw)
	if resp.StatusCode != http.StatusOK || !result.Get("ok").Bool() {
		msg := strings.TrimSpace(result.Get("error").String())
		if msg == "" {
			msg = "Unknown error"
		}
		return gjson.Result{}, &APIError{Message: msg}
	}
	return result, nil
}

func hasAttachments(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != "[]" && trimmed != "{}"
}
