// Package telegram is a minimal Telegram Bot API client: long polling for
// updates and sending text messages.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const defaultAPIRoot = "https://api.telegram.org"

// MaxMessageLength is the Bot API limit for one text message
const MaxMessageLength = 4096

// Client calls Bot API methods for one bot token
type Client struct {
	token   string
	apiRoot string
	http    *http.Client
}

// NewClient creates a client. apiRoot may be empty for the public API.
func NewClient(token, apiRoot string) *Client {
	if strings.TrimSpace(apiRoot) == "" {
		apiRoot = defaultAPIRoot
	}
	return &Client{
		token:   token,
		apiRoot: strings.TrimRight(apiRoot, "/"),
		// long polls hold the connection for the server-side timeout
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

// APIError is an error reported by the Bot API
type APIError struct {
	Code        int
	Description string
	RetryAfter  int // seconds, set on 429
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// Temporary reports whether retrying the same request may succeed
func (e *APIError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// User is a Telegram account
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat is the conversation a message belongs to
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Message is an incoming message
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
}

// Update is one entry returned by getUpdates
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// GetMe returns the bot's own account
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", map[string]any{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates with id >= offset. timeout is the
// server-side wait in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	payload := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends plain text to a chat
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": id,
		"text":    text,
	}, nil)
}

// SendTyping shows the typing indicator for a few seconds
func (c *Client) SendTyping(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": id,
		"action":  "typing",
	}, nil)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	url := c.apiRoot + "/bot" + c.token + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the URL holds the token
		return fmt.Errorf("telegram %s request failed: %s", method, strings.ReplaceAll(err.Error(), c.token, "<token>"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: failed to read response: %w", method, err)
	}

	parsed := gjson.ParseBytes(respBody)
	if !parsed.Get("ok").Bool() {
		apiErr := &APIError{
			Code:        int(parsed.Get("error_code").Int()),
			Description: parsed.Get("description").String(),
			RetryAfter:  int(parsed.Get("parameters.retry_after").Int()),
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if apiErr.Description == "" {
			apiErr.Description = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal([]byte(parsed.Get("result").Raw), out); err != nil {
			return fmt.Errorf("telegram %s: failed to decode result: %w", method, err)
		}
	}
	return nil
}
