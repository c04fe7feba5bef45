package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dubonzi/otelresty"
	"github.com/go-resty/resty/v2"
)

// Client is a thin Bot API client.
type Client struct {
	http    *resty.Client
	timeout time.Duration
}

// Chat is the chat a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// User is a message sender.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Message is an incoming text message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text"`
}

// Update is one getUpdates entry.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description"`
}

// SendOptions tweak sendMessage.
type SendOptions struct {
	ParseMode        string
	DisablePreview   bool
	ReplyToMessageID int64
}

// NewClient builds a client for token. apiBase defaults to the public API.
func NewClient(apiBase, token string, timeout time.Duration) *Client {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiBase, "/") + "/bot" + token).
		SetHeader("Content-Type", "application/json")
	otelresty.TraceClient(client, otelresty.WithTracerName("telegram-http"))
	return &Client{http: client, timeout: timeout}
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, opts SendOptions) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": opts.DisablePreview,
	}
	if opts.ParseMode != "" {
		body["parse_mode"] = opts.ParseMode
	}
	if opts.ReplyToMessageID != 0 {
		body["reply_to_message_id"] = opts.ReplyToMessageID
	}

	var out apiResponse[Message]
	res, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).SetError(&out).Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	if res.IsError() || !out.OK {
		return fmt.Errorf("sendMessage: status %d: %s", res.StatusCode(), out.Description)
	}
	return nil
}

// GetUpdates long-polls for updates starting at offset. wait is the server
// side long-poll timeout in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, wait int) ([]Update, error) {
	timeout := time.Duration(wait+10) * time.Second
	if timeout < 30*time.Second {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out apiResponse[[]Update]
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"offset":          offset,
			"timeout":         wait,
			"allowed_updates": []string{"message"},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/getUpdates")
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	if res.IsError() || !out.OK {
		return nil, fmt.Errorf("getUpdates: status %d: %s", res.StatusCode(), out.Description)
	}
	return out.Result, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out apiResponse[User]
	res, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&out).Get("/getMe")
	if err != nil {
		return User{}, fmt.Errorf("getMe: %w", err)
	}
	if res.IsError() || !out.OK {
		return User{}, fmt.Errorf("getMe: status %d: %s", res.StatusCode(), out.Description)
	}
	return out.Result, nil
}
