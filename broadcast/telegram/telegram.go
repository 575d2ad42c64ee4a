package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/marcelsud/webhook-relay/broadcast"
	"github.com/marcelsud/webhook-relay/webhook/payload"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultParseMode = tgbotapi.ModeMarkdown

var (
	ErrMissingToken  = errors.New("telegram channel has no botToken credential")
	ErrMissingChatID = errors.New("telegram channel has no chatId config")
)

// Broadcaster sends messages to one Telegram chat, optionally inside a forum thread
type Broadcaster struct {
	token     string
	chatID    string
	threadID  string
	parseMode string
	endpoint  string
	client    *http.Client
}

// Option customizes a Broadcaster
type Option func(*Broadcaster)

// WithHTTPClient replaces the instrumented default client
func WithHTTPClient(client *http.Client) Option {
	return func(b *Broadcaster) {
		b.client = client
	}
}

// WithAPIEndpoint points the bot at another Bot API server, format "<base>/bot%s/%s"
func WithAPIEndpoint(endpoint string) Option {
	return func(b *Broadcaster) {
		b.endpoint = endpoint
	}
}

// NewClient returns an HTTP client traced with OpenTelemetry
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

/* New binds a broadcaster to a channel
 * credentials: botToken
 * config: chatId, messageThreadId (optional), parseMode (optional, Markdown by default)
 */
func New(config, credentials payload.Value, opts ...Option) (*Broadcaster, error) {
	b := &Broadcaster{
		token:     credentials.Get("botToken").Text(),
		chatID:    config.Get("chatId").Text(),
		threadID:  config.Get("messageThreadId").Text(),
		parseMode: config.StringField("parseMode"),
		endpoint:  tgbotapi.APIEndpoint,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.token == "" {
		return nil, ErrMissingToken
	}
	if b.chatID == "" {
		return nil, ErrMissingChatID
	}
	if b.parseMode == "" {
		b.parseMode = defaultParseMode
	}
	if b.client == nil {
		b.client = NewClient(30 * time.Second)
	}
	return b, nil
}

// Factory registers Telegram in a broadcast.Registry; the options apply to every built broadcaster
func Factory(opts ...Option) broadcast.Factory {
	return func(config, credentials payload.Value) (broadcast.Broadcaster, error) {
		return New(config, credentials, opts...)
	}
}

// TestConnection calls getMe with the bound bot token
func (b *Broadcaster) TestConnection(ctx context.Context) bool {
	_, err := b.bot(ctx).GetMe()
	return err == nil
}

// SendMessage posts text to the bound chat
func (b *Broadcaster) SendMessage(ctx context.Context, text string) (broadcast.Response, error) {
	params := tgbotapi.Params{}
	params["chat_id"] = b.chatID
	params["text"] = text
	params.AddNonEmpty("parse_mode", b.parseMode)
	params.AddNonEmpty("message_thread_id", b.threadID)

	resp, err := b.bot(ctx).MakeRequest("sendMessage", params)
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return broadcast.Response{StatusCode: apiErr.Code, Body: apiErr.Message}, fmt.Errorf("sending telegram message: %w", err)
		}
		return broadcast.Response{}, fmt.Errorf("sending telegram message: %w", err)
	}
	return broadcast.Response{StatusCode: http.StatusOK, Body: string(resp.Result)}, nil
}

// bot builds a request scoped Bot API client; constructing it directly skips the getMe call NewBotAPI makes
func (b *Broadcaster) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  b.token,
		Client: contextClient{ctx: ctx, client: b.client},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(b.endpoint)
	return bot
}

// contextClient binds outgoing Bot API requests to the attempt context
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
