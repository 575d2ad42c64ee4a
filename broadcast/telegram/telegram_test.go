package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/webhook-relay/broadcast"
	"github.com/marcelsud/webhook-relay/webhook/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:test-token"

type fakeBotAPI struct {
	mu       sync.Mutex
	requests []url.Values
	paths    []string
	fail     bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.requests = append(f.requests, r.PostForm)
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path != "/bot"+testToken+"/getMe" && r.URL.Path != "/bot"+testToken+"/sendMessage" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
		return
	}
	if fail {
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
		return
	}
	if r.URL.Path == "/bot"+testToken+"/getMe" {
		fmt.Fprint(w, `{"ok":true,"result":{"id":123456,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
		return
	}
	fmt.Fprint(w, `{"ok":true,"result":{"message_id":42,"chat":{"id":-100200,"type":"supergroup"},"date":1709634030,"text":"hello"}}`)
}

func newTestBroadcaster(t *testing.T, api *fakeBotAPI, config, credentials string) *Broadcaster {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	cfg, err := payload.Parse([]byte(config))
	require.NoError(t, err)
	creds, err := payload.Parse([]byte(credentials))
	require.NoError(t, err)

	b, err := New(cfg, creds, WithAPIEndpoint(server.URL+"/bot%s/%s"), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return b
}

func TestNew(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		_, err := New(payload.ObjectOf(map[string]any{"chatId": "1"}), payload.ObjectOf(nil))
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("missing chat", func(t *testing.T) {
		_, err := New(payload.ObjectOf(nil), payload.ObjectOf(map[string]any{"botToken": testToken}))
		assert.ErrorIs(t, err, ErrMissingChatID)
	})

	t.Run("defaults", func(t *testing.T) {
		b, err := New(payload.ObjectOf(map[string]any{"chatId": "@alerts"}), payload.ObjectOf(map[string]any{"botToken": testToken}))
		require.NoError(t, err)
		assert.Equal(t, "Markdown", b.parseMode)
		assert.NotNil(t, b.client)
	})
}

func TestTestConnection(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		api := &fakeBotAPI{}
		b := newTestBroadcaster(t, api, `{"chatId": -100200}`, `{"botToken": "`+testToken+`"}`)

		assert.True(t, b.TestConnection(context.Background()))
		assert.Equal(t, []string{"/bot" + testToken + "/getMe"}, api.paths)
	})

	t.Run("wrong token", func(t *testing.T) {
		api := &fakeBotAPI{}
		b := newTestBroadcaster(t, api, `{"chatId": -100200}`, `{"botToken": "999:wrong"}`)

		assert.False(t, b.TestConnection(context.Background()))
	})

	t.Run("unreachable server", func(t *testing.T) {
		b, err := New(
			payload.ObjectOf(map[string]any{"chatId": "1"}),
			payload.ObjectOf(map[string]any{"botToken": testToken}),
			WithAPIEndpoint("http://127.0.0.1:1/bot%s/%s"),
			WithHTTPClient(&http.Client{Timeout: time.Second}),
		)
		require.NoError(t, err)

		assert.False(t, b.TestConnection(context.Background()))
	})
}

func TestSendMessage(t *testing.T) {
	t.Run("success - posts chat, thread and markdown", func(t *testing.T) {
		api := &fakeBotAPI{}
		b := newTestBroadcaster(t, api, `{"chatId": -100200, "messageThreadId": 7}`, `{"botToken": "`+testToken+`"}`)

		resp, err := b.SendMessage(context.Background(), "*New event*: push")

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Body, `"message_id":42`)

		require.Len(t, api.requests, 1)
		form := api.requests[0]
		assert.Equal(t, "-100200", form.Get("chat_id"))
		assert.Equal(t, "*New event*: push", form.Get("text"))
		assert.Equal(t, "Markdown", form.Get("parse_mode"))
		assert.Equal(t, "7", form.Get("message_thread_id"))
	})

	t.Run("success - no thread", func(t *testing.T) {
		api := &fakeBotAPI{}
		b := newTestBroadcaster(t, api, `{"chatId": "@alerts", "parseMode": "HTML"}`, `{"botToken": "`+testToken+`"}`)

		_, err := b.SendMessage(context.Background(), "<b>hi</b>")

		require.NoError(t, err)
		form := api.requests[0]
		assert.Equal(t, "@alerts", form.Get("chat_id"))
		assert.Equal(t, "HTML", form.Get("parse_mode"))
		_, hasThread := form["message_thread_id"]
		assert.False(t, hasThread)
	})

	t.Run("api error", func(t *testing.T) {
		api := &fakeBotAPI{fail: true}
		b := newTestBroadcaster(t, api, `{"chatId": 1}`, `{"botToken": "`+testToken+`"}`)

		resp, err := b.SendMessage(context.Background(), "hello")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat not found")
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("cancelled context", func(t *testing.T) {
		api := &fakeBotAPI{}
		b := newTestBroadcaster(t, api, `{"chatId": 1}`, `{"botToken": "`+testToken+`"}`)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := b.SendMessage(ctx, "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFactory(t *testing.T) {
	registry := broadcast.NewRegistry()
	registry.Register(broadcast.Telegram, Factory())

	creds := payload.ObjectOf(map[string]any{"botToken": testToken})

	assert.NotNil(t, registry.Get(broadcast.Telegram, payload.ObjectOf(map[string]any{"chatId": "1"}), creds))
	assert.Nil(t, registry.Get(broadcast.Telegram, payload.ObjectOf(nil), creds), "misconfigured channels yield no broadcaster")
	assert.Nil(t, registry.Get(broadcast.Slack, payload.ObjectOf(nil), creds))
}
