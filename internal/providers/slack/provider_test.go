package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/paysync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookProviderPostsJSON(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookProvider(srv.URL, srv.Client())
	require.NoError(t, p.PostMessage(context.Background(), "#payments-alerts", "hello"))
	assert.Equal(t, "#payments-alerts", got.Channel)
	assert.Equal(t, "hello", got.Text)
}

func TestWebhookProviderReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewWebhookProvider(srv.URL, srv.Client()).PostMessage(context.Background(), "", "hello")
	assert.ErrorContains(t, err, "status 403")
}

func TestNewProviderFallsBackToNoOp(t *testing.T) {
	_, ok := NewProvider(config.Config{}).(*NoOpProvider)
	assert.True(t, ok)

	var cfg config.Config
	cfg.Alert.SlackWebhookURL = "https://hooks.slack.test/x"
	_, ok = NewProvider(cfg).(*WebhookProvider)
	assert.True(t, ok)
}
