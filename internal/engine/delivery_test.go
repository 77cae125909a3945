package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tours-backend/internal/config"
)

func testWebhookConfig() config.WebhookConfig {
	return config.WebhookConfig{UserAgent: "OutdoorTours-BookingManager/1.0", MaxResponseBytes: 1024}
}

func TestDeliver_SendsHeadersAndBody(t *testing.T) {
	var gotHeaders http.Header
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewDeliveryClient(testWebhookConfig())
	res := client.Deliver(context.Background(), srv.URL, []byte(`{"event_type":"x"}`), "s3cret")

	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, http.StatusAccepted, res.Status)
	assert.Equal(t, `{"ok":true}`, res.Body)
	assert.Empty(t, res.Error)
	assert.Equal(t, `{"event_type":"x"}`, gotBody)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "OutdoorTours-BookingManager/1.0", gotHeaders.Get("User-Agent"))
	assert.Equal(t, "s3cret", gotHeaders.Get("X-Webhook-Secret"))
}

func TestDeliver_OmitsSecretHeaderWhenEmpty(t *testing.T) {
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Webhook-Secret"]
	}))
	defer srv.Close()

	res := NewDeliveryClient(testWebhookConfig()).Deliver(context.Background(), srv.URL, []byte(`{}`), "")
	assert.True(t, res.Success)
	assert.False(t, present, "secret header must not be sent without a secret")
}

func TestDeliver_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewDeliveryClient(testWebhookConfig()).Deliver(context.Background(), srv.URL, []byte(`{}`), "")
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Contains(t, res.Body, "nope")
	assert.Empty(t, res.Error, "an HTTP response is not a transport error")
}

func TestDeliver_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewDeliveryClient(testWebhookConfig()).Deliver(context.Background(), url, []byte(`{}`), "")
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestDeliver_InvalidURL(t *testing.T) {
	res := NewDeliveryClient(testWebhookConfig()).Deliver(context.Background(), "://bad", []byte(`{}`), "")
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Status)
	assert.Contains(t, res.Error, "build request")
}

func TestDeliver_TruncatesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer srv.Close()

	res := NewDeliveryClient(testWebhookConfig()).Deliver(context.Background(), srv.URL, []byte(`{}`), "")
	assert.True(t, res.Success)
	assert.Len(t, res.Body, 1024)
}

func TestDeliver_ConfiguredTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cfg := testWebhookConfig()
	cfg.Timeout = 50 * time.Millisecond
	res := NewDeliveryClient(cfg).Deliver(context.Background(), srv.URL, []byte(`{}`), "")
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Status)
	assert.NotEmpty(t, res.Error)
}
