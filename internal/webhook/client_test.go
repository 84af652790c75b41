package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	Name string `json:"name"`
}

func TestWebhookSend(t *testing.T) {
	secret := []byte("my-secret")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))

		body, _ := io.ReadAll(r.Body)
		assert.True(t, Verify(secret, body, r.Header.Get(SignatureHeader)))

		var p Payload
		require.NoError(t, json.Unmarshal(body, &p))
		assert.Equal(t, "sepolia", p.Network)
		var events []event
		require.NoError(t, json.Unmarshal(p.Events, &events))
		assert.Equal(t, []event{{Name: "Funded"}}, events)

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, Secret: string(secret)})
	assert.NoError(t, client.Send(context.Background(), "sepolia", []event{{Name: "Funded"}}))
}

func TestWebhook_NoSecretNoSignature(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	assert.NoError(t, NewClient(Config{URL: ts.URL}).Send(context.Background(), "", []event{{}}))
}

func TestWebhook_EmptyIsNoop(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL})
	assert.NoError(t, client.Send(context.Background(), "x", nil))
	assert.NoError(t, client.Send(context.Background(), "x", []event{}))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestWebhook_Retry(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(Config{
		URL:            ts.URL,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	assert.NoError(t, client.Send(context.Background(), "", []event{{}}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, MaxAttempts: 5, InitialBackoff: time.Millisecond})
	err := client.Send(context.Background(), "", []event{{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestWebhook_TooManyRequestsRetried(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	assert.Error(t, client.Send(context.Background(), "", []event{{}}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestWebhook_ContextCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, MaxAttempts: 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, client.Send(ctx, "", []event{{}}), context.Canceled)
}

func TestSignVerify(t *testing.T) {
	secret, body := []byte("k"), []byte(`{"a":1}`)
	sig := Sign(secret, body)
	assert.True(t, Verify(secret, body, sig))
	assert.False(t, Verify([]byte("other"), body, sig))
	assert.False(t, Verify(secret, body, "not-hex"))
}
