package collaborators

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiq/automata/pkg/models"
)

func TestWebhookNotifierDeliversPayload(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(slog.Default(), server.URL)

	err := notifier.Notify(context.Background(), "tenant-1", models.NotifyParams{
		Channel:     "email",
		RecipientID: "user-1",
		Template:    "done",
		Data:        map[string]any{"task": "t1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "tenant-1", received["tenant_id"])
	assert.Equal(t, "email", received["channel"])
	assert.Equal(t, "user-1", received["recipient_id"])
	assert.Equal(t, "done", received["template"])
}

func TestWebhookRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	invoker := NewWebhookAgentInvoker(slog.Default(), server.URL)
	invoker.client.delay = time.Millisecond

	err := invoker.InvokeAgent(context.Background(), "tenant-1", models.InvokeAgentParams{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(slog.Default(), server.URL)
	notifier.client.delay = time.Millisecond

	err := notifier.Notify(context.Background(), "tenant-1", models.NotifyParams{Channel: "email", Template: "done"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookUnconfigured(t *testing.T) {
	notifier := NewWebhookNotifier(slog.Default(), "")

	err := notifier.Notify(context.Background(), "tenant-1", models.NotifyParams{Channel: "email", Template: "done"})
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
}
