package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/practiq/automata/pkg/models"
)

const defaultWebhookTimeout = 30 * time.Second

// ErrWebhookNotConfigured is returned when an action kind is used but no
// delivery endpoint was configured for it.
var ErrWebhookNotConfigured = errors.New("webhook endpoint not configured")

// WebhookClient posts JSON payloads to a delivery endpoint with simple
// retry. It backs both the notifier and the agent invoker: the engine treats
// those services as opaque, so an HTTP handoff is all either needs.
type WebhookClient struct {
	logger   *slog.Logger
	url      string
	client   *http.Client
	attempts int
	delay    time.Duration
}

func NewWebhookClient(logger *slog.Logger, url string) *WebhookClient {
	return &WebhookClient{
		logger:   logger.With("module", "webhook"),
		url:      url,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		attempts: 3,
		delay:    time.Second,
	}
}

func (c *WebhookClient) post(ctx context.Context, payload any) error {
	if c == nil || c.url == "" {
		return ErrWebhookNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.logger.InfoContext(ctx, "Webhook retry", "attempt", attempt, "url", c.url)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.delay):
			}
		}

		lastErr = c.once(ctx, body)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", c.attempts, lastErr)
}

func (c *WebhookClient) once(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// WebhookNotifier hands notify actions to the delivery service endpoint.
type WebhookNotifier struct {
	client *WebhookClient
}

func NewWebhookNotifier(logger *slog.Logger, url string) *WebhookNotifier {
	return &WebhookNotifier{client: NewWebhookClient(logger, url)}
}

func (n *WebhookNotifier) Notify(ctx context.Context, tenantID string, params models.NotifyParams) error {
	return n.client.post(ctx, map[string]any{
		"tenant_id":    tenantID,
		"channel":      params.Channel,
		"recipient_id": params.RecipientID,
		"template":     params.Template,
		"data":         params.Data,
	})
}

// WebhookAgentInvoker hands invoke_agent actions to the agent runtime
// endpoint.
type WebhookAgentInvoker struct {
	client *WebhookClient
}

func NewWebhookAgentInvoker(logger *slog.Logger, url string) *WebhookAgentInvoker {
	return &WebhookAgentInvoker{client: NewWebhookClient(logger, url)}
}

func (i *WebhookAgentInvoker) InvokeAgent(ctx context.Context, tenantID string, params models.InvokeAgentParams) error {
	return i.client.post(ctx, map[string]any{
		"tenant_id": tenantID,
		"agent_id":  params.AgentID,
		"prompt":    params.Prompt,
		"input":     params.Input,
	})
}
