package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WebhookChannel posts messages as JSON to an HTTP endpoint, typically a chat
// or mobile messaging provider bridge. It serves both ChatChannel and BroadcastChannel.
type WebhookChannel struct {
	url        string
	client     *http.Client
	retries    int
	retryDelay time.Duration
}

var (
	_ ChatChannel      = (*WebhookChannel)(nil)
	_ BroadcastChannel = (*WebhookChannel)(nil)
)

// webhookPayload is the body posted to the endpoint.
type webhookPayload struct {
	Kind Channel `json:"kind"`
	Message
}

// NewWebhookChannel creates a channel posting to url. retries is the number of
// additional attempts after a transport error or a 5xx response.
func NewWebhookChannel(url string, timeout time.Duration, retries int, retryDelay time.Duration) (*WebhookChannel, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if retries < 0 {
		return nil, fmt.Errorf("webhook retries cannot be negative, got %d", retries)
	}

	return &WebhookChannel{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		retries:    retries,
		retryDelay: retryDelay,
	}, nil
}

// SendChat posts a direct chat message.
func (c *WebhookChannel) SendChat(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("chat recipient is empty")
	}
	return c.post(ctx, webhookPayload{Kind: ChannelChat, Message: msg})
}

// Broadcast posts a message for the network named in msg.NetworkID.
func (c *WebhookChannel) Broadcast(ctx context.Context, msg Message) error {
	return c.post(ctx, webhookPayload{Kind: ChannelBroadcast, Message: msg})
}

func (c *WebhookChannel) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxElapsedTime = 0

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook responded %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			// The endpoint rejected the message; repeating it will not help.
			return backoff.Permanent(fmt.Errorf("webhook responded %d", resp.StatusCode))
		}
		return nil
	}

	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx))
}
