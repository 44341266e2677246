package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook headers.
const (
	HeaderEventID   = "X-Event-Id"
	HeaderEventType = "X-Event-Type"
	HeaderTopic     = "X-Event-Topic"
	HeaderSignature = "X-Signature-SHA256"
)

// WebhookPublisher POSTs each event to a single HTTP endpoint.
type WebhookPublisher struct {
	client *resty.Client
	url    string
	secret []byte
}

// NewWebhookPublisher constructs a webhook publisher. When secret is set the body is signed with HMAC-SHA256.
func NewWebhookPublisher(url, secret string, timeout time.Duration) (*WebhookPublisher, error) {
	if url == "" {
		return nil, errors.New("webhook publisher: url is required")
	}
	client := resty.New().SetTimeout(timeout).SetRetryCount(0)
	return &WebhookPublisher{client: client, url: url, secret: []byte(secret)}, nil
}

func (p *WebhookPublisher) Publish(ctx context.Context, msg Message) error {
	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderEventID, msg.ID).
		SetHeader(HeaderEventType, msg.EventType).
		SetHeader(HeaderTopic, msg.Topic).
		SetBody(msg.Payload)
	if len(p.secret) > 0 {
		req.SetHeader(HeaderSignature, Sign(p.secret, msg.Payload))
	}
	resp, err := req.Post(p.url)
	if err != nil {
		return fmt.Errorf("webhook publish %s: %w", msg.EventType, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook publish %s: status %d", msg.EventType, resp.StatusCode())
	}
	return nil
}

func (p *WebhookPublisher) Close() error { return nil }

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
