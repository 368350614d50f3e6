package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

const (
	webhookTimeout = 10 * time.Second
	// maxErrorBody bounds how much of a rejected response ends up in the log.
	maxErrorBody = 512
)

// WebhookSink posts the report to a chat or automation webhook. The body is
// the Message as JSON, whose "text" field chat services render directly.
type WebhookSink struct {
	url    string
	client *http.Client
}

// WebhookOption customises a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{url: url, client: &http.Client{Timeout: webhookTimeout}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *WebhookSink) Name() string { return "webhook" }

// Send posts once. Any non-2xx answer is an error carrying the status and
// the start of the response body.
func (s *WebhookSink) Send(ctx context.Context, msg types.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting report to webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if detail := strings.TrimSpace(string(excerpt)); detail != "" {
			return fmt.Errorf("webhook rejected report: status %d: %s", resp.StatusCode, detail)
		}
		return fmt.Errorf("webhook rejected report: status %d", resp.StatusCode)
	}
	return nil
}
