// Package httpdriver drives the remote ERP through a UI-automation sidecar
// that exposes each stage action as a JSON endpoint.
package httpdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dwsmith1983/nfeflow/internal/actions"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// Compile-time interface satisfaction checks.
var (
	_ actions.Driver  = (*Driver)(nil)
	_ actions.Session = (*Session)(nil)
)

const defaultTimeout = 2 * time.Minute

// Config configures the sidecar connection.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Driver logs in to the sidecar.
type Driver struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Driver. A nil client gets one with the configured timeout.
func New(cfg Config, client *http.Client, logger *slog.Logger) (*Driver, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sidecar base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid sidecar base url: %w", err)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Driver{cfg: cfg, client: client, logger: logger}, nil
}

// Open creates a logged-in session.
func (d *Driver) Open(ctx context.Context) (actions.Session, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	creds := map[string]string{"username": d.cfg.Username, "password": d.cfg.Password}
	if err := d.do(ctx, http.MethodPost, "/sessions", creds, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("login: response missing sessionId")
	}
	d.logger.Info("remote session opened", "session", resp.SessionID)
	return &Session{driver: d, id: resp.SessionID}, nil
}

// Session is one sidecar browser session.
type Session struct {
	driver *Driver
	id     string
}

func (s *Session) path(doc types.Document, suffix string) string {
	return "/sessions/" + url.PathEscape(s.id) + "/documents/" + url.PathEscape(doc.ID) + suffix
}

func (s *Session) ImportDocument(ctx context.Context, doc types.Document, content []byte) error {
	body := map[string]any{
		"id":        doc.ID,
		"issueDate": doc.IssueDate,
		"content":   content,
	}
	return s.driver.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(s.id)+"/documents", body, nil)
}

func (s *Session) LineItems(ctx context.Context, doc types.Document) ([]types.LineItem, error) {
	var resp struct {
		Items []types.LineItem `json:"items"`
	}
	if err := s.driver.do(ctx, http.MethodGet, s.path(doc, "/items"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (s *Session) ConfirmLink(ctx context.Context, doc types.Document, item types.LineItem) error {
	return s.driver.do(ctx, http.MethodPost, s.path(doc, "/items/confirm"), item, nil)
}

func (s *Session) GenerateEntry(ctx context.Context, doc types.Document) (string, error) {
	var resp struct {
		Ref string `json:"ref"`
	}
	if err := s.driver.do(ctx, http.MethodPost, s.path(doc, "/entry"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Ref, nil
}

func (s *Session) GenerateInvoice(ctx context.Context, doc types.Document, p types.Payable) (bool, error) {
	var resp struct {
		Saved bool `json:"saved"`
	}
	if err := s.driver.do(ctx, http.MethodPost, s.path(doc, "/invoice"), p, &resp); err != nil {
		return false, err
	}
	return resp.Saved, nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.driver.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(s.id), nil, nil)
}

// do sends a JSON request and maps the response status onto the action
// sentinels: 409 is already done, 429 and 5xx are transient, other 4xx are
// permanent.
func (d *Driver) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", actions.ErrTransient, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", actions.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", actions.ErrAlreadyDone, message(respBody))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", actions.ErrTransient, resp.StatusCode, message(respBody))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, message(respBody))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func message(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
