// Package e2b implements sandbox.Provider on top of E2B cloud sandboxes.
//
// E2B exposes two APIs:
//
//   - the control plane (https://api.<domain>) creates and kills sandboxes and
//     is authenticated with the caller's API key (X-API-Key header);
//   - envd, a daemon inside every sandbox (https://<port>-<sandboxID>.<domain>),
//     serves file uploads over plain HTTP and process management over
//     Connect RPC.
//
// Client covers the control plane. Session (session.go) talks to envd.
package e2b

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/autopr/internal/sandbox"
)

var _ sandbox.Provider = (*Client)(nil)

// Config holds the configuration for the E2B backend.
type Config struct {
	// Domain is the E2B domain; the control plane lives at api.<Domain>.
	Domain string
	// APIURL overrides the control plane URL (self-hosted E2B, tests).
	APIURL string
	// EnvdURL overrides the per-sandbox envd URL (self-hosted E2B, tests).
	EnvdURL string
	// EnvdPort is the port envd listens on inside every sandbox.
	EnvdPort int
	// User is the sandbox OS user that owns uploaded files and processes.
	User string
	// Lifetime is how long E2B keeps the sandbox alive. This is the provider's
	// own bound; the orchestrator adds no timeout of its own.
	Lifetime time.Duration
	// RequestTimeout bounds control-plane and upload calls. It never applies
	// to the process stream.
	RequestTimeout time.Duration
}

// DefaultConfig returns settings for the public E2B cloud.
func DefaultConfig() Config {
	return Config{
		Domain:         "e2b.app",
		EnvdPort:       49983,
		User:           "user",
		Lifetime:       time.Hour,
		RequestTimeout: 60 * time.Second,
	}
}

func (c Config) apiURL() string {
	if c.APIURL != "" {
		return strings.TrimRight(c.APIURL, "/")
	}
	return "https://api." + c.Domain
}

func (c Config) envdURL(sandboxID, domain string) string {
	if c.EnvdURL != "" {
		return strings.TrimRight(c.EnvdURL, "/")
	}
	if domain == "" {
		domain = c.Domain
	}
	return fmt.Sprintf("https://%d-%s.%s", c.EnvdPort, sandboxID, domain)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every call. It must not
// have a global Timeout, or long process streams would be cut off.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client is the E2B sandbox provider. It is stateless between calls and safe
// for concurrent use; the API key travels with each request.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the control plane.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("e2b api error (status %d): %s", e.StatusCode, e.Message)
}

type createSandboxRequest struct {
	TemplateID string            `json:"templateID"`
	Timeout    int               `json:"timeout"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type createSandboxResponse struct {
	SandboxID       string `json:"sandboxID"`
	TemplateID      string `json:"templateID"`
	ClientID        string `json:"clientID"`
	EnvdVersion     string `json:"envdVersion"`
	EnvdAccessToken string `json:"envdAccessToken"`
	Domain          string `json:"domain"`
}

// Create provisions a sandbox from template.
func (c *Client) Create(ctx context.Context, template, apiKey string) (sandbox.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(createSandboxRequest{
		TemplateID: template,
		Timeout:    int(c.config.Lifetime.Seconds()),
		Metadata:   map[string]string{"source": "autopr"},
	})
	if err != nil {
		return nil, fmt.Errorf("e2b: encoding create request: %w", err)
	}

	req, err := c.newAPIRequest(ctx, http.MethodPost, "/sandboxes", apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("e2b: creating sandbox: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var created createSandboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("e2b: decoding create response: %w", err)
	}
	if created.SandboxID == "" {
		return nil, fmt.Errorf("e2b: create response has no sandbox id")
	}

	c.logger.Debug("e2b sandbox created",
		slog.String("sandbox", created.SandboxID),
		slog.String("template", created.TemplateID),
		slog.String("envdVersion", created.EnvdVersion),
	)

	return &Session{
		client:      c,
		id:          created.SandboxID,
		apiKey:      apiKey,
		envdURL:     c.config.envdURL(created.SandboxID, created.Domain),
		accessToken: created.EnvdAccessToken,
	}, nil
}

// kill deletes a sandbox. A 404 means it is already gone, which is the goal.
func (c *Client) kill(ctx context.Context, sandboxID, apiKey string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := c.newAPIRequest(ctx, http.MethodDelete, "/sandboxes/"+sandboxID, apiKey, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("e2b: killing sandbox %s: %w", sandboxID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return readAPIError(resp)
	}
}

func (c *Client) newAPIRequest(ctx context.Context, method, path, apiKey string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.apiURL()+path, body)
	if err != nil {
		return nil, fmt.Errorf("e2b: building request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// readAPIError turns an error response into *APIError, preferring the JSON
// "message" field and falling back to the raw body.
func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
