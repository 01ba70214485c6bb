// Package gemini talks to the Gemini generateContent endpoint and enforces
// the response contract shared by extraction and retrieval.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/reuse/internal/transport"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultTimeout = 60 * time.Second
	maxBodySize    = 8 << 20

	pingRetries = 2
)

// Sender performs a request with a retry budget. Implemented by *transport.Retrier.
type Sender interface {
	Send(ctx context.Context, do transport.DoFunc, maxRetries int) (*http.Response, error)
}

// Client calls generateContent for a given model.
type Client struct {
	apiKey     string
	baseURL    string
	pingModel  string
	httpClient *http.Client
	sender     Sender
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a custom endpoint (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSender replaces the retrying sender.
func WithSender(s Sender) Option {
	return func(c *Client) { c.sender = s }
}

// WithPingModel sets the model used by Ping.
func WithPingModel(model string) Option {
	return func(c *Client) { c.pingModel = model }
}

// NewClient creates a client authenticating with apiKey. An empty key is
// allowed; every call then fails with ErrMissingAPIKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		pingModel:  "gemini-2.5-flash",
		httpClient: &http.Client{Timeout: defaultTimeout},
		sender:     transport.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAPIKey reports whether a key is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// Generate sends req to model with the given retry budget and decodes the
// response body. Non-success statuses become *APIError, network failures
// *TransportError.
func (c *Client) Generate(ctx context.Context, model string, req GenerateRequest, maxRetries int) (*GenerateResponse, error) {
	if !c.HasAPIKey() {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.endpoint(model)
	resp, err := c.sender.Send(ctx, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(httpReq)
		return resp, redactURL(err)
	}, maxRetries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	var out GenerateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &ContractError{Reason: ReasonMalformedResponse, Detail: "response body is not JSON"}
	}
	return &out, nil
}

// Ping sends a minimal prompt and reports whether the key is accepted.
func (c *Client) Ping(ctx context.Context) bool {
	if !c.HasAPIKey() {
		return false
	}
	_, err := c.Generate(ctx, c.pingModel, GenerateRequest{
		Contents:         []Content{{Parts: []Part{TextPart("Hi")}}},
		GenerationConfig: GenerationConfig{MaxOutputTokens: 10},
	}, pingRetries)
	return err == nil
}

func (c *Client) endpoint(model string) string {
	return fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiKey))
}

// errorMessage extracts error.message from an error payload, or "" when the
// body is not one.
func errorMessage(data []byte) string {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error == nil {
		return ""
	}
	return strings.TrimSpace(er.Error.Message)
}

// redactURL drops the request URL from *url.Error so the API key in the
// query string never reaches logs or error messages.
func redactURL(err error) error {
	var ue *url.Error
	if err == nil || !errors.As(err, &ue) {
		return err
	}
	return fmt.Errorf("%s request: %w", strings.ToLower(ue.Op), ue.Err)
}
