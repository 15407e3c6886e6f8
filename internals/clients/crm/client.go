// Package crm talks to the donor CRM backend: SMS verification, donations,
// subscriptions and donor profile updates.
package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingBaseURL indicates the client was built without an endpoint.
	ErrMissingBaseURL = errors.New("crm: base url is required")
	// ErrMalformedResponse means the body did not have any recognized shape.
	ErrMalformedResponse = errors.New("crm: malformed response")
)

// StatusError is a non-success HTTP answer from the CRM.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("crm: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("crm: %s %s: status %d", e.Method, e.Path, e.Status)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Options configures the CRM client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *zerolog.Logger
}

// Client performs JSON calls against the CRM REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "crm").Logger(),
	}, nil
}

// envelope is the loose shape every CRM answer may carry.
type envelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// response is a raw CRM answer after transport succeeded.
type response struct {
	status int
	body   []byte
	env    envelope
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

// flaggedOK treats an explicit success flag as success even on a non-2xx status.
func (r response) flaggedOK() bool {
	return r.ok() || (r.env.Success != nil && *r.env.Success)
}

func (c *Client) do(ctx context.Context, method, path string, in any) (response, error) {
	var body io.Reader
	if in != nil {
		raw, err := sonic.Marshal(in)
		if err != nil {
			return response{}, fmt.Errorf("crm: encode %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, fmt.Errorf("crm: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return response{}, fmt.Errorf("crm: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return response{}, fmt.Errorf("crm: read %s: %w", path, err)
	}

	out := response{status: res.StatusCode, body: raw}
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = sonic.Unmarshal(raw, &out.env)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("dur", time.Since(start)).
		Msg("crm call")
	return out, nil
}

func (c *Client) statusErr(method, path string, r response) error {
	return &StatusError{Method: method, Path: path, Status: r.status, Message: r.env.text()}
}

func (c *Client) decode(r response, out any) error {
	if len(bytes.TrimSpace(r.body)) == 0 {
		return ErrMalformedResponse
	}
	if err := sonic.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// call sends in and decodes a 2xx body into out (when out is non-nil).
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	r, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if !r.ok() {
		return c.statusErr(method, path, r)
	}
	if out == nil {
		return nil
	}
	return c.decode(r, out)
}

func escape(s string) string { return url.PathEscape(s) }
