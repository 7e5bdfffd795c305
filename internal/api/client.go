package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderTenant         = "x-tenant-id"
	HeaderTrace          = "x-trace-id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderInternalDebug  = "x-internal-debug"
)

// Client is the harness's only way into the evaluation pipeline. It injects
// the tenant and a fresh trace id on every call and unwraps the response
// envelope.
type Client struct {
	baseURL    string
	tenant     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// New creates a Client for the pipeline at baseURL acting as tenantID.
func New(baseURL, tenantID string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api: baseURL is required")
	}
	if tenantID == "" {
		return nil, fmt.Errorf("api: tenant id is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		// Copy so a shared client such as http.DefaultClient keeps its timeout.
		c := *httpClient
		c.Timeout = cfg.timeout
		httpClient = &c
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		baseURL:    baseURL,
		tenant:     tenantID,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return fmt.Errorf("api: negative timeout %s", d)
		}
		cfg.timeout = d
		return nil
	}
}

// Tenant returns the tenant id injected on every call.
func (c *Client) Tenant() string { return c.tenant }

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Error   *envelopeError  `json:"error,omitempty"`
	Meta    *envelopeMeta   `json:"meta,omitempty"`
}

type envelopeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Class     string `json:"class"`
}

type envelopeMeta struct {
	TraceID string `json:"trace_id"`
}

// Send performs one call against the pipeline and returns the envelope's
// data field. header is merged over the defaults; a caller-supplied
// Content-Type wins for JSON bodies and is ignored for multipart bodies.
// Send never retries.
func (c *Client) Send(ctx context.Context, method, path string, body Body, header http.Header) (json.RawMessage, error) {
	operation := method + " " + path

	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		var err error
		reader, contentType, err = body.Encode()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", operation, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range header {
		if isMultipart(body) && http.CanonicalHeaderKey(k) == "Content-Type" {
			continue
		}
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(HeaderTenant, c.tenant)
	traceID := NewTraceID()
	req.Header.Set(HeaderTrace, traceID)

	c.logger.InfoContext(ctx, "API request", "operation", operation, "trace_id", traceID,
		"idempotency_key", req.Header.Get(HeaderIdempotencyKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{operation: operation, err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{operation: operation, statusCode: resp.StatusCode, status: statusText(resp), err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.DebugContext(ctx, "API response", "operation", operation, "status", resp.StatusCode, "trace_id", traceID)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if decodeErr == nil && env.Success != nil && !*env.Success {
		ae := &ApplicationError{
			operation:  operation,
			statusCode: resp.StatusCode,
			status:     statusText(resp),
			body:       raw,
		}
		if env.Error != nil {
			ae.code = env.Error.Code
			ae.message = env.Error.Message
			ae.class = env.Error.Class
			ae.retryable = env.Error.Retryable
		}
		if env.Meta != nil {
			ae.traceID = env.Meta.TraceID
		}
		return nil, ae
	}
	if !ok {
		return nil, &TransportError{operation: operation, statusCode: resp.StatusCode, status: statusText(resp), body: raw}
	}
	if decodeErr != nil {
		return nil, &TransportError{operation: operation, statusCode: resp.StatusCode, status: statusText(resp), body: raw,
			err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}
	if env.Success == nil {
		return nil, &TransportError{operation: operation, statusCode: resp.StatusCode, status: statusText(resp), body: raw,
			err: fmt.Errorf("decode envelope: missing success field")}
	}
	return env.Data, nil
}

// statusText strips the numeric prefix Go puts in resp.Status.
func statusText(resp *http.Response) string {
	if _, text, found := strings.Cut(resp.Status, " "); found {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// sendInto calls Send and decodes the data field into dst.
func (c *Client) sendInto(ctx context.Context, method, path string, body Body, header http.Header, dst any) error {
	data, err := c.Send(ctx, method, path, body, header)
	if err != nil {
		return err
	}
	if dst == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
