// Package client talks to a tweetdb server over its REST API.
//
// Every attempt is bounded by Config.Timeout. Transport failures and 5xx or
// 429 responses are retried up to MaxAttempts with linear backoff; typed
// rejections (a response carrying a fault code) come back as *fault.Error
// and are never retried.
package client

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

	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/store"
)

const (
	apiPrefix       = "/api/v1"
	maxResponseBody = 8 << 20
)

// Config configures a Client
type Config struct {
	Endpoint    string
	APIKey      string
	Timeout     time.Duration // per attempt; 0 means no limit beyond ctx
	MaxAttempts int           // 0 or 1 means no retries
	Backoff     time.Duration // wait before attempt n is (n-1)*Backoff
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// StatusError is an HTTP failure that carries no fault kind
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// Client is a remote connection to a tweetdb server
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for cfg.Endpoint
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("client: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: endpoint %q must be http or https", cfg.Endpoint)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		attempts:   attempts,
		backoff:    cfg.Backoff,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Submit sends a signed transaction
func (c *Client) Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	var receipt ledger.Receipt
	if err := c.do(ctx, http.MethodPost, "/transactions", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Fetch reads one record
func (c *Client) Fetch(ctx context.Context, id identity.PublicKey) (store.Record, error) {
	var record store.Record
	err := c.do(ctx, http.MethodGet, "/records/"+id.String(), nil, &record)
	return record, err
}

// Scan lists the records matching every filter
func (c *Client) Scan(ctx context.Context, filters ...query.Filter) ([]store.Record, error) {
	params, err := query.Params(filters)
	if err != nil {
		return nil, err
	}
	path := "/records"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var list struct {
		Records []store.Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Records, nil
}

// Stats returns the server's record count and slot
func (c *Client) Stats(ctx context.Context) (ledger.Stats, error) {
	var stats ledger.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// Health checks that the server answers
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.backoff * time.Duration(attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retry, err := c.attempt(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
		c.logger.Debug("request failed", "method", method, "path", path, "attempt", attempt, "error", err)
	}
	if c.attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%s %s: giving up after %d attempts: %w", method, path, c.attempts, lastErr)
}

// attempt performs one request and reports whether a failure may be retried
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out any) (bool, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+apiPrefix+path, bodyReader)
	if err != nil {
		return false, fmt.Errorf("client: creating request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("client: reading response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && !env.Success {
		if kind := fault.ParseKind(env.Code); kind != fault.Unknown {
			return false, rebuildFault(kind, env.Error)
		}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return true, &StatusError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &StatusError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if decodeErr != nil {
		return false, fmt.Errorf("client: decoding response: %w", decodeErr)
	}
	if !env.Success {
		return false, &StatusError{StatusCode: resp.StatusCode, Message: env.Error}
	}

	if out == nil || len(env.Data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, fmt.Errorf("client: decoding data: %w", err)
	}
	return false, nil
}

// rebuildFault turns a server message "Kind: detail" back into a fault
func rebuildFault(kind fault.Kind, message string) error {
	message = strings.TrimPrefix(message, kind.String())
	message = strings.TrimPrefix(message, ": ")
	return &fault.Error{Kind: kind, Message: message}
}
