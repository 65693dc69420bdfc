// Package client implements evaluation.JobService over the evaluation REST API.
package client

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

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/evaluation"
)

const (
	// DefaultBaseURL is where `shoplab serve` listens by default.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds one request.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// Client talks to the evaluation service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	logger     *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithAPIKey sends key in the X-API-Key header of every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithLogger sets a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	_ evaluation.JobService  = (*Client)(nil)
	_ evaluation.AgentLister = (*Client)(nil)
)

type submitRequest struct {
	Product evaluation.Product `json:"product"`
}

type agentsResponse struct {
	Agents []evaluation.Agent `json:"agents"`
	Count  int                `json:"count"`
}

// Submit creates an evaluation job.
func (c *Client) Submit(ctx context.Context, product evaluation.Product) (evaluation.SubmitResponse, error) {
	var out evaluation.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/evaluate", submitRequest{Product: product}, &out)
	if err != nil {
		return evaluation.SubmitResponse{}, classify("submit evaluation", err, true)
	}
	return out, nil
}

// GetStatus fetches the current status snapshot.
func (c *Client) GetStatus(ctx context.Context, id string) (evaluation.StatusSnapshot, error) {
	var out evaluation.StatusSnapshot
	if err := c.do(ctx, http.MethodGet, jobPath(id, "status"), nil, &out); err != nil {
		return evaluation.StatusSnapshot{}, classify("get status", err, false)
	}
	return out, nil
}

// GetResult fetches the result of a completed job.
func (c *Client) GetResult(ctx context.Context, id string) (evaluation.ResultSnapshot, error) {
	var out evaluation.ResultSnapshot
	if err := c.do(ctx, http.MethodGet, jobPath(id, "result"), nil, &out); err != nil {
		return evaluation.ResultSnapshot{}, classify("get result", err, false)
	}
	return out, nil
}

// Cancel asks the service to cancel the job.
func (c *Client) Cancel(ctx context.Context, id string) (evaluation.SubmitResponse, error) {
	var out evaluation.SubmitResponse
	if err := c.do(ctx, http.MethodDelete, jobPath(id, ""), nil, &out); err != nil {
		return evaluation.SubmitResponse{}, classify("cancel evaluation", err, false)
	}
	return out, nil
}

// ListAgents lists the analysis agents the service runs per job.
func (c *Client) ListAgents(ctx context.Context) ([]evaluation.Agent, error) {
	var out agentsResponse
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &out); err != nil {
		return nil, classify("list agents", err, false)
	}
	return out.Agents, nil
}

func jobPath(id, leaf string) string {
	p := "/api/evaluate/" + url.PathEscape(id)
	if leaf != "" {
		p += "/" + leaf
	}
	return p
}

// statusError is a non-2xx response.
type statusError struct {
	code   int
	detail string
}

func (e *statusError) Error() string {
	if e.detail == "" {
		return http.StatusText(e.code)
	}
	return e.detail
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.logger.Debug("evaluation api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{code: resp.StatusCode, detail: parseDetail(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseDetail extracts `detail` from an error body. Validation failures may
// carry a list of {msg} objects instead of a string.
func parseDetail(raw []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(envelope.Detail)
}

// classify maps a transport or status failure onto the evaluation taxonomy.
func classify(op string, err error, submit bool) error {
	var se *statusError
	if !errors.As(err, &se) {
		return &evaluation.TransportError{Op: op, Err: err}
	}
	switch {
	case se.code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, evaluation.ErrNotFound)
	case submit && (se.code == http.StatusUnprocessableEntity || se.code == http.StatusBadRequest ||
		se.code == http.StatusServiceUnavailable || se.code == http.StatusTooManyRequests):
		return &evaluation.SubmissionError{Detail: se.detail}
	case se.code == http.StatusConflict || se.code == http.StatusBadRequest:
		return fmt.Errorf("%s: %s: %w", op, se.Error(), evaluation.ErrConflict)
	default:
		return &evaluation.TransportError{Op: op, StatusCode: se.code, Err: se}
	}
}
