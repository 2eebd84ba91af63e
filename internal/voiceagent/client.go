package voiceagent

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

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the conversational AI API root.
const DefaultBaseURL = "https://api.elevenlabs.io/v1/convai"

const apiKeyHeader = "xi-api-key"

// Client is the subset of the voice-agent platform API this service uses.
type Client interface {
	SubmitBatch(ctx context.Context, req SubmitBatchRequest) (SubmitBatchResponse, error)
	GetBatch(ctx context.Context, batchID string) (BatchDetail, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
}

// APIError is returned for non-2xx upstream responses.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voiceagent: %s: status %d: %s", e.Op, e.Status, e.Body)
}

// IsNotFound reports whether err carries an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Observer receives one call per upstream request.
type Observer func(op string, status int, d time.Duration)

// HTTPClient implements Client over HTTPS.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	hc       *http.Client
	limiter  *rate.Limiter
	observer Observer
}

type Option func(*HTTPClient)

// WithBaseURL overrides DefaultBaseURL. An empty u keeps the default.
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.hc = hc }
}

// WithRateLimiter bounds outbound request rate. Nil disables limiting.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *HTTPClient) { c.limiter = l }
}

func WithObserver(o Observer) Option {
	return func(c *HTTPClient) { c.observer = o }
}

func NewHTTPClient(apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *HTTPClient) SubmitBatch(ctx context.Context, req SubmitBatchRequest) (SubmitBatchResponse, error) {
	var out SubmitBatchResponse
	if err := c.do(ctx, "submit_batch", http.MethodPost, "/batch-calling/submit", req, &out); err != nil {
		return SubmitBatchResponse{}, eris.Wrap(err, "voiceagent: submit batch")
	}
	if out.ID == "" {
		return SubmitBatchResponse{}, eris.New("voiceagent: submit batch: response has no id")
	}
	return out, nil
}

func (c *HTTPClient) GetBatch(ctx context.Context, batchID string) (BatchDetail, error) {
	var out BatchDetail
	if err := c.do(ctx, "get_batch", http.MethodGet, "/batch-calling/"+url.PathEscape(batchID), nil, &out); err != nil {
		return BatchDetail{}, eris.Wrapf(err, "voiceagent: get batch %s", batchID)
	}
	return out, nil
}

func (c *HTTPClient) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	var out Conversation
	if err := c.do(ctx, "get_conversation", http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return Conversation{}, eris.Wrapf(err, "voiceagent: get conversation %s", conversationID)
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limiter")
		}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	status := 0
	defer func() {
		if c.observer != nil {
			c.observer(op, status, time.Since(start))
		}
	}()

	resp, err := c.hc.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
