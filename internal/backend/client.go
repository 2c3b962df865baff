package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/manimchat/manimchat/internal/logging"
)

const (
	// GeneratePath is the single endpoint of the Generation Backend.
	GeneratePath = "/api/generate"

	// RequestIDHeader correlates client and server logs.
	RequestIDHeader = "X-Request-ID"

	// DefaultTimeout covers model latency plus a low-quality Manim render.
	DefaultTimeout = 5 * time.Minute

	maxResponseBytes = 4 << 20
)

// Client talks to the Generation Backend over HTTP. One call per turn,
// no retries.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient creates a Client for the backend at baseURL (e.g. "http://localhost:8000").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root, used to resolve relative video URLs.
func (c *Client) BaseURL() string { return c.baseURL }

// Generate sends the conversation payload and returns the tagged reply.
func (c *Client) Generate(ctx context.Context, messages []Message) (Reply, error) {
	return c.post(ctx, ChatRequest{Messages: messages})
}

// GenerateOnce sends a legacy single-shot prompt with no history.
func (c *Client) GenerateOnce(ctx context.Context, prompt string) (Reply, error) {
	return c.post(ctx, PromptRequest{Prompt: prompt})
}

func (c *Client) post(ctx context.Context, payload any) (Reply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	reqID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return Reply{}, &NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)

	log := c.log.WithField("request_id", reqID)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("backend request failed")
		return Reply{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.WithError(err).Warn("backend response truncated")
		return Reply{}, &NetworkError{Err: err}
	}

	log = log.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).Round(time.Millisecond),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := ""
		if d := gjson.GetBytes(data, "detail"); d.Type == gjson.String {
			detail = d.Str
		}
		log.WithField("detail", detail).Warn("backend returned error")
		return Reply{}, &BackendError{Status: resp.StatusCode, Detail: detail}
	}

	reply, err := DecodeReply(data)
	if err != nil {
		log.WithError(err).Warn("backend reply rejected")
		return Reply{}, err
	}
	log.WithField("type", reply.Type).Debug("backend replied")
	return reply, nil
}
