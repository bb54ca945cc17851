package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
)

const maxReplyBytes = 1 << 20

// Config configures the HTTP client.
type Config struct {
	URL            string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client posts user messages to the chat backend.
type Client struct {
	url            string
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	http           *http.Client
	logger         *slog.Logger
}

type requestPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	PersonaID string `json:"persona_id,omitempty"`
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("backend url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		url:            cfg.URL,
		timeout:        cfg.Timeout,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		http:           cfg.HTTPClient,
		logger:         cfg.Logger.With("component", "backend"),
	}, nil
}

// Reply sends req and decodes either reply variant. Transport failures, 429
// and 5xx responses are retried with exponential backoff; other failures are
// returned at once.
func (c *Client) Reply(ctx context.Context, req Request) (chat.Reply, error) {
	body, err := json.Marshal(requestPayload{
		SessionID: req.SessionID,
		Message:   req.Message,
		PersonaID: req.PersonaID,
	})
	if err != nil {
		return chat.Reply{}, fmt.Errorf("encode request: %w", err)
	}

	operation := func() (chat.Reply, error) {
		return c.post(ctx, body)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = 10 * c.initialBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("backend attempt failed, retrying",
			"session_id", req.SessionID, "error", err, "wait", wait)
	}
	return backoff.RetryNotifyWithData(operation, retry, notify)
}

func (c *Client) post(ctx context.Context, body []byte) (chat.Reply, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return chat.Reply{}, backoff.Permanent(newError(ErrorTransport, "build request", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return chat.Reply{}, backoff.Permanent(ctx.Err())
		}
		return chat.Reply{}, newError(ErrorTransport, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))
		e := newError(ErrorUpstreamStatus, resp.Status, nil)
		e.Status = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return chat.Reply{}, e
		}
		return chat.Reply{}, backoff.Permanent(e)
	}

	var reply chat.Reply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&reply); err != nil {
		return chat.Reply{}, backoff.Permanent(newError(ErrorInvalidPayload, "decode reply", err))
	}
	if reply.Empty() {
		return chat.Reply{}, backoff.Permanent(newError(ErrorInvalidPayload, "reply has no message", nil))
	}
	return reply, nil
}
