package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Client talks to the game authority's REST surface.
type Client struct {
	baseURL  string
	http     *fasthttp.Client
	headers  HeaderProvider
	clientID string
	logger   *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClientID pins the X-Client-Id header; by default a fresh uuid is used
// for the life of the client.
func WithClientID(id string) Option {
	return func(c *Client) {
		if strings.TrimSpace(id) != "" {
			c.clientID = strings.TrimSpace(id)
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		clientID:       uuid.NewString(),
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ClientID() string { return c.clientID }

// StartGame opens a new session at the given difficulty.
func (c *Client) StartGame(ctx context.Context, mode chessdto.Mode) (*chessdto.GameSession, error) {
	body, err := c.doJSON(ctx, fasthttp.MethodPost, "/start_game", chessdto.StartGameRequest{Mode: mode}, false)
	if err != nil {
		return nil, err
	}
	return chessdto.DecodeSession(body)
}

// SubmitMove sends one canonical move. Never retried: a move is not idempotent.
func (c *Client) SubmitMove(ctx context.Context, sessionID string, move chessdto.Move) (*chessdto.GameSession, error) {
	body, err := c.doJSON(ctx, fasthttp.MethodPost, "/make_move/"+escape(sessionID), chessdto.MoveRequest{Move: move.String()}, false)
	if err != nil {
		return nil, err
	}
	return chessdto.DecodeSession(body)
}

// Evaluate requests an on-demand evaluation of the session's current position.
func (c *Client) Evaluate(ctx context.Context, sessionID string) (*chessdto.Evaluation, error) {
	body, err := c.doJSON(ctx, fasthttp.MethodGet, "/analyze/"+escape(sessionID), nil, true)
	if err != nil {
		return nil, err
	}
	return chessdto.DecodeEvaluation(body)
}

func (c *Client) Resign(ctx context.Context, sessionID string) (*chessdto.GameSession, error) {
	body, err := c.doJSON(ctx, fasthttp.MethodPost, "/resign/"+escape(sessionID), nil, false)
	if err != nil {
		return nil, err
	}
	return chessdto.DecodeSession(body)
}

func (c *Client) Restart(ctx context.Context, sessionID string) (*chessdto.GameSession, error) {
	body, err := c.doJSON(ctx, fasthttp.MethodPost, "/restart/"+escape(sessionID), nil, false)
	if err != nil {
		return nil, err
	}
	return chessdto.DecodeSession(body)
}

// Health calls the root probe and returns its message.
func (c *Client) Health(ctx context.Context) (string, error) {
	body, err := c.doJSON(ctx, fasthttp.MethodGet, "/", nil, true)
	if err != nil {
		return "", err
	}
	var resp chessdto.HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return resp.Message, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	requestID := uuid.NewString()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("X-Client-Id", c.clientID)

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			c.logger.Debug("authority_request_failed",
				zap.String("method", method), zap.String("path", path),
				zap.String("request_id", requestID), zap.Int("attempt", attempt), zap.Error(err))
			if attempt == attempts || !retry {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			rej := rejectionFrom(status, resp.Body())
			c.logger.Debug("authority_rejected",
				zap.String("method", method), zap.String("path", path),
				zap.String("request_id", requestID), zap.Int("status", status), zap.String("reason", rej.Message))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return nil, rej
			}
			lastErr = rej
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		return append([]byte(nil), resp.Body()...), nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func rejectionFrom(status int, body []byte) *chessdto.RejectionError {
	rej := &chessdto.RejectionError{
		Code:      fmt.Sprintf("http_%d", status),
		Status:    status,
		Retryable: shouldRetryStatus(status),
	}
	var er chessdto.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		rej.Message = er.Reason()
	}
	if rej.Message == "" {
		rej.Message = truncate(strings.TrimSpace(string(body)), 512)
	}
	return rej
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BackoffDuration is shared with the stream reconnect loop.
func BackoffDuration(attempt int) time.Duration { return backoffDuration(attempt) }

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func escape(id string) string { return url.PathEscape(strings.TrimSpace(id)) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
