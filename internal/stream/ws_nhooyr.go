package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// SessionPlaceholder is replaced by the escaped session id in the URL
// template.
const SessionPlaceholder = "{session}"

// WebSocketTransport dials one WebSocket per subscription.
type WebSocketTransport struct {
	urlTemplate    string
	headerProvider HeaderProvider
	pingInterval   time.Duration
	dialTimeout    time.Duration
	readLimit      int64
	logger         *zap.Logger
}

type WSOption func(*WebSocketTransport)

func WithHeaderProvider(h HeaderProvider) WSOption {
	return func(t *WebSocketTransport) { t.headerProvider = h }
}

func WithPingInterval(d time.Duration) WSOption {
	return func(t *WebSocketTransport) { t.pingInterval = d }
}

func WithDialTimeout(d time.Duration) WSOption {
	return func(t *WebSocketTransport) {
		if d > 0 {
			t.dialTimeout = d
		}
	}
}

func WithWSLogger(l *zap.Logger) WSOption {
	return func(t *WebSocketTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

func NewWebSocketTransport(urlTemplate string, opts ...WSOption) *WebSocketTransport {
	t := &WebSocketTransport{
		urlTemplate:  strings.TrimSpace(urlTemplate),
		pingInterval: 30 * time.Second,
		dialTimeout:  10 * time.Second,
		readLimit:    1 << 20,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// URLFor expands the template for one session.
func (t *WebSocketTransport) URLFor(sessionID string) string {
	return strings.ReplaceAll(t.urlTemplate, SessionPlaceholder, url.PathEscape(sessionID))
}

func (t *WebSocketTransport) Open(ctx context.Context, sessionID string) (Channel, error) {
	if t.urlTemplate == "" {
		return nil, fmt.Errorf("websocket transport: empty url")
	}
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.URLFor(sessionID), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      t.buildHeaders(),
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(t.readLimit)

	pingCtx, pingCancel := context.WithCancel(context.Background())
	ch := &wsChannel{conn: conn, stopPing: pingCancel}
	if t.pingInterval > 0 {
		ch.wg.Add(1)
		go ch.pingLoop(pingCtx, t.pingInterval, t.logger.With(zap.String("session_id", sessionID)))
	}
	return ch, nil
}

func (t *WebSocketTransport) buildHeaders() http.Header {
	hdr := http.Header{}
	if t.headerProvider == nil {
		return hdr
	}
	for k, v := range t.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

type wsChannel struct {
	conn      *websocket.Conn
	stopPing  context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (c *wsChannel) Next(ctx context.Context) ([]byte, error) {
	_, payload, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stopPing()
		err = c.conn.Close(websocket.StatusNormalClosure, "close")
		c.wg.Wait()
	})
	return err
}

// pingLoop closes the connection after two consecutive ping failures so the
// pending Read fails and the manager reconnects.
func (c *wsChannel) pingLoop(ctx context.Context, every time.Duration, logger *zap.Logger) {
	defer c.wg.Done()
	tk := time.NewTicker(every)
	defer tk.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err == nil {
				consecutivePingFailures = 0
				continue
			}
			if ctx.Err() != nil {
				return
			}
			consecutivePingFailures++
			logger.Debug("stream_ping_failed", zap.Int("consecutive", consecutivePingFailures), zap.Error(err))
			if consecutivePingFailures >= 2 {
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}
