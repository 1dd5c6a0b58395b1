package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/nochess-client/internal/authority"
	"github.com/park285/nochess-client/pkg/chessdto"
	"go.uber.org/zap"
)

// Manager keeps at most one analysis channel open. Reconnects happen inside
// the subscription goroutine, so a session never has two channels at once.
type Manager struct {
	transport Transport
	publish   PublishFunc
	status    StatusFunc
	logger    *zap.Logger

	maxReconnect int
	backoff      func(attempt int) time.Duration

	mu       sync.Mutex
	cur      *subscription
	lastDone chan struct{}
}

type subscription struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

func (s *subscription) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReconnect sets how many consecutive reopen attempts follow a lost
// channel. Zero disables reconnecting.
func WithReconnect(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxReconnect = n
		}
	}
}

func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(m *Manager) {
		if f != nil {
			m.backoff = f
		}
	}
}

func NewManager(t Transport, publish PublishFunc, status StatusFunc, opts ...Option) *Manager {
	m := &Manager{
		transport:    t,
		publish:      publish,
		status:       status,
		logger:       zap.NewNop(),
		maxReconnect: 3,
		backoff:      authority.BackoffDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe opens the channel for sessionID. An existing subscription for
// another session is torn down first; a live one for the same session is
// left alone.
func (m *Manager) Subscribe(sessionID string) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" || m.transport == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil && m.cur.sessionID == sid && !m.cur.finished() {
		return
	}
	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{sessionID: sid, cancel: cancel, done: make(chan struct{})}
	prev := m.lastDone
	m.cur = sub
	m.lastDone = sub.done
	go m.run(ctx, sub, prev)
}

// Unsubscribe tears down the current channel. Safe to call repeatedly.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// SessionID returns the session currently subscribed, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ""
	}
	return m.cur.sessionID
}

// Close unsubscribes and waits for the subscription goroutine to exit.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.stopLocked()
	done := m.lastDone
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) stopLocked() {
	if m.cur == nil {
		return
	}
	m.logger.Debug("stream_unsubscribe", zap.String("session_id", m.cur.sessionID))
	m.cur.cancel()
	m.cur = nil
}

func (m *Manager) run(ctx context.Context, sub *subscription, prev chan struct{}) {
	defer close(sub.done)
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	sid := sub.sessionID
	attempt := 0
	for {
		m.notify(ctx, sid, StatusConnecting)
		ch, err := m.transport.Open(ctx, sid)
		if err == nil {
			attempt = 0
			m.logger.Debug("stream_open", zap.String("session_id", sid))
			m.notify(ctx, sid, StatusLive)
			stop := context.AfterFunc(ctx, func() { _ = ch.Close() })
			err = m.pump(ctx, sid, ch)
			stop()
			_ = ch.Close()
		}
		if ctx.Err() != nil {
			return
		}
		m.logger.Debug("stream_channel_lost", zap.String("session_id", sid), zap.Error(err))
		m.notify(ctx, sid, StatusDown)

		attempt++
		if attempt > m.maxReconnect {
			m.logger.Info("stream_gave_up", zap.String("session_id", sid), zap.Int("attempts", attempt-1))
			return
		}
		t := time.NewTimer(m.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (m *Manager) pump(ctx context.Context, sid string, ch Channel) error {
	for {
		payload, err := ch.Next(ctx)
		if err != nil {
			return err
		}
		ev, err := chessdto.DecodeEvaluation(payload)
		if err != nil {
			m.logger.Debug("stream_payload_dropped", zap.String("session_id", sid), zap.Error(err))
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.publish != nil {
			m.publish(sid, ev)
		}
	}
}

func (m *Manager) notify(ctx context.Context, sid string, st Status) {
	if ctx.Err() != nil || m.status == nil {
		return
	}
	m.status(sid, st)
}
