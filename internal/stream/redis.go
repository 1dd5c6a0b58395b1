package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/redis/go-redis/v9"
)

const defaultChannelPrefix = "nochess:analysis:"

// RedisTransport subscribes to a per-session pub/sub channel.
type RedisTransport struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisTransport(rdb *redis.Client, prefix string) *RedisTransport {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = defaultChannelPrefix
	}
	return &RedisTransport{rdb: rdb, prefix: p}
}

func (t *RedisTransport) ChannelName(sessionID string) string {
	return t.prefix + strings.TrimSpace(sessionID)
}

func (t *RedisTransport) Open(ctx context.Context, sessionID string) (Channel, error) {
	ps := t.rdb.Subscribe(ctx, t.ChannelName(sessionID))
	// wait for the subscription confirmation so a failed connection surfaces here
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	return &redisChannel{ps: ps}, nil
}

// Publish sends one evaluation to a session's channel. Used by relays and
// tests that stand in for the engine side.
func (t *RedisTransport) Publish(ctx context.Context, sessionID string, ev *chessdto.Evaluation) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.rdb.Publish(ctx, t.ChannelName(sessionID), raw).Err()
}

type redisChannel struct {
	ps        *redis.PubSub
	closeOnce sync.Once
}

func (c *redisChannel) Next(ctx context.Context) ([]byte, error) {
	msg, err := c.ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (c *redisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ps.Close() })
	return err
}

// ParseRedisURL builds client options from a redis:// or rediss:// URL.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
