package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/nochess-client/pkg/chessdto"
)

// Stream transports.
const (
	TransportWebSocket = "ws"
	TransportRedis     = "redis"
	TransportNone      = "none"
)

const defaultStreamPath = "/ws/analysis/{session}"

type AppConfig struct {
	ServerURL string

	StreamTransport string
	StreamURL       string
	StreamReconnect int
	RedisURL        string
	RedisChannel    string

	Mode             chessdto.Mode
	RequestTimeout   time.Duration
	DefaultPromotion chessdto.Promotion
	MessagesDir      string
	PieceDir         string

	Log LogConfig
}

// LogConfig mirrors the LOG_* variables read by obslog.
type LogConfig struct {
	Level   string
	Format  string
	Console bool
	ToFile  bool
	File    string
	Caller  bool
}

// Load reads the environment and validates the result.
func Load() (*AppConfig, error) {
	cfg, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv reads the environment without the cross-field checks, for callers
// that override values before calling Finalize.
func LoadEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		StreamTransport:  TransportWebSocket,
		StreamReconnect:  3,
		Mode:             chessdto.ModeIntermediate,
		RequestTimeout:   15 * time.Second,
		DefaultPromotion: chessdto.PromoteToQueen,
		Log: LogConfig{
			Level:   "info",
			Format:  "legacy",
			Console: true,
			ToFile:  false,
			File:    "logs/chessclient.log",
		},
	}

	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(os.Getenv("NOCHESS_SERVER_URL")), "/")
	cfg.StreamURL = strings.TrimSpace(os.Getenv("NOCHESS_STREAM_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.RedisChannel = strings.TrimSpace(os.Getenv("NOCHESS_REDIS_CHANNEL_PREFIX"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("NOCHESS_MESSAGES_DIR"))
	cfg.PieceDir = strings.TrimSpace(os.Getenv("NOCHESS_PIECE_DIR"))

	if v := strings.TrimSpace(os.Getenv("NOCHESS_STREAM_TRANSPORT")); v != "" {
		cfg.StreamTransport = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("NOCHESS_STREAM_RECONNECT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.StreamReconnect = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NOCHESS_MODE")); v != "" {
		m, ok := chessdto.ParseMode(v)
		if !ok {
			return nil, fmt.Errorf("NOCHESS_MODE %q is not one of beginner, intermediate, advanced", v)
		}
		cfg.Mode = m
	}
	if v := strings.TrimSpace(os.Getenv("NOCHESS_REQUEST_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RequestTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("NOCHESS_DEFAULT_PROMOTION")); v != "" {
		p, err := chessdto.ParsePromotion(v)
		if err != nil || p == chessdto.NoPromotion {
			return nil, fmt.Errorf("NOCHESS_DEFAULT_PROMOTION %q is not one of q, r, b, n", v)
		}
		cfg.DefaultPromotion = p
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Log.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}
	cfg.Log.Console = envBool("LOG_TO_CONSOLE", cfg.Log.Console)
	cfg.Log.ToFile = envBool("LOG_TO_FILE", cfg.Log.ToFile)
	cfg.Log.Caller = envBool("LOG_CALLER", cfg.Log.Caller)
	return cfg, nil
}

// Finalize validates the config and derives defaults that depend on other
// fields. Call again after CLI flags override values.
func (c *AppConfig) Finalize() error {
	if c.ServerURL == "" {
		return errors.New("NOCHESS_SERVER_URL is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("NOCHESS_SERVER_URL %q must be an http(s) URL", c.ServerURL)
	}
	switch c.StreamTransport {
	case TransportWebSocket:
		if c.StreamURL == "" {
			c.StreamURL = DeriveStreamURL(c.ServerURL)
		}
	case TransportRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis stream transport")
		}
	case TransportNone:
	default:
		return fmt.Errorf("NOCHESS_STREAM_TRANSPORT %q is not one of ws, redis, none", c.StreamTransport)
	}
	return nil
}

// DeriveStreamURL maps http(s)://host/base to ws(s)://host/base/ws/analysis/{session}.
func DeriveStreamURL(serverURL string) string {
	base := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + defaultStreamPath
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
