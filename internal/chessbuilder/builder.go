package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/nochess-client/internal/authority"
	"github.com/park285/nochess-client/internal/config"
	"github.com/park285/nochess-client/internal/msgcat"
	"github.com/park285/nochess-client/internal/render"
	"github.com/park285/nochess-client/internal/session"
	"github.com/park285/nochess-client/internal/stream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps is the wired client. Controller.Run must be started by the caller.
type Deps struct {
	Config     *config.AppConfig
	Messages   *msgcat.Catalog
	Authority  *authority.Client
	Controller *session.Controller
	Stream     *stream.Manager
	Renderer   *render.Renderer

	redis  *redis.Client
	logger *zap.Logger
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	client := authority.NewClient(cfg.ServerURL,
		authority.WithTimeout(cfg.RequestTimeout),
		authority.WithLogger(logger.Named("authority")),
	)

	ctrl := session.New(client,
		session.WithMessages(catalog),
		session.WithLogger(logger.Named("session")),
		session.WithDefaultPromotion(cfg.DefaultPromotion),
		session.WithRequestTimeout(cfg.RequestTimeout),
	)

	d := &Deps{
		Config:     cfg,
		Messages:   catalog,
		Authority:  client,
		Controller: ctrl,
		logger:     logger,
	}

	transport, err := d.transport(client.ClientID())
	if err != nil {
		return nil, err
	}
	if transport != nil {
		d.Stream = stream.NewManager(transport, ctrl.OnStreamEvaluation, ctrl.OnStreamStatus,
			stream.WithLogger(logger.Named("stream")),
			stream.WithReconnect(cfg.StreamReconnect),
		)
		ctrl.AttachStream(d.Stream)
	}

	ropts := []render.Option{render.WithMessages(catalog)}
	if cfg.PieceDir != "" {
		ropts = append(ropts, render.WithPieceDir(cfg.PieceDir))
	}
	d.Renderer = render.New(ropts...)

	logger.Info("client_wired",
		zap.String("server", cfg.ServerURL),
		zap.String("stream_transport", cfg.StreamTransport),
		zap.String("client_id", client.ClientID()),
	)
	return d, nil
}

// transport returns nil when live evaluation is disabled.
func (d *Deps) transport(clientID string) (stream.Transport, error) {
	cfg := d.Config
	switch cfg.StreamTransport {
	case config.TransportWebSocket:
		headers := func() map[string]string {
			return map[string]string{"X-Client-Id": clientID}
		}
		return stream.NewWebSocketTransport(cfg.StreamURL,
			stream.WithHeaderProvider(headers),
			stream.WithDialTimeout(cfg.RequestTimeout),
			stream.WithWSLogger(d.logger.Named("ws")),
		), nil
	case config.TransportRedis:
		opts, err := stream.ParseRedisURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		d.redis = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.redis.Ping(ctx).Err(); err != nil {
			_ = d.redis.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return stream.NewRedisTransport(d.redis, cfg.RedisChannel), nil
	case config.TransportNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown stream transport %q", strings.TrimSpace(cfg.StreamTransport))
	}
}

// Close stops the stream and releases the Redis client. The controller is
// stopped by cancelling the context given to Run.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	if d.Stream != nil {
		if err := d.Stream.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
