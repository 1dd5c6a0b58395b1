package stream

import (
	"context"

	"github.com/park285/nochess-client/pkg/chessdto"
)

// Status is the liveness of the current analysis channel.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusDown       Status = "down"
)

// Channel is one open inbound stream. Next blocks until a payload arrives,
// the channel fails, or ctx ends. Close must be safe to call more than once
// and from another goroutine.
type Channel interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport opens a channel scoped to one session.
type Transport interface {
	Open(ctx context.Context, sessionID string) (Channel, error)
}

// PublishFunc receives each decoded evaluation with its session tag.
type PublishFunc func(sessionID string, ev *chessdto.Evaluation)

// StatusFunc receives liveness changes.
type StatusFunc func(sessionID string, st Status)

// HeaderProvider allows injecting per-handshake headers
type HeaderProvider func() map[string]string

var ErrChannelClosed = errf("stream channel closed")

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
