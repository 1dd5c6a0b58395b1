package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestWebSocketTransportStreamsSessionEvaluations(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Client-Id")
		mu.Unlock()
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, map[string]any{"score": 35, "is_mate": false, "pv": []string{"e7e5"}})
		_ = wsjson.Write(ctx, conn, map[string]any{"score": -900, "is_mate": true, "best_move": "d8h4", "pv": "d8h4"})
		// hold the connection until the client leaves
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	tmpl := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analysis/" + SessionPlaceholder
	tr := NewWebSocketTransport(tmpl,
		WithHeaderProvider(func() map[string]string { return map[string]string{"X-Client-Id": "cli-1"} }),
		WithPingInterval(0),
	)
	rec := &recorder{}
	m := NewManager(tr, rec.publish, rec.status, WithReconnect(0))
	m.Subscribe("s 1")

	require.Eventually(t, func() bool {
		evals, _ := rec.snapshot()
		return len(evals) == 2
	}, 2*time.Second, 10*time.Millisecond)
	evals, _ := rec.snapshot()
	require.Equal(t, []string{"s 1:0.35", "s 1:M-900"}, evals)

	mu.Lock()
	require.Equal(t, "/ws/analysis/s 1", gotPath)
	require.Equal(t, "cli-1", gotHeader)
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))
}

func TestWebSocketURLTemplate(t *testing.T) {
	tr := NewWebSocketTransport("ws://host/ws/analysis/{session}?x=1")
	require.Equal(t, "ws://host/ws/analysis/a%2Fb?x=1", tr.URLFor("a/b"))
}

func TestRedisTransportSubscribesPerSession(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	tr := NewRedisTransport(rdb, "")
	require.Equal(t, "nochess:analysis:s1", tr.ChannelName("s1"))

	rec := &recorder{}
	m := NewManager(tr, rec.publish, rec.status, WithReconnect(0))
	m.Subscribe("s1")
	require.Eventually(t, func() bool {
		_, st := rec.snapshot()
		return len(st) >= 2 && st[1] == StatusLive
	}, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	mr.Publish("nochess:analysis:other", `{"score":1,"is_mate":false,"pv":[]}`)
	require.NoError(t, tr.Publish(ctx, "s1", &chessdto.Evaluation{Score: 12, PrincipalVariation: []string{"g1f3"}}))
	mr.Publish("nochess:analysis:s1", `{"garbage":true}`)
	require.NoError(t, tr.Publish(ctx, "s1", &chessdto.Evaluation{Score: 2, IsMate: true, BestMove: "h5f7"}))

	require.Eventually(t, func() bool {
		evals, _ := rec.snapshot()
		return len(evals) == 2
	}, 2*time.Second, 10*time.Millisecond)
	evals, _ := rec.snapshot()
	require.Equal(t, []string{"s1:0.12", "s1:M2"}, evals)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, m.Close(closeCtx))
}

func TestParseRedisURL(t *testing.T) {
	opt, err := ParseRedisURL("redis://:secret@localhost:6379/2")
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opt.Addr)
	require.Equal(t, "secret", opt.Password)
	require.Equal(t, 2, opt.DB)
	_, err = ParseRedisURL("http://localhost")
	require.Error(t, err)
}
