package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/stretchr/testify/require"
)

const (
	startFEN     = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	afterE4E5FEN = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2"
	blackToMove  = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	promotionFEN = "7k/P7/8/8/8/8/8/K7 w - - 0 1"
)

type result struct {
	s   *chessdto.GameSession
	ev  *chessdto.Evaluation
	err error
}

type authCall struct {
	kind  string
	sid   string
	move  string
	mode  chessdto.Mode
	reply chan result
}

type fakeAuthority struct {
	calls chan *authCall
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{calls: make(chan *authCall, 32)}
}

func (f *fakeAuthority) wait(ctx context.Context, c *authCall) result {
	f.calls <- c
	select {
	case r := <-c.reply:
		return r
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

func (f *fakeAuthority) StartGame(ctx context.Context, mode chessdto.Mode) (*chessdto.GameSession, error) {
	r := f.wait(ctx, &authCall{kind: "start", mode: mode, reply: make(chan result, 1)})
	return r.s, r.err
}

func (f *fakeAuthority) SubmitMove(ctx context.Context, sid string, mv chessdto.Move) (*chessdto.GameSession, error) {
	r := f.wait(ctx, &authCall{kind: "move", sid: sid, move: mv.String(), reply: make(chan result, 1)})
	return r.s, r.err
}

func (f *fakeAuthority) Evaluate(ctx context.Context, sid string) (*chessdto.Evaluation, error) {
	r := f.wait(ctx, &authCall{kind: "evaluate", sid: sid, reply: make(chan result, 1)})
	return r.ev, r.err
}

func (f *fakeAuthority) Resign(ctx context.Context, sid string) (*chessdto.GameSession, error) {
	r := f.wait(ctx, &authCall{kind: "resign", sid: sid, reply: make(chan result, 1)})
	return r.s, r.err
}

func (f *fakeAuthority) Restart(ctx context.Context, sid string) (*chessdto.GameSession, error) {
	r := f.wait(ctx, &authCall{kind: "restart", sid: sid, reply: make(chan result, 1)})
	return r.s, r.err
}

func (f *fakeAuthority) next(t *testing.T, kind string) *authCall {
	t.Helper()
	select {
	case c := <-f.calls:
		require.Equal(t, kind, c.kind, "unexpected authority call")
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s call", kind)
		return nil
	}
}

func (f *fakeAuthority) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected %s call", c.kind)
	case <-time.After(30 * time.Millisecond):
	}
}

type fakeStream struct {
	mu     sync.Mutex
	subs   []string
	unsubs int
}

func (s *fakeStream) Subscribe(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sid)
}

func (s *fakeStream) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs++
}

func (s *fakeStream) snapshot() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subs...), s.unsubs
}

type harness struct {
	ctx    context.Context
	ctrl   *Controller
	auth   *fakeAuthority
	stream *fakeStream
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	auth := newFakeAuthority()
	st := &fakeStream{}
	ctrl := New(auth, append([]Option{WithStream(st)}, opts...)...)
	go func() { _ = ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})
	return &harness{ctx: ctx, ctrl: ctrl, auth: auth, stream: st}
}

func gameSession(id, fen string, turn chessdto.Color) *chessdto.GameSession {
	return &chessdto.GameSession{SessionID: id, Position: fen, Turn: turn, UserColor: chessdto.White, Status: "In progress"}
}

func (h *harness) view(t *testing.T) View {
	t.Helper()
	v, err := h.ctrl.View(h.ctx)
	require.NoError(t, err)
	return v
}

func (h *harness) waitFor(t *testing.T, cond func(View) bool) View {
	t.Helper()
	var last View
	require.Eventually(t, func() bool {
		v, err := h.ctrl.View(h.ctx)
		if err != nil {
			return false
		}
		last = v
		return cond(v)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

// start runs StartSession to completion with s as the authority's answer.
func (h *harness) start(t *testing.T, s *chessdto.GameSession) View {
	t.Helper()
	require.NoError(t, h.ctrl.StartSession(h.ctx, chessdto.ModeIntermediate))
	h.auth.next(t, "start").reply <- result{s: s}
	return h.waitFor(t, func(v View) bool { return v.Session != nil && v.Session.SessionID == s.SessionID && !v.Busy })
}

func applied(t *testing.T, fen, from, to string, promo chessdto.Promotion) string {
	t.Helper()
	m := mirror.New(nil)
	require.NoError(t, m.Load(fen))
	res, err := m.Apply(from, to, promo)
	require.NoError(t, err)
	return res.Position
}

func loadedFEN(t *testing.T, fen string) string {
	t.Helper()
	m := mirror.New(nil)
	require.NoError(t, m.Load(fen))
	return m.FEN()
}
