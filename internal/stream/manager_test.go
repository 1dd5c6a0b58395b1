package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	sessionID string
	in        chan []byte
	fail      chan error
	closed    chan struct{}
	once      sync.Once
}

func (c *fakeChannel) Next(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case err := <-c.fail:
		return nil, err
	case <-c.closed:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeTransport struct {
	mu      sync.Mutex
	opened  []*fakeChannel
	openErr error
}

func (t *fakeTransport) Open(ctx context.Context, sessionID string) (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	ch := &fakeChannel{sessionID: sessionID, in: make(chan []byte, 8), fail: make(chan error, 1), closed: make(chan struct{})}
	t.opened = append(t.opened, ch)
	return ch, nil
}

func (t *fakeTransport) channels() []*fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeChannel(nil), t.opened...)
}

func (t *fakeTransport) openCount() int { return len(t.channels()) }

func (t *fakeTransport) live() int {
	n := 0
	for _, ch := range t.channels() {
		select {
		case <-ch.closed:
		default:
			n++
		}
	}
	return n
}

type recorder struct {
	mu       sync.Mutex
	evals    []string
	statuses []Status
}

func (r *recorder) publish(sid string, ev *chessdto.Evaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evals = append(r.evals, sid+":"+ev.Format())
}

func (r *recorder) status(_ string, st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *recorder) snapshot() ([]string, []Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.evals...), append([]Status(nil), r.statuses...)
}

func fastBackoff(int) time.Duration { return time.Millisecond }

func TestSubscribePublishesDecodedPayloads(t *testing.T) {
	tr := &fakeTransport{}
	rec := &recorder{}
	m := NewManager(tr, rec.publish, rec.status, WithBackoff(fastBackoff))
	defer func() { _ = m.Close(context.Background()) }()

	m.Subscribe("s1")
	require.Eventually(t, func() bool { return tr.openCount() == 1 }, time.Second, 5*time.Millisecond)
	ch := tr.channels()[0]
	ch.in <- []byte(`{"score":35,"is_mate":false,"pv":[]}`)
	ch.in <- []byte(`not json`)
	ch.in <- []byte(`{"score":-3,"is_mate":true,"best_move":"d8h4","pv":["d8h4"]}`)

	require.Eventually(t, func() bool {
		evals, _ := rec.snapshot()
		return len(evals) == 2
	}, time.Second, 5*time.Millisecond)
	evals, statuses := rec.snapshot()
	require.Equal(t, []string{"s1:0.35", "s1:M-3"}, evals)
	require.Equal(t, []Status{StatusConnecting, StatusLive}, statuses)
}

func TestSubscribeSameSessionIsNoop(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(tr, nil, nil)
	defer func() { _ = m.Close(context.Background()) }()

	m.Subscribe("s1")
	require.Eventually(t, func() bool { return tr.openCount() == 1 }, time.Second, 5*time.Millisecond)
	m.Subscribe("s1")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, tr.openCount())
}

func TestSwitchingSessionsKeepsOneChannel(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(tr, nil, nil)
	defer func() { _ = m.Close(context.Background()) }()

	m.Subscribe("s1")
	require.Eventually(t, func() bool { return tr.openCount() == 1 }, time.Second, 5*time.Millisecond)
	m.Subscribe("s2")
	require.Eventually(t, func() bool { return tr.openCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, tr.live())
	chs := tr.channels()
	require.Equal(t, "s2", chs[1].sessionID)
	require.Equal(t, "s2", m.SessionID())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(tr, nil, nil)
	m.Unsubscribe()
	m.Subscribe("s1")
	require.Eventually(t, func() bool { return tr.openCount() == 1 }, time.Second, 5*time.Millisecond)
	m.Unsubscribe()
	m.Unsubscribe()
	require.NoError(t, m.Close(context.Background()))
	require.Equal(t, 0, tr.live())
	require.Equal(t, "", m.SessionID())
}

func TestReconnectAfterFailure(t *testing.T) {
	tr := &fakeTransport{}
	rec := &recorder{}
	m := NewManager(tr, rec.publish, rec.status, WithReconnect(2), WithBackoff(fastBackoff))
	defer func() { _ = m.Close(context.Background()) }()

	m.Subscribe("s1")
	require.Eventually(t, func() bool { return tr.openCount() == 1 }, time.Second, 5*time.Millisecond)
	tr.channels()[0].fail <- errors.New("reset by peer")
	require.Eventually(t, func() bool { return tr.openCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, tr.live())
	_, statuses := rec.snapshot()
	require.Contains(t, statuses, StatusDown)
}

func TestGivesUpWhenReconnectDisabled(t *testing.T) {
	tr := &fakeTransport{openErr: errors.New("refused")}
	rec := &recorder{}
	m := NewManager(tr, rec.publish, rec.status, WithReconnect(0))
	m.Subscribe("s1")
	require.Eventually(t, func() bool {
		_, st := rec.snapshot()
		return len(st) == 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close(context.Background()))
	_, statuses := rec.snapshot()
	require.Equal(t, []Status{StatusConnecting, StatusDown}, statuses)
}
