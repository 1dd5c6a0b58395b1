package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/internal/stream"
	"github.com/park285/nochess-client/pkg/chessdto"
	"go.uber.org/zap"
)

var (
	ErrNoSession       = errors.New("session: no active game")
	ErrMoveInFlight    = errors.New("session: a move is awaiting confirmation")
	ErrRequestInFlight = errors.New("session: a session request is already in flight")
	ErrGameOver        = errors.New("session: game is over")
	ErrNotYourTurn     = errors.New("session: not your turn")
	ErrStopped         = errors.New("session: controller stopped")
	ErrAlreadyRunning  = errors.New("session: controller already running")

	errEmptyResponse = errors.New("empty response")
)

// Authority is the remote owner of game state.
type Authority interface {
	StartGame(ctx context.Context, mode chessdto.Mode) (*chessdto.GameSession, error)
	SubmitMove(ctx context.Context, sessionID string, move chessdto.Move) (*chessdto.GameSession, error)
	Evaluate(ctx context.Context, sessionID string) (*chessdto.Evaluation, error)
	Resign(ctx context.Context, sessionID string) (*chessdto.GameSession, error)
	Restart(ctx context.Context, sessionID string) (*chessdto.GameSession, error)
}

// Stream is the analysis channel owner.
type Stream interface {
	Subscribe(sessionID string)
	Unsubscribe()
}

// Messages renders notice texts.
type Messages interface {
	Text(key string, data map[string]any, fallback string) string
}

// Controller is the single writer for one client's game state. Public
// methods post onto the loop started by Run and return the local verdict;
// network results arrive later and show up through Updates.
type Controller struct {
	auth   Authority
	stream Stream
	msgs   Messages
	logger *zap.Logger
	clock  func() time.Time

	defaultPromotion chessdto.Promotion
	requestTimeout   time.Duration

	events  chan func()
	updates chan View
	done    chan struct{}
	running atomic.Bool
	runCtx  context.Context

	// loop-owned state below
	session *chessdto.GameSession
	epoch   uint64
	mirror  *mirror.Mirror
	ann     Annotations
	pipe    pipeline
	toggle  pendingToggle
	seq     uint64
	tick    uint64

	passive       *chessdto.Evaluation
	passiveSource EvalSource
	passiveStamp  uint64
	streamSeen    bool
	streamStatus  stream.Status

	sessionReq bool
	notice     Notice
}

type Option func(*Controller)

func WithStream(s Stream) Option {
	return func(c *Controller) { c.stream = s }
}

func WithMessages(m Messages) Option {
	return func(c *Controller) { c.msgs = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDefaultPromotion sets the piece used when a click gesture lands on a
// promotion square.
func WithDefaultPromotion(p chessdto.Promotion) Option {
	return func(c *Controller) {
		if p != chessdto.NoPromotion {
			c.defaultPromotion = p
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) { c.requestTimeout = d }
}

func WithClock(f func() time.Time) Option {
	return func(c *Controller) {
		if f != nil {
			c.clock = f
		}
	}
}

func New(auth Authority, opts ...Option) *Controller {
	c := &Controller{
		auth:             auth,
		logger:           zap.NewNop(),
		clock:            time.Now,
		defaultPromotion: chessdto.PromoteToQueen,
		requestTimeout:   15 * time.Second,
		events:           make(chan func(), 64),
		updates:          make(chan View, 1),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mirror = mirror.New(c.logger.Named("mirror"))
	return c
}

// AttachStream wires the analysis stream after construction, for callers
// that need the controller's callbacks to build the stream. Call before Run.
func (c *Controller) AttachStream(s Stream) { c.stream = s }

// Updates delivers the latest View after each change. Intermediate views
// may be skipped.
func (c *Controller) Updates() <-chan View { return c.updates }

// View returns a consistent snapshot taken on the loop.
func (c *Controller) View(ctx context.Context) (View, error) {
	var v View
	err := c.call(ctx, func() error {
		v = c.buildView()
		return nil
	})
	return v, err
}

// CurrentDisplayEvaluation is the value the passive evaluation indicator
// shows.
func (c *Controller) CurrentDisplayEvaluation(ctx context.Context) (*chessdto.Evaluation, EvalSource, error) {
	v, err := c.View(ctx)
	if err != nil {
		return nil, SourceNone, err
	}
	return v.Evaluation, v.EvaluationSource, nil
}

// StartSession asks the authority for a new game.
func (c *Controller) StartSession(ctx context.Context, mode chessdto.Mode) error {
	return c.call(ctx, func() error {
		if c.pipe.phase == PhasePending {
			return ErrMoveInFlight
		}
		if c.sessionReq {
			return ErrRequestInFlight
		}
		c.sessionReq = true
		c.request(func(rctx context.Context) {
			s, err := c.auth.StartGame(rctx, mode)
			c.post(func() { c.onSessionResult("start", mode, s, err) })
		})
		c.publishView()
		return nil
	})
}

// Restart asks the authority to reset the current game.
func (c *Controller) Restart(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		if c.pipe.phase == PhasePending {
			return ErrMoveInFlight
		}
		if c.sessionReq {
			return ErrRequestInFlight
		}
		c.sessionReq = true
		sid := c.session.SessionID
		c.request(func(rctx context.Context) {
			s, err := c.auth.Restart(rctx, sid)
			c.post(func() { c.onSessionResult("restart", "", s, err) })
		})
		c.publishView()
		return nil
	})
}

// Resign concedes the current game.
func (c *Controller) Resign(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.session == nil {
			return ErrNoSession
		}
		if c.session.GameOver {
			return ErrGameOver
		}
		if c.pipe.phase == PhasePending {
			return ErrMoveInFlight
		}
		if c.sessionReq {
			return ErrRequestInFlight
		}
		c.sessionReq = true
		sid, epoch := c.session.SessionID, c.epoch
		c.request(func(rctx context.Context) {
			s, err := c.auth.Resign(rctx, sid)
			c.post(func() { c.onResignResult(epoch, s, err) })
		})
		c.publishView()
		return nil
	})
}

func (c *Controller) onSessionResult(kind string, mode chessdto.Mode, s *chessdto.GameSession, err error) {
	c.sessionReq = false
	if err != nil {
		c.logger.Warn("session_request_failed", zap.String("kind", kind), zap.Error(err))
		c.raise(NoticeError, "session."+kind+"_failed", map[string]any{"Reason": reasonOf(err)},
			fmt.Sprintf("Could not %s the game: %s", kind, reasonOf(err)))
		c.publishView()
		return
	}
	if err := c.adopt(s); err != nil {
		c.raise(NoticeError, "session.malformed", nil, "The server sent a game state this client cannot read.")
		c.publishView()
		return
	}
	if kind == "restart" {
		c.raise(NoticeInfo, "session.restarted", nil, "Game restarted.")
	} else {
		c.raise(NoticeInfo, "session.started", map[string]any{"Mode": string(mode), "Color": string(s.UserColor)},
			"New game started.")
	}
	c.publishView()
}

func (c *Controller) onResignResult(epoch uint64, s *chessdto.GameSession, err error) {
	c.sessionReq = false
	if epoch != c.epoch {
		c.logger.Debug("stale_resign_result", zap.Uint64("epoch", epoch), zap.Uint64("current", c.epoch))
		return
	}
	if err != nil {
		c.logger.Warn("resign_failed", zap.Error(err))
		c.raise(NoticeError, "session.resign_failed", map[string]any{"Reason": reasonOf(err)}, "Could not resign: "+reasonOf(err))
		c.publishView()
		return
	}
	if err := c.onAuthoritativeUpdate(s); err != nil {
		c.raise(NoticeError, "session.malformed", nil, "The server sent a game state this client cannot read.")
	}
	c.publishView()
}

// adopt makes s the current session: new epoch, fresh mirror, no
// annotations, and a stream subscription for its id. A position the mirror
// cannot load is refused and nothing changes.
func (c *Controller) adopt(s *chessdto.GameSession) error {
	if s == nil {
		return ErrNoSession
	}
	if err := c.mirror.Load(s.Position); err != nil {
		c.logger.Warn("session_position_rejected", zap.String("session_id", s.SessionID), zap.Error(err))
		return err
	}
	prev := ""
	if c.session != nil {
		prev = c.session.SessionID
	}
	c.epoch++
	c.session = s
	c.pipe = pipeline{phase: PhaseIdle}
	c.clearAnnotations()
	c.passive = s.Analysis.Clone()
	c.passiveSource = SourceNone
	if c.passive != nil {
		c.passiveSource = SourceEmbedded
	}
	c.passiveStamp = c.nextTick()
	c.streamSeen = false
	c.streamStatus = ""

	if c.stream != nil {
		c.stream.Unsubscribe()
		c.stream.Subscribe(s.SessionID)
	}
	c.logger.Info("session_adopted",
		zap.String("session_id", s.SessionID), zap.String("previous", prev),
		zap.Uint64("epoch", c.epoch), zap.String("user_color", string(s.UserColor)))
	c.announceGameOver()
	return nil
}

// onAuthoritativeUpdate replaces local state with a server snapshot. A
// different session id is a new session.
func (c *Controller) onAuthoritativeUpdate(s *chessdto.GameSession) error {
	if s == nil {
		return ErrNoSession
	}
	if c.session == nil || c.session.SessionID != s.SessionID {
		return c.adopt(s)
	}
	if err := c.mirror.Load(s.Position); err != nil {
		c.logger.Warn("session_position_rejected", zap.String("session_id", s.SessionID), zap.Error(err))
		return err
	}
	wasOver := c.session.GameOver
	c.session = s
	c.clearAnnotations()
	if !c.streamSeen {
		c.passive = s.Analysis.Clone()
		c.passiveSource = SourceNone
		if c.passive != nil {
			c.passiveSource = SourceEmbedded
		}
		c.passiveStamp = c.nextTick()
	}
	if !wasOver {
		c.announceGameOver()
	}
	return nil
}

func (c *Controller) announceGameOver() {
	if c.session == nil || !c.session.GameOver {
		return
	}
	c.logger.Info("session_game_over", zap.String("session_id", c.session.SessionID),
		zap.String("result", c.session.Result), zap.String("status", c.session.Status))
	c.raise(NoticeInfo, "session.game_over",
		map[string]any{"Status": c.session.Status, "Result": c.session.Result},
		"Game over.")
}

// clearAnnotations drops selection and overlay and cancels any toggle
// request in flight.
func (c *Controller) clearAnnotations() {
	c.ann = Annotations{}
	c.cancelToggle()
}

// OnStreamEvaluation is the stream's publish callback.
func (c *Controller) OnStreamEvaluation(sessionID string, ev *chessdto.Evaluation) {
	c.post(func() { c.applyStreamEvaluation(sessionID, ev) })
}

// OnStreamStatus is the stream's status callback.
func (c *Controller) OnStreamStatus(sessionID string, st stream.Status) {
	c.post(func() {
		if c.session == nil || c.session.SessionID != sessionID {
			return
		}
		if st == stream.StatusDown && c.streamStatus == stream.StatusLive {
			c.raise(NoticeWarn, "stream.down", nil, "Live evaluation disconnected.")
		}
		c.streamStatus = st
		c.publishView()
	})
}

func (c *Controller) applyStreamEvaluation(sessionID string, ev *chessdto.Evaluation) {
	if c.session == nil || c.session.SessionID != sessionID || ev == nil {
		c.logger.Debug("stale_stream_evaluation", zap.String("session_id", sessionID))
		return
	}
	c.passive = ev.Clone()
	c.passiveSource = SourceStream
	c.passiveStamp = c.nextTick()
	c.streamSeen = true
	c.publishView()
}

// offerPassive feeds an on-demand result to the indicator when it was
// issued after the value currently shown.
func (c *Controller) offerPassive(ev *chessdto.Evaluation, issued uint64) {
	if ev == nil || issued <= c.passiveStamp {
		return
	}
	c.passive = ev.Clone()
	c.passiveSource = SourceOnDemand
	c.passiveStamp = issued
}

func (c *Controller) raise(level NoticeLevel, key string, data map[string]any, fallback string) {
	text := fallback
	if c.msgs != nil {
		text = c.msgs.Text(key, data, fallback)
	}
	c.seq++
	c.notice = Notice{Seq: c.seq, Level: level, Key: key, Text: text, At: c.now()}
}

func (c *Controller) buildView() View {
	v := View{
		Session:          c.session.Clone(),
		Position:         c.mirror.FEN(),
		Turn:             c.mirror.Turn(),
		Phase:            c.pipe.phase,
		Annotations:      c.ann.clone(),
		Evaluation:       c.passive.Clone(),
		EvaluationSource: c.passiveSource,
		StreamStatus:     c.streamStatus,
		PendingToggle:    c.toggle.kind,
		Busy:             c.sessionReq,
		Notice:           c.notice,
	}
	if v.Phase == "" {
		v.Phase = PhaseIdle
	}
	if c.pipe.phase == PhasePending {
		v.PendingMove = c.pipe.move.String()
	}
	return v
}

// reasonOf returns the authority's own words when it rejected the request.
func reasonOf(err error) string {
	var rej *chessdto.RejectionError
	if errors.As(err, &rej) {
		return rej.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}
