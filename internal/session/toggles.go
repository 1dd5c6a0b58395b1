package session

import (
	"context"
	"errors"

	"github.com/park285/nochess-client/pkg/chessdto"
	"go.uber.org/zap"
)

// pendingToggle is the one on-demand evaluation request in flight.
type pendingToggle struct {
	kind   OverlayKind
	token  uint64
	cancel context.CancelFunc
}

// ToggleHint shows or hides the engine's suggested move. A second toggle
// while the request is still out cancels it.
func (c *Controller) ToggleHint(ctx context.Context) error {
	return c.call(ctx, func() error { return c.toggleOverlay(OverlayHint) })
}

// ToggleAnalysis shows or hides the deep analysis panel.
func (c *Controller) ToggleAnalysis(ctx context.Context) error {
	return c.call(ctx, func() error { return c.toggleOverlay(OverlayAnalysis) })
}

func (c *Controller) toggleOverlay(kind OverlayKind) error {
	if c.pipe.phase == PhasePending {
		return ErrMoveInFlight
	}
	if c.session == nil {
		return ErrNoSession
	}
	if c.ann.Overlay.Kind == kind {
		c.ann.Overlay = NoOverlay()
		c.publishView()
		return nil
	}
	if c.toggle.kind == kind {
		c.cancelToggle()
		c.publishView()
		return nil
	}
	if kind == OverlayHint && c.session.GameOver {
		return ErrGameOver
	}

	// the counterpart goes away before the new request is issued
	c.ann.Overlay = NoOverlay()
	c.cancelToggle()

	c.toggle.token++
	token, epoch, issued := c.toggle.token, c.epoch, c.nextTick()
	sid := c.session.SessionID
	cancel := c.request(func(rctx context.Context) {
		ev, err := c.auth.Evaluate(rctx, sid)
		c.post(func() { c.onToggleResult(kind, token, epoch, issued, ev, err) })
	})
	c.toggle = pendingToggle{kind: kind, token: token, cancel: cancel}
	c.logger.Debug("toggle_requested", zap.String("kind", string(kind)), zap.String("session_id", sid))
	c.publishView()
	return nil
}

// cancelToggle aborts the request in flight. The token is kept so its
// completion is recognised as superseded.
func (c *Controller) cancelToggle() {
	if c.toggle.cancel != nil {
		c.toggle.cancel()
	}
	c.toggle = pendingToggle{token: c.toggle.token}
}

func (c *Controller) onToggleResult(kind OverlayKind, token, epoch, issued uint64, ev *chessdto.Evaluation, err error) {
	if epoch != c.epoch || c.toggle.kind != kind || c.toggle.token != token {
		c.logger.Debug("stale_toggle_result", zap.String("kind", string(kind)), zap.Uint64("token", token))
		return
	}
	c.toggle = pendingToggle{token: c.toggle.token}

	if err == nil && ev == nil {
		err = errEmptyResponse
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.publishView()
			return
		}
		c.logger.Warn("toggle_request_failed", zap.String("kind", string(kind)), zap.Error(err))
		key, fallback := "hint.failed", "Hint request failed: "
		if kind == OverlayAnalysis {
			key, fallback = "analysis.failed", "Analysis request failed: "
		}
		c.raise(NoticeWarn, key, map[string]any{"Reason": reasonOf(err)}, fallback+reasonOf(err))
		c.publishView()
		return
	}

	c.offerPassive(ev, issued)
	switch kind {
	case OverlayHint:
		mv, perr := chessdto.ParseMove(ev.BestMove)
		if ev.BestMove == "" || perr != nil {
			c.raise(NoticeInfo, "hint.unavailable", nil, "The engine has no move to suggest.")
			break
		}
		c.ann.Overlay = HintOverlay(mv)
	case OverlayAnalysis:
		c.ann.Overlay = AnalysisOverlay(ev)
	}
	c.publishView()
}
