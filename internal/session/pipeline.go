package session

import (
	"context"
	"errors"

	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/pkg/chessdto"
	"go.uber.org/zap"
)

// pipeline holds the one unconfirmed move and what to restore if the
// authority refuses it.
type pipeline struct {
	phase      Phase
	token      uint64
	epoch      uint64
	move       chessdto.Move
	optimistic string
	checkpoint mirror.Checkpoint
	annBefore  Annotations
}

// SubmitMove plays a move locally and sends it to the authority. The
// returned error is the local verdict only; the authority's answer arrives
// through Updates.
func (c *Controller) SubmitMove(ctx context.Context, origin, destination string, promotion chessdto.Promotion) error {
	return c.call(ctx, func() error {
		return c.submit(origin, destination, promotion)
	})
}

// SubmitMoveText accepts a canonical move string such as "e7e8q".
func (c *Controller) SubmitMoveText(ctx context.Context, move string) error {
	mv, err := chessdto.ParseMove(move)
	if err != nil {
		return err
	}
	return c.SubmitMove(ctx, mv.From, mv.To, mv.Promotion)
}

func (c *Controller) submit(origin, destination string, promotion chessdto.Promotion) error {
	if c.pipe.phase == PhasePending {
		return ErrMoveInFlight
	}
	if c.session == nil {
		return ErrNoSession
	}
	if c.sessionReq {
		return ErrRequestInFlight
	}
	if c.session.GameOver {
		return ErrGameOver
	}
	if c.mirror.Turn() != c.session.UserColor {
		return ErrNotYourTurn
	}

	cp := c.mirror.Checkpoint()
	before := c.ann.clone()
	res, err := c.mirror.Apply(origin, destination, promotion)
	if err != nil {
		c.logger.Debug("move_rejected_locally",
			zap.String("origin", origin), zap.String("destination", destination), zap.Error(err))
		return err
	}
	c.clearAnnotations()

	c.pipe.token++
	c.pipe = pipeline{
		phase:      PhasePending,
		token:      c.pipe.token,
		epoch:      c.epoch,
		move:       res.Move,
		optimistic: res.Position,
		checkpoint: cp,
		annBefore:  before,
	}
	sid, token, epoch, mv := c.session.SessionID, c.pipe.token, c.epoch, res.Move
	c.logger.Debug("move_dispatched", zap.String("session_id", sid), zap.String("move", mv.String()))
	c.request(func(rctx context.Context) {
		s, err := c.auth.SubmitMove(rctx, sid, mv)
		c.post(func() { c.onMoveResult(token, epoch, s, err) })
	})
	c.publishView()
	return nil
}

func (c *Controller) onMoveResult(token, epoch uint64, s *chessdto.GameSession, err error) {
	if c.pipe.phase != PhasePending || c.pipe.token != token || c.epoch != epoch {
		c.logger.Debug("stale_move_result", zap.Uint64("token", token), zap.Uint64("epoch", epoch))
		return
	}
	p := c.pipe
	if err == nil && s != nil {
		if s.Position != p.optimistic {
			c.logger.Warn("optimistic_position_diverged",
				zap.String("move", p.move.String()), zap.String("local", p.optimistic), zap.String("authority", s.Position))
		}
		c.pipe = pipeline{phase: PhaseIdle, token: p.token}
		uerr := c.onAuthoritativeUpdate(s)
		if uerr == nil {
			c.publishView()
			return
		}
		err = uerr
		c.pipe = p
	}
	if err == nil {
		err = errEmptyResponse
	}
	c.rollback(err)
}

// rollback restores the pre-move mirror and annotations exactly.
func (c *Controller) rollback(cause error) {
	p := c.pipe
	c.mirror.Restore(p.checkpoint)
	c.ann = p.annBefore.clone()
	c.pipe = pipeline{phase: PhaseRolledBack, token: p.token}

	var rej *chessdto.RejectionError
	if errors.As(cause, &rej) {
		c.logger.Info("move_rejected", zap.String("move", p.move.String()), zap.String("reason", rej.Error()))
		c.raise(NoticeWarn, "move.rejected", map[string]any{"Reason": rej.Error()}, rej.Error())
	} else {
		c.logger.Warn("move_failed", zap.String("move", p.move.String()), zap.Error(cause))
		c.raise(NoticeError, "move.failed", map[string]any{"Move": p.move.String(), "Reason": reasonOf(cause)},
			"Move "+p.move.String()+" was not delivered: "+reasonOf(cause))
	}
	c.publishView()
	c.pipe.phase = PhaseIdle
	c.publishView()
}

// SelectSquare is the click gesture. With nothing selected an own piece is
// selected; with a selection, one of its destinations submits the move,
// another own piece reselects and anything else clears.
func (c *Controller) SelectSquare(ctx context.Context, square string) error {
	return c.call(ctx, func() error {
		if c.pipe.phase == PhasePending {
			return ErrMoveInFlight
		}
		if c.session == nil {
			return ErrNoSession
		}
		sq := chessdto.NormalizeSquare(square)
		if sq == "" {
			return mirror.ErrMalformedSquare
		}
		if c.session.GameOver {
			return ErrGameOver
		}
		if c.ann.Selected == sq {
			c.ann.clearSelection()
			c.publishView()
			return nil
		}
		if c.ann.Selected != "" {
			if d, ok := c.ann.destination(sq); ok {
				promo := chessdto.NoPromotion
				if d.Style == mirror.StylePromotion {
					promo = c.defaultPromotion
				}
				return c.submit(c.ann.Selected, sq, promo)
			}
		}
		if p, ok := c.mirror.PieceAt(sq); ok && p.Color == c.mirror.Turn() && p.Color == c.session.UserColor {
			c.ann.Selected = sq
			c.ann.Destinations = c.mirror.LegalDestinations(sq)
		} else {
			c.ann.clearSelection()
		}
		c.publishView()
		return nil
	})
}

// ClearSelection drops the selected square and its destinations.
func (c *Controller) ClearSelection(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.ann.Selected == "" && len(c.ann.Destinations) == 0 {
			return nil
		}
		c.ann.clearSelection()
		c.publishView()
		return nil
	})
}
