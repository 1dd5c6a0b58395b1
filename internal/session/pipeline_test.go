package session

import (
	"errors"
	"testing"

	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/internal/msgcat"
	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/stretchr/testify/require"
)

func TestOptimisticMoveConfirmedByAuthority(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.SubmitMove(h.ctx, "e2", "e4", ""))
	v := h.view(t)
	require.Equal(t, PhasePending, v.Phase)
	require.Equal(t, "e2e4", v.PendingMove)
	require.Equal(t, applied(t, startFEN, "e2", "e4", ""), v.Position)
	require.True(t, v.Annotations.Empty())

	// at most one move in flight, and nothing else mutates meanwhile
	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "d2", "d4", ""), ErrMoveInFlight)
	require.ErrorIs(t, h.ctrl.SelectSquare(h.ctx, "d2"), ErrMoveInFlight)
	require.ErrorIs(t, h.ctrl.ToggleHint(h.ctx), ErrMoveInFlight)
	require.ErrorIs(t, h.ctrl.ToggleAnalysis(h.ctx), ErrMoveInFlight)

	call := h.auth.next(t, "move")
	require.Equal(t, "s1", call.sid)
	require.Equal(t, "e2e4", call.move)
	h.auth.expectNoCall(t)

	confirmed := gameSession("s1", afterE4E5FEN, chessdto.White)
	confirmed.LastMove = "e7e5"
	call.reply <- result{s: confirmed}

	v = h.waitFor(t, func(v View) bool { return v.Phase == PhaseIdle && v.Session.LastMove == "e7e5" })
	require.Equal(t, loadedFEN(t, afterE4E5FEN), v.Position)
	require.Equal(t, chessdto.White, v.Turn)
	require.Equal(t, afterE4E5FEN, v.Session.Position)
	require.True(t, v.Annotations.Empty())
}

func TestRejectedMoveRestoresExactPreMoveState(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.ToggleAnalysis(h.ctx))
	h.auth.next(t, "evaluate").reply <- result{ev: &chessdto.Evaluation{Score: 20, BestMove: "e2e4", PrincipalVariation: []string{"e2e4", "e7e5"}}}
	h.waitFor(t, func(v View) bool { return v.Annotations.Overlay.Kind == OverlayAnalysis })
	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "g1"))
	before := h.view(t)
	require.Equal(t, "g1", before.Annotations.Selected)
	require.Len(t, before.Annotations.Destinations, 2)

	// clicking a destination of the selection submits the move
	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "f3"))
	mid := h.view(t)
	require.Equal(t, PhasePending, mid.Phase)
	require.True(t, mid.Annotations.Empty())

	call := h.auth.next(t, "move")
	require.Equal(t, "g1f3", call.move)
	call.reply <- result{err: &chessdto.RejectionError{Status: 400, Message: "Illegal move"}}

	after := h.waitFor(t, func(v View) bool { return v.Phase == PhaseIdle && v.Notice.Seq > before.Notice.Seq })
	require.Equal(t, before.Position, after.Position)
	require.Equal(t, before.Annotations, after.Annotations)
	require.Equal(t, "Illegal move", after.Notice.Text)
	require.Equal(t, NoticeWarn, after.Notice.Level)

	// the restored mirror still accepts the same move
	require.NoError(t, h.ctrl.SubmitMove(h.ctx, "g1", "f3", ""))
	h.auth.next(t, "move")
}

func TestTransportFailureRollsBackWithCatalogText(t *testing.T) {
	h := newHarness(t, WithMessages(msgcat.MustDefault()))
	h.start(t, gameSession("s1", startFEN, chessdto.White))
	before := h.view(t)

	require.NoError(t, h.ctrl.SubmitMoveText(h.ctx, "E2E4"))
	h.auth.next(t, "move").reply <- result{err: errors.New("connection refused")}

	after := h.waitFor(t, func(v View) bool { return v.Phase == PhaseIdle && v.Notice.Key == "move.failed" })
	require.Equal(t, before.Position, after.Position)
	require.Equal(t, "Move e2e4 was not delivered: connection refused", after.Notice.Text)
	require.Equal(t, NoticeError, after.Notice.Level)
}

func TestMalformedAuthoritativePositionDuringPendingRollsBack(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))
	before := h.view(t)

	require.NoError(t, h.ctrl.SubmitMove(h.ctx, "d2", "d4", ""))
	h.auth.next(t, "move").reply <- result{s: gameSession("s1", "garbage", chessdto.Black)}

	after := h.waitFor(t, func(v View) bool { return v.Phase == PhaseIdle && v.Notice.Seq > before.Notice.Seq })
	require.Equal(t, before.Position, after.Position)
	require.Equal(t, startFEN, after.Session.Position)
}

func TestLocalRejectionsSendNothing(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "e2", "e4", ""), ErrNoSession)

	h.start(t, gameSession("s1", startFEN, chessdto.White))
	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "e2"))

	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "e2", "e5", ""), mirror.ErrIllegalMove)
	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "e7", "e5", ""), mirror.ErrWrongSide)
	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "e2", "j9", ""), mirror.ErrMalformedSquare)
	require.ErrorIs(t, h.ctrl.SubmitMoveText(h.ctx, "e2"), chessdto.ErrMalformedMove)
	h.auth.expectNoCall(t)

	v := h.view(t)
	require.Equal(t, PhaseIdle, v.Phase)
	require.Equal(t, "e2", v.Annotations.Selected, "local rejection keeps the selection")
}

func TestNotYourTurnAndGameOver(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", blackToMove, chessdto.Black))
	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "e7", "e5", ""), ErrNotYourTurn)

	over := gameSession("s2", startFEN, chessdto.White)
	over.GameOver = true
	over.Result = "0-1"
	over.Status = "Resignation"
	require.NoError(t, h.ctrl.StartSession(h.ctx, chessdto.ModeBeginner))
	h.auth.next(t, "start").reply <- result{s: over}
	h.waitFor(t, func(v View) bool { return v.Session.SessionID == "s2" })

	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "e2", "e4", ""), ErrGameOver)
	require.ErrorIs(t, h.ctrl.SelectSquare(h.ctx, "e2"), ErrGameOver)
	require.ErrorIs(t, h.ctrl.ToggleHint(h.ctx), ErrGameOver)
	h.auth.expectNoCall(t)
}

func TestSelectSquareGestures(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "E2"))
	v := h.view(t)
	require.Equal(t, "e2", v.Annotations.Selected)
	require.Equal(t, []mirror.Destination{{Square: "e3", Style: mirror.StyleQuiet}, {Square: "e4", Style: mirror.StyleQuiet}}, v.Annotations.Destinations)

	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "e2"))
	require.Equal(t, "", h.view(t).Annotations.Selected, "second click deselects")

	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "e2"))
	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "g1"))
	require.Equal(t, "g1", h.view(t).Annotations.Selected, "own piece reselects")

	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "e7"))
	v = h.view(t)
	require.Equal(t, "", v.Annotations.Selected)
	require.Empty(t, v.Annotations.Destinations)

	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "b1"))
	require.NoError(t, h.ctrl.ClearSelection(h.ctx))
	require.Equal(t, "", h.view(t).Annotations.Selected)
	h.auth.expectNoCall(t)
}

func TestPromotionClickUsesDefault(t *testing.T) {
	h := newHarness(t, WithDefaultPromotion(chessdto.PromoteToKnight))
	h.start(t, gameSession("s1", promotionFEN, chessdto.White))

	require.ErrorIs(t, h.ctrl.SubmitMove(h.ctx, "a7", "a8", ""), mirror.ErrPromotionRequired)
	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "a7"))
	v := h.view(t)
	require.Equal(t, []mirror.Destination{{Square: "a8", Style: mirror.StylePromotion}}, v.Annotations.Destinations)
	require.NoError(t, h.ctrl.SelectSquare(h.ctx, "a8"))
	require.Equal(t, "a7a8n", h.auth.next(t, "move").move)
}
