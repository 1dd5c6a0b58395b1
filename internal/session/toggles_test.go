package session

import (
	"errors"
	"testing"

	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/stretchr/testify/require"
)

func TestToggleHintShowsAndHides(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.ToggleHint(h.ctx))
	require.Equal(t, OverlayHint, h.view(t).PendingToggle)
	call := h.auth.next(t, "evaluate")
	require.Equal(t, "s1", call.sid)
	call.reply <- result{ev: &chessdto.Evaluation{Score: 30, BestMove: "e2e4", PrincipalVariation: []string{"e2e4"}}}

	v := h.waitFor(t, func(v View) bool { return v.Annotations.Overlay.Kind == OverlayHint })
	require.Equal(t, "e2e4", v.Annotations.Overlay.Hint.String())
	require.Equal(t, OverlayNone, v.PendingToggle)
	require.Equal(t, SourceOnDemand, v.EvaluationSource)

	require.NoError(t, h.ctrl.ToggleHint(h.ctx))
	require.Equal(t, OverlayNone, h.view(t).Annotations.Overlay.Kind)
	h.auth.expectNoCall(t)
}

func TestDoubleToggleCancelsWithoutSecondRequest(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.ToggleHint(h.ctx))
	require.NoError(t, h.ctrl.ToggleHint(h.ctx))
	first := h.auth.next(t, "evaluate")
	h.auth.expectNoCall(t)

	v := h.view(t)
	require.Equal(t, OverlayNone, v.PendingToggle)
	require.Equal(t, OverlayNone, v.Annotations.Overlay.Kind)

	// a late answer to the cancelled request changes nothing
	first.reply <- result{ev: &chessdto.Evaluation{Score: 30, BestMove: "e2e4"}}
	h.auth.expectNoCall(t)
	require.Equal(t, OverlayNone, h.view(t).Annotations.Overlay.Kind)
}

func TestTogglesAreMutuallyExclusive(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.ToggleHint(h.ctx))
	h.auth.next(t, "evaluate").reply <- result{ev: &chessdto.Evaluation{Score: 30, BestMove: "d2d4"}}
	h.waitFor(t, func(v View) bool { return v.Annotations.Overlay.Kind == OverlayHint })

	require.NoError(t, h.ctrl.ToggleAnalysis(h.ctx))
	v := h.view(t)
	require.Equal(t, OverlayNone, v.Annotations.Overlay.Kind, "hint cleared before analysis arrives")
	require.Equal(t, OverlayAnalysis, v.PendingToggle)
	analysis := h.auth.next(t, "evaluate")

	// switching back while analysis is in flight supersedes it
	require.NoError(t, h.ctrl.ToggleHint(h.ctx))
	hint := h.auth.next(t, "evaluate")
	analysis.reply <- result{ev: &chessdto.Evaluation{Score: 31, BestMove: "c2c4"}}
	hint.reply <- result{ev: &chessdto.Evaluation{Score: 32, BestMove: "g1f3"}}

	v = h.waitFor(t, func(v View) bool { return v.Annotations.Overlay.Kind != OverlayNone })
	require.Equal(t, OverlayHint, v.Annotations.Overlay.Kind)
	require.Equal(t, "g1f3", v.Annotations.Overlay.Hint.String())
	require.Nil(t, v.Annotations.Overlay.Analysis)

	require.NoError(t, h.ctrl.ToggleAnalysis(h.ctx))
	h.auth.next(t, "evaluate").reply <- result{ev: &chessdto.Evaluation{Score: -5, PrincipalVariation: []string{"e7e5"}}}
	v = h.waitFor(t, func(v View) bool { return v.Annotations.Overlay.Kind == OverlayAnalysis })
	require.Equal(t, -5, v.Annotations.Overlay.Analysis.Score)
	require.Equal(t, "", v.Annotations.Overlay.Hint.String())
}

func TestHintWithoutBestMoveRaisesNotice(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.ToggleHint(h.ctx))
	h.auth.next(t, "evaluate").reply <- result{ev: &chessdto.Evaluation{Score: 0}}
	v := h.waitFor(t, func(v View) bool { return v.Notice.Key == "hint.unavailable" })
	require.Equal(t, OverlayNone, v.Annotations.Overlay.Kind)
	require.Equal(t, NoticeInfo, v.Notice.Level)
}

func TestToggleFailureRaisesNotice(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.ToggleAnalysis(h.ctx))
	h.auth.next(t, "evaluate").reply <- result{err: errors.New("engine unavailable")}
	v := h.waitFor(t, func(v View) bool { return v.Notice.Key == "analysis.failed" })
	require.Equal(t, "Analysis request failed: engine unavailable", v.Notice.Text)
	require.Equal(t, OverlayNone, v.PendingToggle)
}

func TestMoveClearsOverlayAndCancelsToggle(t *testing.T) {
	h := newHarness(t)
	h.start(t, gameSession("s1", startFEN, chessdto.White))

	require.NoError(t, h.ctrl.ToggleAnalysis(h.ctx))
	pending := h.auth.next(t, "evaluate")
	require.NoError(t, h.ctrl.SubmitMove(h.ctx, "e2", "e4", ""))
	v := h.view(t)
	require.Equal(t, OverlayNone, v.PendingToggle)
	require.True(t, v.Annotations.Empty())

	pending.reply <- result{ev: &chessdto.Evaluation{Score: 12, BestMove: "e2e4"}}
	h.auth.next(t, "move")
	require.Equal(t, OverlayNone, h.view(t).Annotations.Overlay.Kind)
}
