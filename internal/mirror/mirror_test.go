package mirror

import (
	"errors"
	"testing"

	"github.com/park285/nochess-client/pkg/chessdto"
)

const (
	startFEN     = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	promotionFEN = "7k/P7/8/8/8/8/8/K7 w - - 0 1"
	captureFEN   = "rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq d6 0 2"
)

func loaded(t *testing.T, fen string) *Mirror {
	t.Helper()
	m := New(nil)
	if err := m.Load(fen); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func TestLoadMalformedKeepsPrevious(t *testing.T) {
	m := loaded(t, startFEN)
	if err := m.Load("not a fen"); !errors.Is(err, ErrMalformedPosition) {
		t.Fatalf("expected ErrMalformedPosition, got %v", err)
	}
	if m.FEN() != startFEN {
		t.Fatalf("previous position lost: %s", m.FEN())
	}
}

func TestLegalDestinations(t *testing.T) {
	m := loaded(t, startFEN)
	got := m.LegalDestinations("e2")
	if len(got) != 2 || got[0].Square != "e3" || got[1].Square != "e4" {
		t.Fatalf("unexpected destinations: %+v", got)
	}
	for _, d := range got {
		if d.Style != StyleQuiet {
			t.Fatalf("expected quiet style: %+v", d)
		}
	}
	if len(m.LegalDestinations("e7")) != 0 {
		t.Fatalf("opponent piece must have no destinations")
	}
	if len(m.LegalDestinations("e4")) != 0 {
		t.Fatalf("empty square must have no destinations")
	}
	if len(m.LegalDestinations("z9")) != 0 {
		t.Fatalf("malformed square must have no destinations")
	}
}

func TestDestinationStyles(t *testing.T) {
	m := loaded(t, captureFEN)
	var capture bool
	for _, d := range m.LegalDestinations("e4") {
		if d.Square == "d5" && d.Style == StyleCapture {
			capture = true
		}
	}
	if !capture {
		t.Fatalf("expected e4xd5 capture style")
	}
	p := loaded(t, promotionFEN)
	dests := p.LegalDestinations("a7")
	if len(dests) != 1 || dests[0].Square != "a8" || dests[0].Style != StylePromotion {
		t.Fatalf("expected single promotion destination: %+v", dests)
	}
}

func TestLegalityContainment(t *testing.T) {
	m := loaded(t, startFEN)
	legal := map[string]bool{}
	for _, mv := range m.LegalMoves() {
		legal[mv] = true
	}
	if len(legal) != 20 {
		t.Fatalf("expected 20 opening moves, got %d", len(legal))
	}
	files := "abcdefgh"
	for _, ff := range files {
		for fr := '1'; fr <= '8'; fr++ {
			from := string(ff) + string(fr)
			for _, d := range m.LegalDestinations(from) {
				if !legal[from+d.Square] {
					t.Fatalf("destination %s%s not legal", from, d.Square)
				}
			}
		}
	}
}

func TestApplyAndRejections(t *testing.T) {
	m := loaded(t, startFEN)
	if _, err := m.Apply("e7", "e5", ""); !errors.Is(err, ErrWrongSide) {
		t.Fatalf("expected ErrWrongSide, got %v", err)
	}
	if _, err := m.Apply("e2", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if _, err := m.Apply("e4", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("empty origin: expected ErrIllegalMove, got %v", err)
	}
	if _, err := m.Apply("e2", "x9", ""); !errors.Is(err, ErrMalformedSquare) {
		t.Fatalf("expected ErrMalformedSquare, got %v", err)
	}
	if m.FEN() != startFEN {
		t.Fatalf("rejections must not mutate")
	}
	res, err := m.Apply("E2", "e4", "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Move.String() != "e2e4" || res.Position != m.FEN() {
		t.Fatalf("unexpected result %+v", res)
	}
	if m.Turn() != chessdto.Black {
		t.Fatalf("expected black to move")
	}
	if p, ok := m.PieceAt("e4"); !ok || p.Kind != 'p' || p.Color != chessdto.White {
		t.Fatalf("expected white pawn on e4: %+v %v", p, ok)
	}
}

func TestApplyPromotion(t *testing.T) {
	m := loaded(t, promotionFEN)
	if _, err := m.Apply("a7", "a8", ""); !errors.Is(err, ErrPromotionRequired) {
		t.Fatalf("expected ErrPromotionRequired, got %v", err)
	}
	res, err := m.Apply("a7", "a8", chessdto.PromoteToKnight)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Move.String() != "a7a8n" {
		t.Fatalf("unexpected move %s", res.Move)
	}
	if p, _ := m.PieceAt("a8"); p.Kind != 'n' {
		t.Fatalf("expected knight on a8, got %c", p.Kind)
	}
}

func TestCheckpointRestoreIsExact(t *testing.T) {
	m := loaded(t, startFEN)
	cp := m.Checkpoint()
	if _, err := m.Apply("g1", "f3", ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	m.Restore(cp)
	if m.FEN() != startFEN {
		t.Fatalf("restore mismatch: %s", m.FEN())
	}
	if _, err := m.Apply("e2", "e4", ""); err != nil {
		t.Fatalf("apply after restore: %v", err)
	}
	m.Restore(cp)
	if m.FEN() != startFEN {
		t.Fatalf("checkpoint not reusable: %s", m.FEN())
	}
}

func TestEmptyMirror(t *testing.T) {
	m := New(nil)
	if _, err := m.Apply("e2", "e4", ""); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
	if m.Turn() != "" || m.FEN() != "" || m.Outcome() != "*" {
		t.Fatalf("empty mirror accessors")
	}
}
