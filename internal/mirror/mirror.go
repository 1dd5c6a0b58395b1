package mirror

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/nochess-client/pkg/chessdto"
	"go.uber.org/zap"
)

var (
	ErrNoPosition        = errors.New("mirror: no position loaded")
	ErrMalformedSquare   = errors.New("mirror: malformed square")
	ErrMalformedPosition = errors.New("mirror: malformed position")
	ErrIllegalMove       = errors.New("mirror: illegal move")
	ErrWrongSide         = errors.New("mirror: piece does not belong to side to move")
	ErrPromotionRequired = errors.New("mirror: promotion piece required")
)

// Style tells the board widget how to draw a reachable square.
type Style string

const (
	StyleQuiet     Style = "quiet"
	StyleCapture   Style = "capture"
	StylePromotion Style = "promotion"
)

type Destination struct {
	Square string
	Style  Style
}

// Result is a successfully applied local move.
type Result struct {
	Position string
	Move     chessdto.Move
}

// Piece is the occupant of a square. Kind is the lowercase piece letter.
type Piece struct {
	Color chessdto.Color
	Kind  byte
}

// Checkpoint is an opaque copy of the full mirror state.
type Checkpoint struct {
	game *nchess.Game
}

// Mirror is the local copy of the authoritative position. It answers legality
// questions and applies at most the one unconfirmed move the pipeline allows.
// Not safe for concurrent use; the session loop owns it.
type Mirror struct {
	game   *nchess.Game
	logger *zap.Logger
}

func New(logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{logger: logger}
}

// Load replaces the position unconditionally. A malformed position is logged
// and the previous position is kept.
func (m *Mirror) Load(position string) error {
	fen := strings.TrimSpace(position)
	opt, err := nchess.FEN(fen)
	if err != nil {
		m.logger.Warn("mirror_load_failed", zap.String("fen", fen), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMalformedPosition, err)
	}
	m.game = nchess.NewGame(opt)
	return nil
}

func (m *Mirror) FEN() string {
	if m.game == nil {
		return ""
	}
	return m.game.FEN()
}

// Turn returns the side to move, or "" when nothing is loaded.
func (m *Mirror) Turn() chessdto.Color {
	if m.game == nil {
		return ""
	}
	return colorFrom(m.game.Position().Turn())
}

// Outcome returns the rules library's verdict ("*" while running).
func (m *Mirror) Outcome() string {
	if m.game == nil {
		return string(nchess.NoOutcome)
	}
	return string(m.game.Outcome())
}

func (m *Mirror) PieceAt(square string) (Piece, bool) {
	if m.game == nil {
		return Piece{}, false
	}
	sq, ok := parseSquare(square)
	if !ok {
		return Piece{}, false
	}
	p := m.game.Position().Board().Piece(sq)
	if p == nchess.NoPiece {
		return Piece{}, false
	}
	return Piece{Color: colorFrom(p.Color()), Kind: pieceLetter(p.Type())}, true
}

// LegalDestinations lists squares reachable from origin for the side to move.
// Empty squares, opponent pieces and malformed input all yield nothing.
func (m *Mirror) LegalDestinations(origin string) []Destination {
	if m.game == nil {
		return nil
	}
	from, ok := parseSquare(origin)
	if !ok {
		return nil
	}
	pos := m.game.Position()
	p := pos.Board().Piece(from)
	if p == nchess.NoPiece || p.Color() != pos.Turn() {
		return nil
	}
	byTo := map[string]Style{}
	for _, mv := range m.game.ValidMoves() {
		if mv.S1() != from {
			continue
		}
		to := mv.S2().String()
		style := StyleQuiet
		switch {
		case mv.Promo() != nchess.NoPieceType:
			style = StylePromotion
		case mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant):
			style = StyleCapture
		}
		byTo[to] = style
	}
	out := make([]Destination, 0, len(byTo))
	for sq, style := range byTo {
		out = append(out, Destination{Square: sq, Style: style})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Square < out[j].Square })
	return out
}

// LegalMoves lists every legal move in canonical encoding, sorted.
func (m *Mirror) LegalMoves() []string {
	if m.game == nil {
		return nil
	}
	out := []string{}
	for _, mv := range m.game.ValidMoves() {
		out = append(out, mv.S1().String()+mv.S2().String()+string(promoFrom(mv.Promo())))
	}
	sort.Strings(out)
	return out
}

// Apply validates and plays a move. Rejections leave the mirror untouched.
func (m *Mirror) Apply(origin, destination string, promotion chessdto.Promotion) (Result, error) {
	if m.game == nil {
		return Result{}, ErrNoPosition
	}
	from, ok := parseSquare(origin)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrMalformedSquare, origin)
	}
	to, ok := parseSquare(destination)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrMalformedSquare, destination)
	}
	pos := m.game.Position()
	p := pos.Board().Piece(from)
	if p == nchess.NoPiece {
		return Result{}, ErrIllegalMove
	}
	if p.Color() != pos.Turn() {
		return Result{}, ErrWrongSide
	}

	found := false
	needsPromotion := false
	for _, mv := range m.game.ValidMoves() {
		if mv.S1() != from || mv.S2() != to {
			continue
		}
		promo := promoFrom(mv.Promo())
		if promo != chessdto.NoPromotion {
			needsPromotion = true
		}
		if promo == promotion {
			found = true
			break
		}
	}
	if !found {
		if needsPromotion && promotion == chessdto.NoPromotion {
			return Result{}, ErrPromotionRequired
		}
		return Result{}, ErrIllegalMove
	}

	canon, err := chessdto.NewMove(from.String(), to.String(), promotion)
	if err != nil {
		return Result{}, err
	}
	if err := m.game.PushNotationMove(canon.String(), nchess.UCINotation{}, nil); err != nil {
		m.logger.Warn("mirror_push_failed", zap.String("move", canon.String()), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return Result{Position: m.game.FEN(), Move: canon}, nil
}

// Checkpoint captures the full state for Restore.
func (m *Mirror) Checkpoint() Checkpoint {
	if m.game == nil {
		return Checkpoint{}
	}
	return Checkpoint{game: m.game.Clone()}
}

// Restore puts back a checkpoint. The checkpoint stays reusable.
func (m *Mirror) Restore(cp Checkpoint) {
	if cp.game == nil {
		m.game = nil
		return
	}
	m.game = cp.game.Clone()
}

func parseSquare(s string) (nchess.Square, bool) {
	v := chessdto.NormalizeSquare(s)
	if v == "" {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(v[0]-'a'), nchess.Rank(v[1]-'1')), true
}

func colorFrom(c nchess.Color) chessdto.Color {
	if c == nchess.White {
		return chessdto.White
	}
	return chessdto.Black
}

func promoFrom(pt nchess.PieceType) chessdto.Promotion {
	switch pt {
	case nchess.Queen:
		return chessdto.PromoteToQueen
	case nchess.Rook:
		return chessdto.PromoteToRook
	case nchess.Bishop:
		return chessdto.PromoteToBishop
	case nchess.Knight:
		return chessdto.PromoteToKnight
	default:
		return chessdto.NoPromotion
	}
}

func pieceLetter(pt nchess.PieceType) byte {
	switch pt {
	case nchess.King:
		return 'k'
	case nchess.Queen:
		return 'q'
	case nchess.Rook:
		return 'r'
	case nchess.Bishop:
		return 'b'
	case nchess.Knight:
		return 'n'
	case nchess.Pawn:
		return 'p'
	default:
		return 0
	}
}
