// Package render draws a session.View as a PNG: board, pieces, overlays,
// evaluation bar and a heads-up line.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/internal/session"
	"github.com/park285/nochess-client/internal/stream"
	"github.com/park285/nochess-client/pkg/chessdto"
)

var ErrNoPosition = errors.New("render: view has no position")

// Messages resolves catalog keys. *msgcat.Catalog satisfies it.
type Messages interface {
	Text(key string, data map[string]any, fallback string) string
}

type Option func(*Renderer)

// WithSquareSize sets the cell size in pixels (minimum 24).
func WithSquareSize(px int) Option {
	return func(r *Renderer) {
		if px >= 24 {
			r.square = px
		}
	}
}

// WithPieceDir loads wK.svg ... bP.svg from dir instead of the built-in shapes.
func WithPieceDir(dir string) Option {
	return func(r *Renderer) { r.pieces = newPieceSet(dir) }
}

func WithMessages(m Messages) Option {
	return func(r *Renderer) {
		if m != nil {
			r.msgs = m
		}
	}
}

type Renderer struct {
	square int
	pieces *pieceSet
	msgs   Messages
}

func New(opts ...Option) *Renderer {
	r := &Renderer{square: 64, pieces: newPieceSet(""), msgs: fallbackMessages{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	backgroundColor = color.RGBA{22, 24, 34, 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 120}
	pendingFill     = color.NRGBA{R: 148, G: 207, B: 255, A: 130}
	selectedFill    = color.NRGBA{R: 90, G: 200, B: 120, A: 140}
	quietMarker     = color.NRGBA{R: 20, G: 30, B: 20, A: 90}
	captureMarker   = color.NRGBA{R: 200, G: 40, B: 40, A: 140}
	promotionMarker = color.NRGBA{R: 230, G: 170, B: 20, A: 170}
	hintArrow       = color.NRGBA{R: 60, G: 170, B: 90, A: 190}
	analysisArrow   = color.NRGBA{R: 148, G: 207, B: 255, A: 190}
	checkFill       = color.NRGBA{R: 230, G: 40, B: 40, A: 110}
	hudPanelColor   = color.NRGBA{R: 32, G: 35, B: 52, A: 255}
	hudTextPrimary  = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextMuted    = color.NRGBA{R: 170, G: 176, B: 200, A: 255}
	coordinateColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	barWhite        = color.RGBA{240, 240, 236, 255}
	barBlack        = color.RGBA{40, 40, 40, 255}
	statusLive      = color.NRGBA{R: 60, G: 200, B: 90, A: 255}
	statusPending   = color.NRGBA{R: 230, G: 180, B: 40, A: 255}
	statusDown      = color.NRGBA{R: 220, G: 60, B: 60, A: 255}
	statusNone      = color.NRGBA{R: 110, G: 110, B: 120, A: 255}
)

// layout holds the geometry of one frame.
type layout struct {
	square   int
	origin   image.Point
	flip     bool
	bar      image.Rectangle
	hud      image.Rectangle
	notice   image.Rectangle
	width    int
	height   int
	boardEnd int
}

func (r *Renderer) layout(flip bool) layout {
	const (
		barWidth     = 16
		leftMargin   = 64
		rightMargin  = 24
		topMargin    = 72
		bottomMargin = 56
	)
	board := r.square * 8
	l := layout{
		square: r.square,
		origin: image.Pt(leftMargin, topMargin),
		flip:   flip,
		width:  leftMargin + board + rightMargin,
		height: topMargin + board + bottomMargin,
	}
	l.boardEnd = topMargin + board
	l.bar = image.Rect(12, topMargin, 12+barWidth, topMargin+board)
	l.hud = image.Rect(leftMargin, 16, leftMargin+board, topMargin-16)
	l.notice = image.Rect(leftMargin, l.boardEnd+24, leftMargin+board, l.height-8)
	return l
}

// cell returns the pixel rectangle of sq, honouring orientation.
func (l layout) cell(sq nchess.Square) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if l.flip {
		col, row = 7-col, 7-row
	}
	x := l.origin.X + col*l.square
	y := l.origin.Y + row*l.square
	return image.Rect(x, y, x+l.square, y+l.square)
}

// RenderPNG draws v. The board is seen from the user's side.
func (r *Renderer) RenderPNG(ctx context.Context, v session.View) ([]byte, error) {
	img, err := r.Render(ctx, v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Render returns the frame as an image.
func (r *Renderer) Render(ctx context.Context, v session.View) (*image.RGBA, error) {
	if v.Position == "" {
		return nil, ErrNoPosition
	}
	opt, err := nchess.FEN(v.Position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mirror.ErrMalformedPosition, err)
	}
	board := nchess.NewGame(opt).Position().Board()

	flip := v.Session != nil && v.Session.UserColor == chessdto.Black
	l := r.layout(flip)
	c := newCanvas(l.width, l.height)
	c.paint(c.img.Bounds(), backgroundColor)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.drawSquares(c, l)
	r.drawHighlights(c, l, v, board)
	if err := r.drawPieces(ctx, c, l, board); err != nil {
		return nil, err
	}
	r.drawMarkers(c, l, v.Annotations)
	r.drawOverlay(c, l, v.Annotations.Overlay)
	r.drawCoordinates(c, l)
	r.drawEvalBar(c, l, v.Evaluation)
	r.drawHUD(c, l, v)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.img, nil
}

func (r *Renderer) drawSquares(c *canvas, l layout) {
	for idx := 0; idx < 64; idx++ {
		sq := nchess.Square(idx)
		clr := lightSquare
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			clr = darkSquare
		}
		c.paint(l.cell(sq), clr)
	}
}

func (r *Renderer) drawHighlights(c *canvas, l layout, v session.View, board *nchess.Board) {
	if v.PendingMove != "" {
		if mv, err := chessdto.ParseMove(v.PendingMove); err == nil {
			fillMove(c, l, mv, pendingFill)
		}
	} else if v.Session != nil && v.Session.LastMove != "" {
		if mv, err := chessdto.ParseMove(v.Session.LastMove); err == nil {
			fillMove(c, l, mv, lastMoveFill)
		}
	}
	if v.Session != nil && v.Session.InCheck {
		turn := nchess.White
		if v.Turn == chessdto.Black {
			turn = nchess.Black
		}
		for sq, p := range board.SquareMap() {
			if p.Type() == nchess.King && p.Color() == turn {
				c.fill(l.cell(sq), checkFill)
			}
		}
	}
}

func fillMove(c *canvas, l layout, mv chessdto.Move, clr color.Color) {
	for _, s := range []string{mv.From, mv.To} {
		if sq, ok := toSquare(s); ok {
			c.fill(l.cell(sq), clr)
		}
	}
}

func (r *Renderer) drawPieces(ctx context.Context, c *canvas, l layout, board *nchess.Board) error {
	for sq, p := range board.SquareMap() {
		if p == nchess.NoPiece {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := r.pieces.image(p, l.square)
		if err != nil {
			return err
		}
		c.over(l.cell(sq), img)
	}
	return nil
}

func (r *Renderer) drawMarkers(c *canvas, l layout, a session.Annotations) {
	if sq, ok := toSquare(a.Selected); ok {
		c.fill(l.cell(sq), selectedFill)
	}
	for _, d := range a.Destinations {
		sq, ok := toSquare(d.Square)
		if !ok {
			continue
		}
		cell := l.cell(sq)
		center := image.Pt(cell.Min.X+l.square/2, cell.Min.Y+l.square/2)
		switch d.Style {
		case mirror.StyleCapture:
			c.ring(center, l.square/2-2, l.square/2-8, captureMarker)
		case mirror.StylePromotion:
			c.ring(center, l.square/4, 0, promotionMarker)
		default:
			c.disc(center, l.square/7, quietMarker)
		}
	}
}

func (r *Renderer) drawOverlay(c *canvas, l layout, o session.Overlay) {
	var (
		mv  chessdto.Move
		clr color.Color
	)
	switch o.Kind {
	case session.OverlayHint:
		mv, clr = o.Hint, hintArrow
	case session.OverlayAnalysis:
		if o.Analysis == nil || o.Analysis.BestMove == "" {
			return
		}
		parsed, err := chessdto.ParseMove(o.Analysis.BestMove)
		if err != nil {
			return
		}
		mv, clr = parsed, analysisArrow
	default:
		return
	}
	from, ok1 := toSquare(mv.From)
	to, ok2 := toSquare(mv.To)
	if !ok1 || !ok2 {
		return
	}
	c.arrow(l.cell(from), l.cell(to), clr)
}

func (r *Renderer) drawCoordinates(c *canvas, l layout) {
	ascent := c.face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		file := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		fc := l.cell(file)
		label := file.File().String()
		c.text(label, fc.Min.X+(l.square-c.textWidth(label))/2, l.boardEnd+ascent+4, coordinateColor)

		rank := nchess.NewSquare(nchess.FileA, nchess.Rank(i))
		rc := l.cell(rank)
		label = rank.Rank().String()
		c.text(label, l.origin.X-18, rc.Min.Y+(l.square+ascent)/2, coordinateColor)
	}
}

// drawEvalBar fills the bar from the bottom with white's share. Flipped
// boards fill from the top so the user's side stays nearest the user.
func (r *Renderer) drawEvalBar(c *canvas, l layout, ev *chessdto.Evaluation) {
	c.paint(l.bar, barBlack)
	share := ev.WhiteAdvantage() / 100
	h := int(float64(l.bar.Dy())*share + 0.5)
	white := image.Rect(l.bar.Min.X, l.bar.Max.Y-h, l.bar.Max.X, l.bar.Max.Y)
	if l.flip {
		white = image.Rect(l.bar.Min.X, l.bar.Min.Y, l.bar.Max.X, l.bar.Min.Y+h)
	}
	c.paint(white, barWhite)
}

func (r *Renderer) drawHUD(c *canvas, l layout, v session.View) {
	c.panel(l.hud, 10, hudPanelColor)

	third := l.hud.Dx() / 3
	title := image.Rect(l.hud.Min.X, l.hud.Min.Y, l.hud.Min.X+third, l.hud.Max.Y)
	turn := image.Rect(title.Max.X, l.hud.Min.Y, title.Max.X+third, l.hud.Max.Y)
	score := image.Rect(turn.Max.X, l.hud.Min.Y, l.hud.Max.X-24, l.hud.Max.Y)

	c.centred(r.titleText(v), title, hudTextPrimary)
	c.centred(r.turnText(v), turn, hudTextMuted)
	c.centred(v.Evaluation.Format(), score, hudTextPrimary)
	c.disc(image.Pt(l.hud.Max.X-16, l.hud.Min.Y+l.hud.Dy()/2), 5, statusColor(v.StreamStatus))

	if v.Notice.Text != "" {
		m := c.face.Metrics()
		c.text(c.fit(v.Notice.Text, l.notice.Dx()), l.notice.Min.X, l.notice.Min.Y+m.Ascent.Ceil(), hudTextMuted)
	}
}

func (r *Renderer) titleText(v session.View) string {
	if v.Session == nil {
		return r.msgs.Text("render.idle", nil, "No game")
	}
	return r.msgs.Text("render.title", map[string]any{"Color": string(v.Session.UserColor)}, "NoChess")
}

func (r *Renderer) turnText(v session.View) string {
	switch {
	case v.Session == nil:
		return ""
	case v.Session.GameOver:
		return fmt.Sprintf("%s %s", v.Session.Status, v.Session.Result)
	case v.Phase == session.PhasePending:
		return r.msgs.Text("tui.pending", map[string]any{"Move": v.PendingMove}, "Sending "+v.PendingMove)
	case v.Turn == v.Session.UserColor:
		return r.msgs.Text("tui.your_turn", nil, "Your move")
	default:
		return r.msgs.Text("tui.their_turn", nil, "Engine is thinking")
	}
}

func statusColor(st stream.Status) color.Color {
	switch st {
	case stream.StatusLive:
		return statusLive
	case stream.StatusConnecting:
		return statusPending
	case stream.StatusDown:
		return statusDown
	default:
		return statusNone
	}
}

func toSquare(s string) (nchess.Square, bool) {
	s = chessdto.NormalizeSquare(s)
	if s == "" {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

type fallbackMessages struct{}

func (fallbackMessages) Text(_ string, _ map[string]any, fallback string) string { return fallback }
