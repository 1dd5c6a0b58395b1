package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	nchess "github.com/corentings/chess/v2"
	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/internal/session"
	"github.com/park285/nochess-client/internal/stream"
	"github.com/park285/nochess-client/pkg/chessdto"
)

var (
	lightStyle    = lipgloss.NewStyle().Background(lipgloss.Color("180")).Foreground(lipgloss.Color("16"))
	darkStyle     = lipgloss.NewStyle().Background(lipgloss.Color("137")).Foreground(lipgloss.Color("16"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("71")).Foreground(lipgloss.Color("16"))
	lastMoveStyle = lipgloss.NewStyle().Background(lipgloss.Color("186")).Foreground(lipgloss.Color("16"))
	pendingStyle  = lipgloss.NewStyle().Background(lipgloss.Color("117")).Foreground(lipgloss.Color("16"))
	overlayStyle  = lipgloss.NewStyle().Background(lipgloss.Color("114")).Foreground(lipgloss.Color("16"))
	coordStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	titleStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	panelStyle    = lipgloss.NewStyle().PaddingLeft(3)
	liveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	waitStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var glyphs = map[nchess.Piece]string{
	nchess.WhiteKing: "♔", nchess.WhiteQueen: "♕", nchess.WhiteRook: "♖",
	nchess.WhiteBishop: "♗", nchess.WhiteKnight: "♘", nchess.WhitePawn: "♙",
	nchess.BlackKing: "♚", nchess.BlackQueen: "♛", nchess.BlackRook: "♜",
	nchess.BlackBishop: "♝", nchess.BlackKnight: "♞", nchess.BlackPawn: "♟",
}

// cellMarks is what the board shows on top of each square's piece.
type cellMarks struct {
	style map[string]lipgloss.Style
	mark  map[string]string
}

func marksFor(v session.View) cellMarks {
	m := cellMarks{style: map[string]lipgloss.Style{}, mark: map[string]string{}}
	paint := func(move string, st lipgloss.Style) {
		if mv, err := chessdto.ParseMove(move); err == nil {
			m.style[mv.From] = st
			m.style[mv.To] = st
		}
	}
	if v.PendingMove != "" {
		paint(v.PendingMove, pendingStyle)
	} else if v.Session != nil && v.Session.LastMove != "" {
		paint(v.Session.LastMove, lastMoveStyle)
	}
	switch o := v.Annotations.Overlay; o.Kind {
	case session.OverlayHint:
		paint(o.Hint.String(), overlayStyle)
	case session.OverlayAnalysis:
		if o.Analysis != nil && o.Analysis.BestMove != "" {
			paint(o.Analysis.BestMove, overlayStyle)
		}
	}
	if v.Annotations.Selected != "" {
		m.style[v.Annotations.Selected] = selectedStyle
	}
	for _, d := range v.Annotations.Destinations {
		switch d.Style {
		case mirror.StyleCapture:
			m.mark[d.Square] = "x"
		case mirror.StylePromotion:
			m.mark[d.Square] = "+"
		default:
			m.mark[d.Square] = "·"
		}
	}
	return m
}

// renderBoard draws the position from the user's side. An unreadable
// position yields an empty string.
func renderBoard(v session.View) string {
	if v.Position == "" {
		return ""
	}
	opt, err := nchess.FEN(v.Position)
	if err != nil {
		return ""
	}
	squares := nchess.NewGame(opt).Position().Board().SquareMap()
	flip := v.Session != nil && v.Session.UserColor == chessdto.Black
	marks := marksFor(v)

	ranks := []int{7, 6, 5, 4, 3, 2, 1, 0}
	files := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if flip {
		ranks = []int{0, 1, 2, 3, 4, 5, 6, 7}
		files = []int{7, 6, 5, 4, 3, 2, 1, 0}
	}

	var sb strings.Builder
	for _, r := range ranks {
		sb.WriteString(coordStyle.Render(fmt.Sprintf("%d ", r+1)))
		for _, f := range files {
			sq := nchess.NewSquare(nchess.File(f), nchess.Rank(r))
			name := sq.String()
			body := " "
			if p, ok := squares[sq]; ok && p != nchess.NoPiece {
				body = glyphs[p]
			}
			if mk, ok := marks.mark[name]; ok {
				if body == " " {
					body = mk
				} else {
					body = body + mk
				}
			}
			cell := " " + body + " "
			if len([]rune(body)) > 1 {
				cell = " " + body
			}
			st := lightStyle
			if (f+r)%2 == 0 {
				st = darkStyle
			}
			if s, ok := marks.style[name]; ok {
				st = s
			}
			sb.WriteString(st.Render(cell))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  ")
	for _, f := range files {
		sb.WriteString(coordStyle.Render(fmt.Sprintf(" %c ", 'a'+f)))
	}
	return sb.String()
}

// evalBar draws white's share as a horizontal gauge of width cells.
func evalBar(ev *chessdto.Evaluation, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(ev.WhiteAdvantage()/100*float64(width) + 0.5)
	filled = max(0, min(width, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func streamLabel(st stream.Status, msgs Messages) string {
	switch st {
	case stream.StatusLive:
		return liveStyle.Render("● " + msgs.Text("tui.live", nil, "live"))
	case stream.StatusConnecting:
		return waitStyle.Render("● " + msgs.Text("tui.connecting", nil, "connecting"))
	case stream.StatusDown:
		return downStyle.Render("● " + msgs.Text("tui.offline", nil, "offline"))
	default:
		return mutedStyle.Render("○")
	}
}

func turnLine(v session.View, msgs Messages) string {
	s := v.Session
	switch {
	case s == nil:
		return msgs.Text("tui.no_session", nil, "No game.")
	case s.GameOver:
		return msgs.Text("session.game_over", map[string]any{"Status": s.Status, "Result": s.Result}, "Game over")
	case v.Phase == session.PhasePending:
		return msgs.Text("tui.pending", map[string]any{"Move": v.PendingMove}, "Sending "+v.PendingMove)
	case v.Turn == s.UserColor:
		return msgs.Text("tui.your_turn", nil, "Your move")
	default:
		return msgs.Text("tui.their_turn", nil, "Engine is thinking")
	}
}

// sidePanel lists game facts next to the board.
func sidePanel(v session.View, msgs Messages) string {
	var sb strings.Builder
	if s := v.Session; s != nil {
		sb.WriteString(titleStyle.Render(fmt.Sprintf("%s · you play %s", s.SessionID, s.UserColor)))
		sb.WriteString("\n")
		if s.Status != "" && !s.GameOver {
			sb.WriteString(mutedStyle.Render(s.Status))
			sb.WriteString("\n")
		}
		if s.InCheck && !s.GameOver {
			sb.WriteString(warnStyle.Render("check"))
			sb.WriteString("\n")
		}
	}
	sb.WriteString(turnLine(v, msgs))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("eval %-7s %s\n", v.Evaluation.Format(), streamLabel(v.StreamStatus, msgs)))
	sb.WriteString(evalBar(v.Evaluation, 24))
	sb.WriteString("\n")
	if v.EvaluationSource != session.SourceNone {
		sb.WriteString(mutedStyle.Render(string(v.EvaluationSource)))
		sb.WriteString("\n")
	}

	switch o := v.Annotations.Overlay; o.Kind {
	case session.OverlayHint:
		sb.WriteString(fmt.Sprintf("\nhint %s\n", o.Hint))
	case session.OverlayAnalysis:
		if a := o.Analysis; a != nil {
			sb.WriteString(fmt.Sprintf("\nanalysis %s depth %d\n", a.Format(), a.Depth))
			if a.BestMove != "" {
				sb.WriteString(fmt.Sprintf("best %s\n", a.BestMove))
			}
			if len(a.PrincipalVariation) > 0 {
				sb.WriteString(mutedStyle.Render(formatLine(a.PrincipalVariation, 8)))
				sb.WriteString("\n")
			}
		}
	}
	if v.PendingToggle != session.OverlayNone {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("loading %s...", v.PendingToggle)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatLine shows at most limit moves of a variation.
func formatLine(pv []string, limit int) string {
	if len(pv) <= limit {
		return strings.Join(pv, " ")
	}
	return strings.Join(pv[:limit], " ") + " …"
}

func noticeLine(n session.Notice) string {
	if n.Text == "" {
		return ""
	}
	switch n.Level {
	case session.NoticeError:
		return errorStyle.Render(n.Text)
	case session.NoticeWarn:
		return warnStyle.Render(n.Text)
	default:
		return n.Text
	}
}
