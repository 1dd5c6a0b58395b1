package chessdto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNilSession = errors.New("nil session")

// Color is a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// ParseColor accepts "white"/"black" and the FEN letters.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return "", false
	}
}

func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

// GameSession is the authority's snapshot of one game. The client never edits
// it; every update replaces it wholesale.
type GameSession struct {
	SessionID  string      `json:"session_id" validate:"required"`
	Position   string      `json:"fen" validate:"required"`
	Turn       Color       `json:"turn" validate:"required,oneof=white black"`
	UserColor  Color       `json:"user_color,omitempty" validate:"required,oneof=white black"`
	GameOver   bool        `json:"game_over"`
	Result     string      `json:"result,omitempty"`
	Status     string      `json:"status,omitempty"`
	InCheck    bool        `json:"in_check,omitempty"`
	LastMove   string      `json:"last_move,omitempty" validate:"omitempty,uci"`
	LegalMoves []string    `json:"legal_moves,omitempty" validate:"dive,uci"`
	Analysis   *Evaluation `json:"analysis,omitempty"`
}

// IsUserTurn reports whether the side to move is the user's.
func (s *GameSession) IsUserTurn() bool {
	return s != nil && !s.GameOver && s.Turn == s.UserColor
}

// Clone returns a deep copy.
func (s *GameSession) Clone() *GameSession {
	if s == nil {
		return nil
	}
	c := *s
	c.LegalMoves = append([]string(nil), s.LegalMoves...)
	c.Analysis = s.Analysis.Clone()
	return &c
}

type sessionWire struct {
	SessionID  string          `json:"session_id"`
	Position   string          `json:"fen"`
	Turn       string          `json:"turn"`
	UserColor  string          `json:"user_color"`
	GameOver   bool            `json:"game_over"`
	Result     *string         `json:"result"`
	Status     string          `json:"status"`
	InCheck    bool            `json:"in_check"`
	LastMove   *string         `json:"last_move"`
	LegalMoves []string        `json:"legal_moves"`
	Analysis   json.RawMessage `json:"analysis"`
}

// DecodeSession parses and validates an authority snapshot. A missing user
// color seats the user as white. An embedded analysis that does not decode is
// dropped rather than failing the whole snapshot.
func DecodeSession(body []byte) (*GameSession, error) {
	var w sessionWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	out := &GameSession{
		SessionID: strings.TrimSpace(w.SessionID),
		Position:  strings.TrimSpace(w.Position),
		GameOver:  w.GameOver,
		Status:    w.Status,
		InCheck:   w.InCheck,
	}
	if c, ok := ParseColor(w.Turn); ok {
		out.Turn = c
	} else {
		out.Turn = Color(w.Turn)
	}
	out.UserColor = White
	if strings.TrimSpace(w.UserColor) != "" {
		if c, ok := ParseColor(w.UserColor); ok {
			out.UserColor = c
		} else {
			out.UserColor = Color(w.UserColor)
		}
	}
	if w.GameOver && w.Result != nil {
		out.Result = *w.Result
	}
	if w.LastMove != nil {
		out.LastMove = strings.ToLower(strings.TrimSpace(*w.LastMove))
	}
	if len(w.LegalMoves) > 0 {
		out.LegalMoves = make([]string, 0, len(w.LegalMoves))
		for _, mv := range w.LegalMoves {
			out.LegalMoves = append(out.LegalMoves, strings.ToLower(strings.TrimSpace(mv)))
		}
	}
	if raw := strings.TrimSpace(string(w.Analysis)); raw != "" && raw != "null" {
		var ev Evaluation
		if err := json.Unmarshal(w.Analysis, &ev); err == nil && ValidateEvaluation(&ev) == nil {
			out.Analysis = &ev
		}
	}
	if err := ValidateSession(out); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return out, nil
}

// DecodeEvaluation parses and validates one evaluation payload.
func DecodeEvaluation(body []byte) (*Evaluation, error) {
	var ev Evaluation
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	if err := ValidateEvaluation(&ev); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &ev, nil
}
