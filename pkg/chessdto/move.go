package chessdto

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedMove is returned when a move string is not in canonical
// origin/destination/promotion form.
var ErrMalformedMove = errors.New("malformed move encoding")

// Promotion is the optional fifth character of a canonical move.
type Promotion string

const (
	NoPromotion     Promotion = ""
	PromoteToQueen  Promotion = "q"
	PromoteToRook   Promotion = "r"
	PromoteToBishop Promotion = "b"
	PromoteToKnight Promotion = "n"
)

// ParsePromotion accepts piece letters in either case and the long names.
func ParsePromotion(s string) (Promotion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return NoPromotion, nil
	case "q", "queen":
		return PromoteToQueen, nil
	case "r", "rook":
		return PromoteToRook, nil
	case "b", "bishop":
		return PromoteToBishop, nil
	case "n", "knight":
		return PromoteToKnight, nil
	default:
		return NoPromotion, fmt.Errorf("%w: promotion %q", ErrMalformedMove, s)
	}
}

// Move is a decoded canonical move: "e2e4", "e7e8q".
type Move struct {
	From      string
	To        string
	Promotion Promotion
}

func (m Move) String() string {
	return m.From + m.To + string(m.Promotion)
}

// ParseMove decodes a 4 or 5 character move. Input is trimmed and lowercased
// first, so the returned Move is always canonical.
func ParseMove(s string) (Move, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if len(v) != 4 && len(v) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, s)
	}
	from, to := v[0:2], v[2:4]
	if !ValidSquare(from) || !ValidSquare(to) {
		return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, s)
	}
	mv := Move{From: from, To: to}
	if len(v) == 5 {
		p, err := ParsePromotion(v[4:])
		if err != nil || p == NoPromotion {
			return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, s)
		}
		mv.Promotion = p
	}
	return mv, nil
}

// NewMove builds a canonical move from parts, validating each square.
func NewMove(from, to string, promo Promotion) (Move, error) {
	return ParseMove(strings.TrimSpace(from) + strings.TrimSpace(to) + string(promo))
}

// ValidSquare reports whether s is a canonical square name (lowercase file,
// 1-indexed rank).
func ValidSquare(s string) bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// NormalizeSquare lowercases and trims a square, returning "" when invalid.
func NormalizeSquare(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	if !ValidSquare(v) {
		return ""
	}
	return v
}
