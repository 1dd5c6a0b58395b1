package chessdto

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const evaluationBarCap = 1000

// Evaluation is one engine verdict on a position. Score is in hundredths of a
// pawn, or a mate-in-N ply count when IsMate is set; the sign follows the
// engine. Values are replaced wholesale, never merged.
type Evaluation struct {
	Score              int      `json:"score"`
	IsMate             bool     `json:"is_mate"`
	BestMove           string   `json:"best_move,omitempty" validate:"omitempty,uci"`
	PrincipalVariation []string `json:"pv" validate:"dive,uci"`
	Depth              int      `json:"depth,omitempty" validate:"gte=0"`
}

type evaluationWire struct {
	Score    *float64        `json:"score" validate:"required"`
	IsMate   *bool           `json:"is_mate" validate:"required"`
	BestMove *string         `json:"best_move"`
	PV       json.RawMessage `json:"pv"`
	Depth    *int            `json:"depth"`
}

// UnmarshalJSON accepts the server's loose shapes: a fractional score, a
// missing or "(none)" best move, and pv as either a list or a space separated
// string.
func (e *Evaluation) UnmarshalJSON(b []byte) error {
	var w evaluationWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if err := validate.Struct(&w); err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	if math.IsNaN(*w.Score) || math.IsInf(*w.Score, 0) {
		return fmt.Errorf("evaluation: score out of range")
	}
	out := Evaluation{
		Score:  int(math.Round(*w.Score)),
		IsMate: *w.IsMate,
	}
	if w.BestMove != nil {
		out.BestMove = normalizeEngineMove(*w.BestMove)
	}
	pv, err := decodePV(w.PV)
	if err != nil {
		return fmt.Errorf("evaluation pv: %w", err)
	}
	out.PrincipalVariation = pv
	if w.Depth != nil {
		out.Depth = *w.Depth
	}
	*e = out
	return nil
}

func decodePV(raw json.RawMessage) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, mv := range list {
			if v := normalizeEngineMove(mv); v != "" {
				out = append(out, v)
			}
		}
		return out, nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, err
	}
	out := []string{}
	for _, mv := range strings.Fields(joined) {
		out = append(out, strings.ToLower(mv))
	}
	return out, nil
}

func normalizeEngineMove(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "(none)" {
		return ""
	}
	return v
}

// Format renders the score the way the analysis panel shows it: "M3",
// "-0.35".
func (e *Evaluation) Format() string {
	if e == nil {
		return "-"
	}
	if e.IsMate {
		return fmt.Sprintf("M%d", e.Score)
	}
	return fmt.Sprintf("%.2f", float64(e.Score)/100)
}

// WhiteAdvantage maps the score onto a 0..100 bar. A missing evaluation is
// level; mates pin the bar to one end.
func (e *Evaluation) WhiteAdvantage() float64 {
	if e == nil {
		return 50
	}
	if e.IsMate {
		if e.Score > 0 {
			return 100
		}
		return 0
	}
	capped := e.Score
	if capped > evaluationBarCap {
		capped = evaluationBarCap
	}
	if capped < -evaluationBarCap {
		capped = -evaluationBarCap
	}
	return float64(capped+evaluationBarCap) / float64(2*evaluationBarCap) * 100
}

// Equal compares two snapshots by value.
func (e *Evaluation) Equal(o *Evaluation) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Score != o.Score || e.IsMate != o.IsMate || e.BestMove != o.BestMove || e.Depth != o.Depth {
		return false
	}
	if len(e.PrincipalVariation) != len(o.PrincipalVariation) {
		return false
	}
	for i := range e.PrincipalVariation {
		if e.PrincipalVariation[i] != o.PrincipalVariation[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (e *Evaluation) Clone() *Evaluation {
	if e == nil {
		return nil
	}
	c := *e
	c.PrincipalVariation = append([]string(nil), e.PrincipalVariation...)
	return &c
}
