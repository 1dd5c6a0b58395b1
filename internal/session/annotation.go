package session

import (
	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/pkg/chessdto"
)

// OverlayKind tags the single board overlay. Hint and Analysis can never be
// shown together because they share this slot.
type OverlayKind string

const (
	OverlayNone     OverlayKind = ""
	OverlayHint     OverlayKind = "hint"
	OverlayAnalysis OverlayKind = "analysis"
)

// Overlay is {None, Hint(move), Analysis(snapshot)}.
type Overlay struct {
	Kind     OverlayKind
	Hint     chessdto.Move
	Analysis *chessdto.Evaluation
}

func NoOverlay() Overlay { return Overlay{} }

func HintOverlay(mv chessdto.Move) Overlay { return Overlay{Kind: OverlayHint, Hint: mv} }

func AnalysisOverlay(ev *chessdto.Evaluation) Overlay {
	return Overlay{Kind: OverlayAnalysis, Analysis: ev.Clone()}
}

// Annotations is everything drawn on top of the position.
type Annotations struct {
	Selected     string
	Destinations []mirror.Destination
	Overlay      Overlay
}

func (a Annotations) clone() Annotations {
	out := a
	out.Destinations = append([]mirror.Destination(nil), a.Destinations...)
	out.Overlay.Analysis = a.Overlay.Analysis.Clone()
	return out
}

func (a *Annotations) clearSelection() {
	a.Selected = ""
	a.Destinations = nil
}

func (a Annotations) destination(square string) (mirror.Destination, bool) {
	for _, d := range a.Destinations {
		if d.Square == square {
			return d, true
		}
	}
	return mirror.Destination{}, false
}

// Empty reports whether nothing is drawn.
func (a Annotations) Empty() bool {
	return a.Selected == "" && len(a.Destinations) == 0 && a.Overlay.Kind == OverlayNone
}
