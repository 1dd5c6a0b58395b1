package session

import (
	"time"

	"github.com/park285/nochess-client/internal/stream"
	"github.com/park285/nochess-client/pkg/chessdto"
)

// Phase is the optimistic move pipeline state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePending    Phase = "pending"
	PhaseRolledBack Phase = "rolled_back"
)

// EvalSource says where the passive evaluation came from.
type EvalSource string

const (
	SourceNone     EvalSource = ""
	SourceEmbedded EvalSource = "embedded"
	SourceStream   EvalSource = "stream"
	SourceOnDemand EvalSource = "on_demand"
)

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-visible message. Seq grows by one per notice so the UI can
// tell a repeated text from a new one.
type Notice struct {
	Seq   uint64
	Level NoticeLevel
	Key   string
	Text  string
	At    time.Time
}

// View is an immutable snapshot of everything the UI draws.
type View struct {
	Session     *chessdto.GameSession
	Position    string
	Turn        chessdto.Color
	Phase       Phase
	PendingMove string

	Annotations Annotations

	Evaluation       *chessdto.Evaluation
	EvaluationSource EvalSource

	StreamStatus  stream.Status
	PendingToggle OverlayKind
	Busy          bool
	Notice        Notice
}

// HasSession reports whether a game is loaded.
func (v View) HasSession() bool { return v.Session != nil }

// CanMove reports whether a submission could currently succeed on turn and
// phase alone.
func (v View) CanMove() bool {
	return v.Session != nil && !v.Session.GameOver && v.Phase == PhaseIdle && v.Turn == v.Session.UserColor
}
