// Package tui is the terminal board: a bubbletea model that draws
// session.View snapshots and turns typed input into controller calls.
//
// The model runs inside the bubbletea event loop and never touches game
// state directly; every action goes through the controller.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/park285/nochess-client/internal/mirror"
	"github.com/park285/nochess-client/internal/session"
	"github.com/park285/nochess-client/pkg/chessdto"
)

// Controller is the part of *session.Controller the board drives.
type Controller interface {
	Updates() <-chan session.View
	Done() <-chan struct{}
	StartSession(ctx context.Context, mode chessdto.Mode) error
	Restart(ctx context.Context) error
	Resign(ctx context.Context) error
	SelectSquare(ctx context.Context, square string) error
	ClearSelection(ctx context.Context) error
	SubmitMoveText(ctx context.Context, move string) error
	ToggleHint(ctx context.Context) error
	ToggleAnalysis(ctx context.Context) error
}

type Messages interface {
	Text(key string, data map[string]any, fallback string) string
}

// viewMsg carries a fresh snapshot from the controller.
type viewMsg struct{ view session.View }

// actionErrMsg is a local rejection returned by a controller call.
type actionErrMsg struct {
	input string
	err   error
}

type stoppedMsg struct{}

// narrowWidth is the terminal width below which the panel goes under the
// board.
const narrowWidth = 64

type Model struct {
	ctx  context.Context
	ctrl Controller
	msgs Messages
	mode chessdto.Mode

	input  textinput.Model
	view   session.View
	status string
	width  int

	quitting bool
}

// New builds the model. mode is used by "n" without an argument.
func New(ctx context.Context, ctrl Controller, msgs Messages, mode chessdto.Mode) Model {
	if msgs == nil {
		msgs = plainMessages{}
	}
	ti := textinput.New()
	ti.Placeholder = msgs.Text("tui.prompt", nil, "square or move")
	ti.Prompt = "> "
	ti.CharLimit = 32
	ti.Width = 32
	ti.Focus()
	return Model{ctx: ctx, ctrl: ctrl, msgs: msgs, mode: mode, input: ti}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForView(m.ctrl))
}

func waitForView(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case v := <-ctrl.Updates():
			return viewMsg{view: v}
		case <-ctrl.Done():
			return stoppedMsg{}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewMsg:
		m.view = msg.view
		return m, waitForView(m.ctrl)
	case actionErrMsg:
		m.status = m.describe(msg.err, msg.input)
		return m, nil
	case stoppedMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			m.input.SetValue("")
			return m, m.do("", m.ctrl.ClearSelection)
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")
			return m.submit(line)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit interprets one input line.
func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return m, nil
	}
	m.status = ""
	word := fields[0]
	switch {
	case word == "q" || word == "quit":
		m.quitting = true
		return m, tea.Quit
	case word == "h" || word == "hint":
		return m, m.do(word, m.ctrl.ToggleHint)
	case word == "a" || word == "analysis":
		return m, m.do(word, m.ctrl.ToggleAnalysis)
	case word == "r" || word == "restart":
		return m, m.do(word, m.ctrl.Restart)
	case word == "x" || word == "resign":
		return m, m.do(word, m.ctrl.Resign)
	case word == "n" || word == "new":
		mode := m.mode
		if len(fields) > 1 {
			if parsed, ok := chessdto.ParseMode(fields[1]); ok {
				mode = parsed
			}
		}
		return m, m.do(word, func(ctx context.Context) error { return m.ctrl.StartSession(ctx, mode) })
	case chessdto.ValidSquare(word):
		return m, m.do(word, func(ctx context.Context) error { return m.ctrl.SelectSquare(ctx, word) })
	case len(word) == 4 || len(word) == 5:
		return m, m.do(word, func(ctx context.Context) error { return m.ctrl.SubmitMoveText(ctx, word) })
	default:
		m.status = m.msgs.Text("tui.unknown_command", map[string]any{"Input": word}, "Unknown input "+word)
		return m, nil
	}
}

// do runs a controller call off the UI loop. Only a failure produces a
// message; success shows up through the next view.
func (m Model) do(input string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return actionErrMsg{input: input, err: err}
		}
		return nil
	}
}

// describe maps local rejections onto catalog text.
func (m Model) describe(err error, input string) string {
	switch {
	case errors.Is(err, session.ErrMoveInFlight):
		return m.msgs.Text("move.in_flight", nil, err.Error())
	case errors.Is(err, session.ErrRequestInFlight):
		return m.msgs.Text("tui.request_busy", nil, err.Error())
	case errors.Is(err, session.ErrNotYourTurn):
		return m.msgs.Text("move.not_your_turn", nil, err.Error())
	case errors.Is(err, session.ErrGameOver):
		return m.msgs.Text("move.game_over", nil, err.Error())
	case errors.Is(err, session.ErrNoSession):
		return m.msgs.Text("tui.no_session", nil, err.Error())
	case errors.Is(err, mirror.ErrPromotionRequired):
		return m.msgs.Text("move.promotion_required", nil, err.Error())
	case errors.Is(err, mirror.ErrIllegalMove), errors.Is(err, mirror.ErrWrongSide),
		errors.Is(err, mirror.ErrMalformedSquare), errors.Is(err, chessdto.ErrMalformedMove):
		return m.msgs.Text("move.illegal", map[string]any{"Move": input}, err.Error())
	default:
		return err.Error()
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	board := renderBoard(m.view)
	side := panelStyle.Render(sidePanel(m.view, m.msgs))
	var sb strings.Builder
	switch {
	case board == "":
		sb.WriteString(side)
	case m.width > 0 && m.width < narrowWidth:
		sb.WriteString(lipgloss.JoinVertical(lipgloss.Left, board, side))
	default:
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, board, side))
	}
	sb.WriteString("\n\n")
	if n := noticeLine(m.view.Notice); n != "" {
		sb.WriteString(n)
		sb.WriteString("\n")
	}
	if m.status != "" {
		sb.WriteString(warnStyle.Render(m.status))
		sb.WriteString("\n")
	}
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(m.msgs.Text("tui.help", nil, "q quit")))
	return sb.String()
}

// Run blocks until the user quits, the controller stops or ctx ends.
func Run(ctx context.Context, ctrl Controller, msgs Messages, mode chessdto.Mode, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctx, ctrl, msgs, mode), opts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type plainMessages struct{}

func (plainMessages) Text(_ string, _ map[string]any, fallback string) string { return fallback }
