package ui

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/chatterbox/internal/utils"
)

// Action is a user request made from the live call view.
type Action int

const (
	ActionHangup Action = iota
	ActionToggleMute
)

type (
	statusMsg    string
	connectedMsg time.Time
	statsMsg     []TrackRow
	tickMsg      time.Time
)

// CallView is the live terminal view of a call in progress.
type CallView struct {
	program *tea.Program
	model   *callModel
	wg      sync.WaitGroup
	stop    sync.Once
}

// NewCallView creates the view for callID with peer.
func NewCallView(callID, peer string, video bool) *CallView {
	return &CallView{model: newCallModel(callID, peer, video)}
}

// Start runs the view in a goroutine.
func (v *CallView) Start() {
	v.program = tea.NewProgram(v.model)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if _, err := v.program.Run(); err != nil {
			slog.Error("call view failed", "err", err)
		}
	}()
}

// Actions delivers hangup and mute requests made by the user.
func (v *CallView) Actions() <-chan Action {
	return v.model.actions
}

func (v *CallView) SetStatus(status string) { v.send(statusMsg(status)) }

func (v *CallView) SetConnected(at time.Time) { v.send(connectedMsg(at)) }

func (v *CallView) SetStats(rows []TrackRow) { v.send(statsMsg(rows)) }

func (v *CallView) send(msg tea.Msg) {
	if v.program != nil {
		v.program.Send(msg)
	}
}

// Stop quits the view and waits for the terminal to be restored.
func (v *CallView) Stop() {
	v.stop.Do(func() {
		if v.program != nil {
			v.program.Quit()
		}
		v.wg.Wait()
	})
}

type callModel struct {
	callID      string
	peer        string
	video       bool
	status      string
	connectedAt time.Time
	muted       bool
	hangingUp   bool
	tracks      []TrackRow
	spinner     spinner.Model
	actions     chan Action
}

func newCallModel(callID, peer string, video bool) *callModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &callModel{
		callID:  callID,
		peer:    peer,
		video:   video,
		status:  "Ringing",
		spinner: s,
		actions: make(chan Action, 4),
	}
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.hangingUp {
				m.hangingUp = true
				m.status = "Hanging up"
				m.act(ActionHangup)
			}
		case "m":
			m.muted = !m.muted
			m.act(ActionToggleMute)
		}

	case statusMsg:
		m.status = string(msg)

	case connectedMsg:
		m.connectedAt = time.Time(msg)

	case statsMsg:
		m.tracks = msg

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *callModel) act(a Action) {
	select {
	case m.actions <- a:
	default:
	}
}

func (m *callModel) View() string {
	var b strings.Builder

	icon := IconCall
	if m.video {
		icon = IconVideo
	}
	fmt.Fprintf(&b, "%s %s %s\n\n", icon, TitleStyle.Render(m.peer), MutedStyle.Render(m.callID))

	if m.connectedAt.IsZero() {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.status)
	} else {
		fmt.Fprintf(&b, "%s %s  %s\n", IconConnected, m.status,
			BoldStyle.Render(utils.FormatCallDuration(time.Since(m.connectedAt))))
	}
	if m.muted {
		fmt.Fprintf(&b, "%s %s\n", IconMuted, WarningStyle.Render("Muted"))
	}

	if len(m.tracks) > 0 {
		b.WriteString("\n" + TracksView(m.tracks) + "\n")
	}

	b.WriteString("\n" + MutedStyle.Render("m mute · q hang up"))
	return CallBoxStyle.Render(b.String())
}
