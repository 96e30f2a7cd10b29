package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCallModelHangupOnce(t *testing.T) {
	m := newCallModel("amber-heron-tuba-meadow", "bob", false)

	m.Update(key("q"))
	m.Update(key("q"))

	if got := <-m.actions; got != ActionHangup {
		t.Fatalf("action=%v, want hangup", got)
	}
	select {
	case a := <-m.actions:
		t.Fatalf("unexpected second action %v", a)
	default:
	}
	if !strings.Contains(m.View(), "Hanging up") {
		t.Fatalf("view does not show hang up:\n%s", m.View())
	}
}

func TestCallModelMuteToggle(t *testing.T) {
	m := newCallModel("id", "bob", true)

	m.Update(key("m"))
	if !m.muted || !strings.Contains(m.View(), "Muted") {
		t.Fatalf("mute not shown")
	}
	m.Update(key("m"))
	if m.muted {
		t.Fatalf("mute not toggled off")
	}
	if len(m.actions) != 2 {
		t.Fatalf("actions queued=%d, want 2", len(m.actions))
	}
}

func TestCallModelStatusAndStats(t *testing.T) {
	m := newCallModel("call-1", "alice", false)
	m.Update(statusMsg("Connected"))
	m.Update(connectedMsg(time.Now().Add(-75 * time.Second)))
	m.Update(statsMsg{{Kind: "audio", Codec: "audio/opus", Packets: 10, Bytes: 30}})

	view := m.View()
	for _, want := range []string{"alice", "call-1", "Connected", "1:15", "opus"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestCallSummaryView(t *testing.T) {
	out := CallSummaryView(CallSummary{
		CallID:   "call-1",
		Peer:     "bob",
		Status:   "ended",
		Reason:   "peer-left",
		Duration: "0:42",
	})
	for _, want := range []string{"call-1", "bob", "ended", "peer-left", "0:42"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "No media") {
		t.Fatalf("empty track table rendered")
	}
}

func TestCallViewWithoutProgram(t *testing.T) {
	v := NewCallView("id", "bob", false)
	v.SetStatus("Connecting")
	v.Stop()
	v.Stop()
}

func TestSpinnerMessageAndStop(t *testing.T) {
	s := NewConnectionSpinner("Connecting to relay")
	s.Start()
	s.UpdateMessage("Preparing media")

	s.mu.Lock()
	msg := s.message
	s.mu.Unlock()
	if msg != "Preparing media" {
		t.Fatalf("message=%q", msg)
	}

	s.Success("Connected to relay")
	s.Stop()
	select {
	case <-s.done:
	default:
		t.Fatal("spinner still running after Success")
	}
}
