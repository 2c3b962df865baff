package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/manimchat/manimchat/internal/conversation"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestModel_SubmitsInput(t *testing.T) {
	inputCh := make(chan inputResult, 1)
	m := NewModel(inputCh, TUIConfig{Backend: "http://localhost:8000"})

	m = update(t, m, readInputMsg{})
	m = typeText(t, m, "draw a circle")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	res := <-inputCh
	if res.err != nil || res.text != "draw a circle" {
		t.Fatalf("got %+v", res)
	}
	if m.inputMode {
		t.Error("input should be inactive after submit")
	}
}

func TestModel_SlashMenuCompletes(t *testing.T) {
	inputCh := make(chan inputResult, 1)
	m := NewModel(inputCh, TUIConfig{})

	m = update(t, m, readInputMsg{})
	m = typeText(t, m, "/se")
	if len(m.slashItems) != 1 || m.slashItems[0].Name != "/sessions" {
		t.Fatalf("menu = %+v", m.slashItems)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if res := <-inputCh; res.text != "/sessions" {
		t.Fatalf("submitted %q", res.text)
	}
}

func TestModel_InterruptEndsInput(t *testing.T) {
	inputCh := make(chan inputResult, 1)
	m := NewModel(inputCh, TUIConfig{})
	m = update(t, m, readInputMsg{})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})

	if res := <-inputCh; res.err == nil {
		t.Fatal("expected an error for interrupted input")
	}
	if !m.quitting {
		t.Error("model should be quitting")
	}
}

func TestModel_PendingAndSettled(t *testing.T) {
	m := NewModel(make(chan inputResult, 1), TUIConfig{})
	m = update(t, m, pendingMsg{})
	if !m.pending || !strings.Contains(m.View(), "Generating") {
		t.Fatalf("pending indicator missing:\n%s", m.View())
	}

	failed := conversation.Turn{Role: conversation.RoleAssistant, Status: conversation.StatusFailed, Error: "boom"}
	if got := m.renderTurn(failed); !strings.Contains(got, "✗ boom") {
		t.Errorf("renderTurn = %q", got)
	}
	m = update(t, m, settledMsg{turn: failed})
	if m.pending {
		t.Error("pending should clear once the turn settles")
	}
}

func TestModel_SessionChangeStopsSpinner(t *testing.T) {
	m := NewModel(make(chan inputResult, 1), TUIConfig{})
	m = update(t, m, pendingMsg{})
	m = update(t, m, sessionMsg{label: "new chat"})
	if m.pending || strings.Contains(m.View(), "Generating") {
		t.Errorf("spinner still running after the chat changed:\n%s", m.View())
	}
}

func TestModel_SessionLabelInStatusBar(t *testing.T) {
	m := NewModel(make(chan inputResult, 1), TUIConfig{Backend: "http://backend"})
	m = update(t, m, sessionMsg{label: "Fourier series"})
	view := m.View()
	if !strings.Contains(view, "Fourier series") || !strings.Contains(view, "http://backend") {
		t.Errorf("status bar = %q", view)
	}
}

func TestIsTerminalNoiseKey(t *testing.T) {
	for _, s := range []string{"]11;rgb:0000/0000/0000", "[<35;10;5M", "[?1;2c", "[12~"} {
		if !isTerminalNoiseKey(s) {
			t.Errorf("%q should be noise", s)
		}
	}
	for _, s := range []string{"a", "[", "/new", "enter"} {
		if isTerminalNoiseKey(s) {
			t.Errorf("%q should not be noise", s)
		}
	}
}

func TestFilterSlashItems(t *testing.T) {
	all := BuiltinSlashCommands()
	if got := filterSlashItems(all, "/"); len(got) != len(all) {
		t.Errorf("'/' should list everything, got %d", len(got))
	}
	got := filterSlashItems(all, "/D")
	if len(got) != 1 || got[0].Name != "/delete" {
		t.Errorf("got %+v", got)
	}
}
