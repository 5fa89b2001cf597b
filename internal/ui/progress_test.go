package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"borrowck/internal/driver"
)

func TestProgressModelAppliesEvents(t *testing.T) {
	files := []string{"a.own", "b.own", "c.own"}
	events := make(chan driver.Event)
	m := NewProgressModel("checking", files, events).(*progressModel)

	steps := []driver.Event{
		{File: "a.own", Stage: driver.StageParse, Status: driver.StatusWorking},
		{File: "a.own", Stage: driver.StageCheck, Status: driver.StatusDone},
		{File: "b.own", Stage: driver.StageCheck, Status: driver.StatusDone, Violations: 2, Cached: true},
		{File: "c.own", Stage: driver.StageLoad, Status: driver.StatusError},
		// поздние события для завершённого файла игнорируются
		{File: "a.own", Stage: driver.StageParse, Status: driver.StatusWorking},
		{File: "unknown.own", Stage: driver.StageParse, Status: driver.StatusWorking},
	}
	for _, ev := range steps {
		m.Update(eventMsg(ev))
	}

	want := []string{"ok", "2 violation(s) *", "error"}
	for i, item := range m.items {
		if item.status != want[i] {
			t.Errorf("%s: status %q, want %q", item.path, item.status, want[i])
		}
	}
	if m.finished != 3 || m.violations != 2 {
		t.Fatalf("finished=%d violations=%d, want 3 and 2", m.finished, m.violations)
	}

	view := m.View()
	for _, s := range []string{"checking [3/3], 2 violation(s)", "a.own", "2 violation(s) *"} {
		if !strings.Contains(view, s) {
			t.Errorf("view missing %q:\n%s", s, view)
		}
	}

	_, cmd := m.Update(doneMsg{})
	if !m.done || cmd == nil {
		t.Fatal("doneMsg should finish the model")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("doneMsg should quit")
	}
	if !strings.Contains(m.View(), "done: checking") {
		t.Fatalf("view after done:\n%s", m.View())
	}
}

func TestListenForEventReportsClose(t *testing.T) {
	events := make(chan driver.Event, 1)
	m := NewProgressModel("checking", []string{"a.own"}, events).(*progressModel)
	events <- driver.Event{File: "a.own", Status: driver.StatusQueued}
	close(events)

	if _, ok := m.listenForEvent()().(eventMsg); !ok {
		t.Fatal("expected eventMsg")
	}
	if _, ok := m.listenForEvent()().(doneMsg); !ok {
		t.Fatal("expected doneMsg after close")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short.own", 20, "short.own"},
		{"a/very/long/path.own", 10, "a/very/..."},
		{"日本語.own", 5, "日..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
