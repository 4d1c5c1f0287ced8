package confirm

import (
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lessonsync/internal/router"
)

func TestConfirm_DefaultsToNo(t *testing.T) {
	ran := false
	c := New("Cancel lesson", "Cancel it?", "Yes, cancel", func() tea.Cmd {
		ran = true
		return nil
	})

	_, cmd := c.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	pop, ok := cmd().(router.PopScreenMsg)
	if !ok {
		t.Fatalf("expected pop, got %T", cmd())
	}
	if pop.Then != nil || ran {
		t.Error("expected no action for the default answer")
	}
}

func TestConfirm_Yes(t *testing.T) {
	c := New("Cancel lesson", "Cancel it?", "Yes, cancel", func() tea.Cmd {
		return func() tea.Msg { return "canceled" }
	})

	c.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	_, cmd := c.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	pop, ok := cmd().(router.PopScreenMsg)
	if !ok || pop.Then == nil {
		t.Fatal("expected pop followed by the action")
	}
	if pop.Then() != "canceled" {
		t.Error("expected the yes action to run after the pop")
	}
}

func TestConfirm_DigitPicksDirectly(t *testing.T) {
	c := New("Delete event", "Delete it?", "Yes, delete", func() tea.Cmd {
		return func() tea.Msg { return "deleted" }
	})

	_, cmd := c.Update(tea.KeyPressMsg{Code: '2', Text: "2"})
	pop, ok := cmd().(router.PopScreenMsg)
	if !ok || pop.Then == nil || pop.Then() != "deleted" {
		t.Fatal("expected 2 to choose the yes option")
	}
}

func TestConfirm_UpWrapsToLast(t *testing.T) {
	c := New("Delete event", "Delete it?", "Yes, delete", func() tea.Cmd { return nil })

	c.Update(tea.KeyPressMsg{Code: tea.KeyUp})
	if got := c.menu.Cursor(); got != 1 {
		t.Errorf("cursor = %d, want 1", got)
	}
}
