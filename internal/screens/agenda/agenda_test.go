package agenda

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/router"
	"github.com/abhisek/lessonsync/internal/screens/confirm"
	"github.com/abhisek/lessonsync/internal/screens/form"
	"github.com/abhisek/lessonsync/internal/store"
	"github.com/abhisek/lessonsync/internal/surface"
)

var (
	monday = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	slot   = monday.Add(14 * time.Hour)
)

type fixture struct {
	a       *Agenda
	s       *surface.Surface
	mock    *calendar.MockProvider
	session *calendar.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenSQLite(ctx, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.DiscardHandler)
	mock := calendar.NewMockProvider()
	client := calendar.NewClient(calendar.WithRetry(mock, calendar.RetryConfig{MaxAttempts: 1}), time.Second, logger)
	session := calendar.NewSession("test", calendar.WithSessionLogger(logger))
	require.NoError(t, session.Connect(ctx, calendar.LocalToken()))

	lessons := st.Lessons("inst-1")
	rec := reconcile.New(reconcile.Deps{
		Lessons:   lessons,
		Conflicts: st.Conflicts("inst-1"),
		Client:    client,
		Session:   session,
		Logger:    logger,
	}, reconcile.DefaultConfig())
	s := surface.New(surface.Deps{Reconciler: rec, Lessons: lessons, Client: client, Logger: logger})

	a := New(s, time.UTC)
	a.SetClock(func() time.Time { return monday.Add(2*24*time.Hour + 10*time.Hour) })
	return &fixture{a: a, s: s, mock: mock, session: session}
}

// drain runs cmd and feeds every resulting message back into the agenda
// until nothing is left. A pushed screen is returned instead of handled.
func (f *fixture) drain(t *testing.T, cmd tea.Cmd) any {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		switch msg := msg.(type) {
		case router.PushScreenMsg:
			return msg.Screen
		case router.PopScreenMsg:
			cmd = msg.Then
			continue
		}
		_, cmd = f.a.Update(msg)
	}
	return nil
}

func (f *fixture) key(t *testing.T, k tea.KeyPressMsg) any {
	t.Helper()
	_, cmd := f.a.Update(k)
	return f.drain(t, cmd)
}

func char(r rune) tea.KeyPressMsg { return tea.KeyPressMsg{Code: r, Text: string(r)} }

func (f *fixture) lesson(t *testing.T, name string, at time.Time) calview.Item {
	t.Helper()
	res := f.s.CreateAt(context.Background(), at, surface.CreateRequest{StudentName: name})
	require.True(t, res.OK, res.Message)
	return *res.Item
}

func TestAgenda_LoadsWeek(t *testing.T) {
	f := newFixture(t)
	f.lesson(t, "Ana", slot)
	f.mock.AddExternal(calendar.RemoteEvent{Title: "Dentist", Start: slot.Add(24 * time.Hour), End: slot.Add(25 * time.Hour)})

	f.drain(t, f.a.Init())

	require.Len(t, f.a.items, 2)
	assert.Equal(t, "Week of Feb 5 to Feb 11", f.a.Title())
	assert.Equal(t, "calendar: connected", f.a.Status())

	out := f.a.View(100, 30)
	assert.Contains(t, out, "Lesson with Ana")
	assert.Contains(t, out, "Dentist (calendar)")
	assert.Contains(t, out, "(today)")
}

func TestAgenda_NudgeMovesLesson(t *testing.T) {
	f := newFixture(t)
	it := f.lesson(t, "Ana", slot)
	f.drain(t, f.a.Init())

	f.key(t, char(']'))

	require.Len(t, f.a.items, 1)
	assert.True(t, f.a.items[0].Start.Equal(slot.Add(15*time.Minute)))
	ev, ok := f.mock.Event(it.RemoteID)
	require.True(t, ok)
	assert.True(t, ev.Start.Equal(slot.Add(15*time.Minute)))
	assert.False(t, f.a.failed)
	assert.Contains(t, f.a.message, "Lesson moved")
}

func TestAgenda_WeekNavigation(t *testing.T) {
	f := newFixture(t)
	f.lesson(t, "Ana", slot)
	f.drain(t, f.a.Init())
	require.Len(t, f.a.items, 1)

	f.key(t, tea.KeyPressMsg{Code: tea.KeyRight})
	assert.Equal(t, "Week of Feb 12 to Feb 18", f.a.Title())
	assert.Empty(t, f.a.items)

	// A late result for the old week is ignored.
	f.a.Update(viewLoadedMsg{week: monday, view: &surface.View{Items: make([]calview.Item, 3)}})
	assert.Empty(t, f.a.items)

	f.key(t, char('t'))
	assert.Len(t, f.a.items, 1)
}

func TestAgenda_CreateThroughForm(t *testing.T) {
	f := newFixture(t)
	f.drain(t, f.a.Init())

	scr := f.key(t, char('n'))
	fm, ok := scr.(*form.Form)
	require.True(t, ok, "expected the lesson form, got %T", scr)
	fm.Init()
	for _, r := range "Bea" {
		fm.Update(char(r))
	}
	assert.Equal(t, "2024-02-07", fm.Values()["date"])
	assert.Equal(t, "11:00", fm.Values()["time"])

	_, cmd := fm.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	f.drain(t, cmd)

	require.Len(t, f.a.items, 1)
	assert.Equal(t, "Lesson with Bea", f.a.items[0].Title)
	assert.Equal(t, 1, f.mock.Len())
}

func TestAgenda_DeleteAsksFirst(t *testing.T) {
	f := newFixture(t)
	f.lesson(t, "Ana", slot)
	f.drain(t, f.a.Init())

	scr := f.key(t, char('d'))
	c, ok := scr.(*confirm.Confirm)
	require.True(t, ok, "expected a confirmation, got %T", scr)
	assert.Equal(t, "Cancel lesson", c.Title())
	assert.Equal(t, 1, f.mock.Len())

	c.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	_, cmd := c.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	f.drain(t, cmd)

	assert.Empty(t, f.a.items)
	assert.Zero(t, f.mock.Len())
}

func TestAgenda_RecreateDetachedLesson(t *testing.T) {
	f := newFixture(t)
	it := f.lesson(t, "Ana", slot)
	f.drain(t, f.a.Init())

	f.mock.RemoveExternal(it.RemoteID)
	f.key(t, char(']'))
	require.Len(t, f.a.items, 1)
	require.True(t, f.a.items[0].Detached)
	assert.Contains(t, f.a.View(100, 30), "press r to re-create")

	f.key(t, char('r'))
	require.Len(t, f.a.items, 1)
	assert.False(t, f.a.items[0].Detached)
	assert.Equal(t, 1, f.mock.Len())
}

func TestAgenda_OfflineShowsLessonsOnly(t *testing.T) {
	f := newFixture(t)
	f.lesson(t, "Ana", slot)
	require.NoError(t, f.session.Disconnect(context.Background()))

	f.drain(t, f.a.Init())

	require.Len(t, f.a.items, 1)
	assert.Equal(t, "calendar: offline", f.a.Status())
	assert.Contains(t, f.a.View(100, 30), "Showing lessons only")

	f.key(t, char('s'))
	assert.True(t, f.a.failed)
	assert.True(t, strings.Contains(f.a.message, "not connected"))
}

func TestAgenda_ReadOnlyItem(t *testing.T) {
	f := newFixture(t)
	f.drain(t, f.a.Init())
	f.a.items = []calview.Item{calview.FromEvent(calendar.RemoteEvent{ID: "occ", Title: "Standup", Start: slot, End: slot.Add(time.Hour), ReadOnly: true})}
	f.a.selectIndex(0)

	assert.Nil(t, f.key(t, char('e')))
	assert.True(t, f.a.failed)
	assert.Contains(t, f.a.View(100, 30), "read-only")
}
