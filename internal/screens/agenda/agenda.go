// Package agenda is the week view of lessons and calendar events.
package agenda

import (
	"context"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/router"
	"github.com/abhisek/lessonsync/internal/screen"
	"github.com/abhisek/lessonsync/internal/screens/confirm"
	"github.com/abhisek/lessonsync/internal/surface"
	"github.com/abhisek/lessonsync/internal/ui/layout"
)

// nudge is how far [ and ] move the selected item.
const nudge = 15 * time.Minute

const callTimeout = 30 * time.Second

type viewLoadedMsg struct {
	week time.Time
	view *surface.View
	err  error
}

type resultMsg struct {
	res surface.Result
}

type syncedMsg struct {
	sum surface.SyncSummary
}

// Agenda shows one week at a time. Edits go through the interaction
// surface; every completed action reloads the week.
type Agenda struct {
	surface *surface.Surface
	loc     *time.Location
	now     func() time.Time

	week     time.Time
	view     *surface.View
	items    []calview.Item
	selected int
	selKey   string

	loading bool
	message string
	failed  bool
}

var _ screen.Screen = (*Agenda)(nil)

// New creates the agenda for the week containing now.
func New(s *surface.Surface, loc *time.Location) *Agenda {
	if loc == nil {
		loc = time.Local
	}
	return &Agenda{
		surface: s,
		loc:     loc,
		now:     time.Now,
		week:    calview.WeekStart(time.Now(), loc),
	}
}

// SetClock overrides the clock and moves to the week containing now().
func (a *Agenda) SetClock(now func() time.Time) {
	a.now = now
	a.week = calview.WeekStart(now(), a.loc)
}

func (a *Agenda) Init() tea.Cmd {
	return a.load()
}

func (a *Agenda) Title() string {
	end := a.week.AddDate(0, 0, 6)
	return "Week of " + a.week.Format("Jan 2") + " to " + end.Format("Jan 2")
}

func (a *Agenda) Status() string {
	s := "calendar: offline"
	if a.surface.Connected() {
		s = "calendar: connected"
	}
	if a.view != nil && a.view.Pending > 0 {
		s += " · pending " + itoa(a.view.Pending)
	}
	return s
}

func (a *Agenda) KeyHints() []layout.KeyHint {
	hints := []layout.KeyHint{
		{Key: "←→", Description: "Week"},
		{Key: "n", Description: "New"},
	}
	if it, ok := a.current(); ok {
		if it.Editable {
			hints = append(hints,
				layout.KeyHint{Key: "e", Description: "Edit"},
				layout.KeyHint{Key: "[ ]", Description: "∓15m"},
			)
		}
		if it.Origin == calview.OriginRemote {
			hints = append(hints, layout.KeyHint{Key: "i", Description: "Import"})
		}
		if it.Detached {
			hints = append(hints, layout.KeyHint{Key: "r", Description: "Re-create"})
		}
		hints = append(hints, layout.KeyHint{Key: "d", Description: "Delete"})
	}
	return append(hints, layout.KeyHint{Key: "s", Description: "Sync"})
}

func (a *Agenda) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case viewLoadedMsg:
		a.loaded(msg)
		return a, nil

	case resultMsg:
		a.message, a.failed = msg.res.Message, !msg.res.OK
		if msg.res.Item != nil {
			a.selKey = msg.res.Item.Key
		}
		return a, a.load()

	case syncedMsg:
		a.message, a.failed = msg.sum.Message, !msg.sum.OK
		return a, a.load()

	case tea.KeyMsg:
		return a, a.handleKey(msg.String())
	}
	return a, nil
}

func (a *Agenda) handleKey(key string) tea.Cmd {
	switch key {
	case "left", "h":
		return a.moveWeek(-1)
	case "right", "l":
		return a.moveWeek(1)
	case "t":
		a.week = calview.WeekStart(a.now(), a.loc)
		return a.load()
	case "up", "k":
		a.selectIndex(a.selected - 1)
	case "down", "j":
		a.selectIndex(a.selected + 1)
	case "n":
		return push(a.createForm())
	case "s":
		return a.sync()
	}

	it, ok := a.current()
	if !ok {
		return nil
	}
	switch key {
	case "e", "enter":
		if !it.Editable {
			return a.note("This item cannot be changed from here.")
		}
		return push(a.editForm(it))
	case "[":
		return a.drag(it, -nudge)
	case "]":
		return a.drag(it, nudge)
	case "d":
		return push(a.confirmDelete(it))
	case "i":
		if it.Origin != calview.OriginRemote {
			return a.note("Only calendar events can be imported.")
		}
		return push(a.importForm(it))
	case "r":
		if !it.Detached {
			return a.note("This lesson's calendar event is still there.")
		}
		return a.run(func(ctx context.Context) surface.Result {
			return a.surface.Recreate(ctx, it.Key)
		})
	}
	return nil
}

func (a *Agenda) moveWeek(n int) tea.Cmd {
	a.week = a.week.AddDate(0, 0, 7*n)
	a.selKey = ""
	return a.load()
}

func (a *Agenda) drag(it calview.Item, d time.Duration) tea.Cmd {
	if !it.Editable {
		return a.note("This item cannot be moved.")
	}
	a.selKey = it.Key
	return a.run(func(ctx context.Context) surface.Result {
		return a.surface.DragTo(ctx, it, it.Start.Add(d))
	})
}

func (a *Agenda) confirmDelete(it calview.Item) screen.Screen {
	title, question, yes := "Delete event", "Delete \""+it.Title+"\" from your calendar?", "Yes, delete"
	if it.Origin == calview.OriginLocal {
		title, question, yes = "Cancel lesson", "Cancel \""+it.Title+"\" on "+it.Start.In(a.loc).Format("Mon Jan 2 15:04")+"?", "Yes, cancel the lesson"
	}
	return confirm.New(title, question, yes, func() tea.Cmd {
		return a.run(func(ctx context.Context) surface.Result {
			return a.surface.DeleteItem(ctx, it)
		})
	})
}

func (a *Agenda) run(fn func(context.Context) surface.Result) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return resultMsg{res: fn(ctx)}
	}
}

func (a *Agenda) sync() tea.Cmd {
	tr := a.weekRange()
	a.loading = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return syncedMsg{sum: a.surface.Sync(ctx, tr)}
	}
}

func (a *Agenda) load() tea.Cmd {
	week, tr := a.week, a.weekRange()
	a.loading = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		v, err := a.surface.View(ctx, tr)
		return viewLoadedMsg{week: week, view: v, err: err}
	}
}

func (a *Agenda) loaded(msg viewLoadedMsg) {
	if !msg.week.Equal(a.week) {
		return
	}
	a.loading = false
	if msg.err != nil {
		a.message, a.failed = surface.Describe(msg.err), true
		return
	}
	a.view = msg.view
	a.items = msg.view.Items
	a.selected = 0
	for i, it := range a.items {
		if it.Key == a.selKey {
			a.selected = i
			break
		}
	}
	a.selectIndex(a.selected)
}

func (a *Agenda) selectIndex(i int) {
	if len(a.items) == 0 {
		a.selected, a.selKey = 0, ""
		return
	}
	a.selected = max(0, min(i, len(a.items)-1))
	a.selKey = a.items[a.selected].Key
}

func (a *Agenda) current() (calview.Item, bool) {
	if a.selected < 0 || a.selected >= len(a.items) {
		return calview.Item{}, false
	}
	return a.items[a.selected], true
}

func (a *Agenda) note(msg string) tea.Cmd {
	a.message, a.failed = msg, true
	return nil
}

func (a *Agenda) weekRange() calendar.TimeRange {
	return calendar.TimeRange{From: a.week, To: a.week.AddDate(0, 0, 7)}
}

func push(s screen.Screen) tea.Cmd {
	return func() tea.Msg { return router.PushScreenMsg{Screen: s} }
}
