package surface

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/notify"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
)

type fixture struct {
	s       *Surface
	rec     *reconcile.Reconciler
	mock    *calendar.MockProvider
	lessons store.LessonRepo
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
		Notices:   notify.NewRecorder(0),
		Logger:    logger,
	}, reconcile.DefaultConfig())

	return &fixture{
		s:       New(Deps{Reconciler: rec, Lessons: lessons, Client: client, Logger: logger}),
		rec:     rec,
		mock:    mock,
		lessons: lessons,
		session: session,
	}
}

var (
	monday = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	slot   = monday.Add(14 * time.Hour)
)

func week() calendar.TimeRange {
	return calendar.TimeRange{From: monday, To: monday.AddDate(0, 0, 7)}
}

func (f *fixture) create(t *testing.T) calview.Item {
	t.Helper()
	res := f.s.CreateAt(context.Background(), slot, CreateRequest{StudentName: "Ana", StudentEmail: "ana@example.com"})
	require.True(t, res.OK, res.Message)
	require.NotNil(t, res.Item)
	return *res.Item
}

func TestCreateAt(t *testing.T) {
	f := newFixture(t)
	item := f.create(t)

	assert.Equal(t, calview.OriginLocal, item.Origin)
	assert.Equal(t, 50*time.Minute, item.Duration())
	assert.Equal(t, lesson.SyncSynced, item.SyncState)
	assert.NotEmpty(t, item.ConferencingLink)
	assert.Equal(t, 1, f.mock.Len())
}

func TestCreateAt_CalendarDown(t *testing.T) {
	f := newFixture(t)
	f.mock.FailNext("create", &calendar.ErrTransient{Err: errors.New("502")})

	res := f.s.CreateAt(context.Background(), slot, CreateRequest{StudentName: "Ana"})
	assert.True(t, res.OK, "the lesson is saved")
	assert.Equal(t, reconcile.SyncPending, res.Sync)
	assert.Contains(t, res.Message, "Lesson scheduled.")
	assert.Contains(t, res.Message, "sync later")
	assert.True(t, res.Item.NeedsSync)
}

func TestCreateAt_Invalid(t *testing.T) {
	f := newFixture(t)
	res := f.s.CreateAt(context.Background(), time.Time{}, CreateRequest{StudentName: "Ana"})
	assert.False(t, res.OK)
	var inv *reconcile.ErrInvalidInput
	assert.ErrorAs(t, res.Err, &inv)
	assert.Zero(t, f.mock.CallCount(""))
}

func TestView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t)
	f.mock.AddExternal(calendar.RemoteEvent{Title: "Dentist", Start: slot, End: slot.Add(time.Hour)})

	canceled := f.s.CreateAt(ctx, slot.Add(24*time.Hour), CreateRequest{StudentName: "Bea"})
	require.True(t, canceled.OK)
	require.True(t, f.s.DeleteItem(ctx, *canceled.Item).OK)

	v, err := f.s.View(ctx, week())
	require.NoError(t, err)
	assert.True(t, v.RemoteOK)
	require.Len(t, v.Items, 2)
	assert.Equal(t, calview.OriginLocal, v.Items[0].Origin, "local before remote at the same time")
	assert.Equal(t, "Dentist", v.Items[1].Title)
	assert.Zero(t, v.Pending)
}

func TestView_DegradesToLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t)

	f.mock.FailNext("list", &calendar.ErrTransient{})
	v, err := f.s.View(ctx, week())
	require.NoError(t, err)
	assert.False(t, v.RemoteOK)
	assert.Contains(t, v.Status, "Showing lessons only")
	require.Len(t, v.Items, 1)

	require.NoError(t, f.session.Disconnect(ctx))
	v, err = f.s.View(ctx, week())
	require.NoError(t, err)
	assert.False(t, v.RemoteOK)
	assert.Contains(t, v.Status, "not connected")
	assert.Len(t, v.Items, 1)
}

func TestView_LessonOverlappingRangeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.s.CreateAt(ctx, monday.Add(-30*time.Minute), CreateRequest{StudentName: "Ana", DurationMin: 60})
	require.True(t, res.OK)

	v, err := f.s.View(ctx, week())
	require.NoError(t, err)
	require.Len(t, v.Items, 1, "linked event not shown twice")
	assert.Equal(t, calview.OriginLocal, v.Items[0].Origin)
}

func TestDragTo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t)

	res := f.s.DragTo(ctx, item, slot.Add(time.Hour))
	require.True(t, res.OK, res.Message)
	assert.Equal(t, reconcile.SyncSynced, res.Sync)
	assert.True(t, res.Item.Start.Equal(slot.Add(time.Hour)))
	ev, _ := f.mock.Event(item.RemoteID)
	assert.True(t, ev.Start.Equal(slot.Add(time.Hour)))

	id := f.mock.AddExternal(calendar.RemoteEvent{Title: "Dentist", Start: slot, End: slot.Add(30 * time.Minute)})
	remote, err := f.s.Resolve(ctx, calview.RemoteKey(id))
	require.NoError(t, err)
	res = f.s.DragTo(ctx, remote, slot.Add(3*time.Hour))
	require.True(t, res.OK, res.Message)
	ev, _ = f.mock.Event(id)
	assert.True(t, ev.Start.Equal(slot.Add(3*time.Hour)))
	assert.Equal(t, 30*time.Minute, ev.End.Sub(ev.Start))
}

func TestDragTo_OutdatedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t)

	// Moved elsewhere after the item was loaded.
	_, err := f.rec.OnLessonRescheduled(ctx, item.LessonID, slot.Add(2*time.Hour), slot.Add(2*time.Hour+item.Duration()))
	require.NoError(t, err)

	res := f.s.DragTo(ctx, item, slot.Add(time.Hour))
	require.True(t, res.OK, res.Message)

	l, err := f.lessons.Get(ctx, item.LessonID)
	require.NoError(t, err)
	assert.True(t, l.StartAt.Equal(slot.Add(time.Hour)), "lesson lands where it was dropped, got %s", l.StartAt)
	assert.Equal(t, item.Duration(), l.Duration())
	ev, _ := f.mock.Event(item.RemoteID)
	assert.True(t, ev.Start.Equal(slot.Add(time.Hour)))
}

func TestDragTo_VanishedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t)
	f.mock.RemoveExternal(item.RemoteID)

	res := f.s.DragTo(ctx, item, slot.Add(time.Hour))
	assert.True(t, res.OK)
	assert.Equal(t, reconcile.SyncDetached, res.Sync)
	assert.Contains(t, res.Message, "re-create")
	assert.True(t, res.Item.Detached)

	res = f.s.Recreate(ctx, item.Key)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, reconcile.SyncSynced, res.Sync)
	assert.NotEqual(t, item.RemoteID, res.Item.RemoteID)
}

func TestEditItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t)

	notes := "bring the etude book"
	res := f.s.EditItem(ctx, item, Edit{Notes: &notes})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, notes, res.Item.Description)

	title := "Renamed"
	res = f.s.EditItem(ctx, item, Edit{Title: &title})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "lesson itself")

	id := f.mock.AddExternal(calendar.RemoteEvent{Title: "Dentist", Start: slot, End: slot.Add(30 * time.Minute)})
	remote, err := f.s.Resolve(ctx, calview.RemoteKey(id))
	require.NoError(t, err)

	res = f.s.EditItem(ctx, remote, Edit{Title: &title})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Renamed", res.Item.Title)

	res = f.s.EditItem(ctx, remote, Edit{Notes: &notes})
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "import it first")

	remote.Editable = false
	res = f.s.EditItem(ctx, remote, Edit{Title: &title})
	assert.False(t, res.OK)
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t)

	res := f.s.DeleteItem(ctx, item)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, lesson.StatusCanceled, res.Item.Status)
	assert.False(t, res.Item.Editable)
	assert.Zero(t, f.mock.Len())

	id := f.mock.AddExternal(calendar.RemoteEvent{Title: "Dentist", Start: slot, End: slot.Add(time.Hour)})
	remote := calview.FromEvent(calendar.RemoteEvent{ID: id, Start: slot, End: slot.Add(time.Hour)})
	res = f.s.DeleteItem(ctx, remote)
	require.True(t, res.OK)
	assert.Equal(t, "Event deleted.", res.Message)

	res = f.s.DeleteItem(ctx, remote)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "already removed")
}

func TestDeleteItem_RemoteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mock.AddExternal(calendar.RemoteEvent{Title: "Dentist", Start: slot, End: slot.Add(time.Hour)})
	remote := calview.FromEvent(calendar.RemoteEvent{ID: id, Start: slot, End: slot.Add(time.Hour)})

	f.mock.FailNext("delete", &calendar.ErrUnauthenticated{})
	res := f.s.DeleteItem(ctx, remote)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "Reconnect")
	assert.Equal(t, 1, f.mock.Len())
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.mock.AddExternal(calendar.RemoteEvent{Title: "Trial lesson", Start: slot, End: slot.Add(45 * time.Minute)})

	res := f.s.Import(ctx, calview.RemoteKey(id), reconcile.ImportRequest{StudentName: "Cleo"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, calview.OriginLocal, res.Item.Origin)
	assert.Equal(t, 45*time.Minute, res.Item.Duration())

	item, err := f.s.Resolve(ctx, calview.RemoteKey(id))
	require.NoError(t, err)
	assert.Equal(t, res.Item.Key, item.Key, "remote key resolves to the lesson")

	res = f.s.Import(ctx, item.Key, reconcile.ImportRequest{})
	assert.False(t, res.OK)

	v, err := f.s.View(ctx, week())
	require.NoError(t, err)
	assert.Len(t, v.Items, 1)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.Resolve(ctx, "bogus")
	var inv *reconcile.ErrInvalidInput
	assert.ErrorAs(t, err, &inv)

	_, err = f.s.Resolve(ctx, calview.LocalKey("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.s.Resolve(ctx, calview.RemoteKey("missing"))
	assert.True(t, calendar.IsNotFound(err))
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t)
	f.mock.RemoveExternal(item.RemoteID)
	f.mock.AddExternal(calendar.RemoteEvent{Title: "Dentist", Start: slot, End: slot.Add(time.Hour)})

	sum := f.s.Sync(ctx, week())
	require.True(t, sum.OK, sum.Message)
	assert.Contains(t, sum.Message, "1 with removed events")
	assert.Contains(t, sum.Message, "1 calendar events without a lesson")

	require.NoError(t, f.session.Disconnect(ctx))
	sum = f.s.Sync(ctx, week())
	assert.False(t, sum.OK)
	assert.Contains(t, sum.Message, "not connected")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&reconcile.ErrInvalidInput{Reason: "reschedule", Err: lesson.ErrInvalidWindow}, "Reschedule: end must be after start."},
		{&reconcile.ErrLocalPersistence{Op: "edit", Err: errors.New("disk full")}, "Could not save your change"},
		{store.ErrNotFound, "no longer exists"},
		{&calendar.ErrRateLimit{}, "busy"},
		{&calendar.ErrInvalidRequest{Reason: "bad attendee"}, "rejected the change: bad attendee"},
		{errors.New("boom"), "Something went wrong: boom"},
	}
	for _, tt := range tests {
		assert.Contains(t, Describe(tt.err), tt.want)
	}
}
