// Package surface is the interaction layer over the merged calendar. It
// turns user gestures on calendar items into reconciler or provider calls
// and reports each outcome as a Result with a message fit for display.
package surface

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
)

// DefaultDuration is the lesson length used when a create request names none.
const DefaultDuration = 50

// lessonSpan bounds how long before a range a lesson may start and still
// overlap it.
const lessonSpan = 24 * time.Hour

// Deps are the surface's collaborators.
type Deps struct {
	Reconciler *reconcile.Reconciler
	Lessons    store.LessonRepo
	Client     *calendar.Client
	Logger     *slog.Logger
}

// Surface routes edits on calendar items. Lesson items go through the
// reconciler; remote-only items go straight to the calendar client.
type Surface struct {
	rec     *reconcile.Reconciler
	lessons store.LessonRepo
	client  *calendar.Client
	session *calendar.Session
	logger  *slog.Logger
	memo    calview.Memo
}

// New creates a Surface.
func New(d Deps) *Surface {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Surface{
		rec:     d.Reconciler,
		lessons: d.Lessons,
		client:  d.Client,
		session: d.Reconciler.Session(),
		logger:  d.Logger,
	}
}

// Connected reports whether the calendar session holds a token.
func (s *Surface) Connected() bool { return s.session.Connected() }

// View is the merged calendar for a time range.
type View struct {
	Range calendar.TimeRange `json:"range"`
	Items []calview.Item     `json:"items"`

	// RemoteOK is false when the calendar could not be read; Items then
	// holds lessons only and Status says why.
	RemoteOK bool   `json:"remote_ok"`
	Status   string `json:"status,omitempty"`

	// Pending counts lessons in the range waiting for a sync.
	Pending int `json:"pending"`
}

// View loads lessons and remote events for tr and merges them. In-flight
// drags are shown at their new time. Canceled lessons are hidden. A
// calendar failure degrades to a local-only view.
func (s *Surface) View(ctx context.Context, tr calendar.TimeRange) (*View, error) {
	lessons, err := s.lessons.List(ctx, store.LessonFilter{From: tr.From.Add(-lessonSpan), To: tr.To})
	if err != nil {
		return nil, &reconcile.ErrLocalPersistence{Op: "view", Err: err}
	}
	lessons = s.rec.ApplyOverlay(lessons)

	v := &View{Range: tr, RemoteOK: true}
	var events []calendar.RemoteEvent
	switch {
	case !s.session.Connected():
		v.RemoteOK = false
		v.Status = "Calendar not connected. Showing lessons only."
	default:
		events, err = s.client.List(ctx, s.session, tr)
		if err != nil {
			s.logger.WarnContext(ctx, "calendar listing failed, showing lessons only", "error", err)
			v.RemoteOK = false
			v.Status = describeRemote(err) + " Showing lessons only."
			events = nil
		}
	}

	items := s.memo.Merge(lessons, events)
	v.Items = slices.DeleteFunc(items, func(it calview.Item) bool {
		return it.Status == lesson.StatusCanceled || !tr.Overlaps(it.Start, it.End)
	})
	for _, it := range v.Items {
		if it.NeedsSync {
			v.Pending++
		}
	}
	return v, nil
}

// Resolve returns the current item for key.
func (s *Surface) Resolve(ctx context.Context, key string) (calview.Item, error) {
	origin, id, err := calview.ParseKey(key)
	if err != nil {
		return calview.Item{}, &reconcile.ErrInvalidInput{Reason: err.Error()}
	}
	if origin == calview.OriginLocal {
		l, err := s.lessons.Get(ctx, id)
		if err != nil {
			return calview.Item{}, err
		}
		ls := s.rec.ApplyOverlay([]*lesson.Lesson{l})
		return calview.FromLesson(ls[0]), nil
	}
	if l, err := s.lessons.FindByRemoteID(ctx, id); err == nil {
		return calview.FromLesson(l), nil
	}
	ev, err := s.client.Get(ctx, s.session, id)
	if err != nil {
		return calview.Item{}, err
	}
	return calview.FromEvent(*ev), nil
}

// SyncSummary is the outcome of a manual sync.
type SyncSummary struct {
	OK      bool                   `json:"ok"`
	Message string                 `json:"message"`
	Report  *reconcile.Report      `json:"report,omitempty"`
	Retry   *reconcile.RetryReport `json:"retry,omitempty"`
	Err     error                  `json:"-"`
}

// Sync reconciles tr with the calendar and retries queued lessons.
func (s *Surface) Sync(ctx context.Context, tr calendar.TimeRange) SyncSummary {
	if !s.session.Connected() {
		return SyncSummary{Message: "Calendar not connected. Connect it to sync.", Err: &calendar.ErrUnauthenticated{}}
	}
	res := s.rec.Pass(ctx, tr)
	sum := SyncSummary{OK: res.Err == nil, Report: res.Reconcile, Retry: res.Retry, Err: res.Err}
	if res.Err != nil {
		sum.Message = Describe(res.Err)
		return sum
	}
	sum.Message = summarize(res)
	return sum
}
