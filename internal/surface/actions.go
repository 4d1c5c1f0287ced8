package surface

import (
	"context"
	"time"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/notify"
	"github.com/abhisek/lessonsync/internal/reconcile"
)

// Result is the outcome of one gesture.
type Result struct {
	OK      bool                 `json:"ok"`
	Message string               `json:"message"`
	Item    *calview.Item        `json:"item,omitempty"`
	Sync    reconcile.SyncResult `json:"sync,omitempty"`
	Notice  *notify.Notice       `json:"notice,omitempty"`

	// Err is the underlying error when OK is false.
	Err error `json:"-"`
}

// CreateRequest describes a lesson created on an empty slot.
type CreateRequest struct {
	StudentID    string
	StudentName  string
	StudentEmail string
	DurationMin  int
	Notes        string
	Materials    string
}

// Edit carries optional changes to an item. Title, Description and
// Location apply to remote-only items; the student and lesson fields apply
// to lessons. Start and DurationMin apply to both.
type Edit struct {
	Title       *string
	Description *string
	Location    *string

	StudentID    *string
	StudentName  *string
	StudentEmail *string
	Notes        *string
	Materials    *string

	Start       *time.Time
	DurationMin *int
}

func (e Edit) remoteOnly() bool {
	return e.Title != nil || e.Description != nil || e.Location != nil
}

func (e Edit) lessonOnly() bool {
	return e.StudentID != nil || e.StudentName != nil || e.StudentEmail != nil ||
		e.Notes != nil || e.Materials != nil
}

// CreateAt schedules a new lesson starting at at.
func (s *Surface) CreateAt(ctx context.Context, at time.Time, req CreateRequest) Result {
	if req.DurationMin == 0 {
		req.DurationMin = DefaultDuration
	}
	out, err := s.rec.CreateLesson(ctx, reconcile.NewLesson{
		StudentID:    req.StudentID,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
		Start:        at,
		DurationMin:  req.DurationMin,
		Notes:        req.Notes,
		Materials:    req.Materials,
	})
	return s.lessonResult("Lesson scheduled.", out, err)
}

// EditItem applies e to item.
func (s *Surface) EditItem(ctx context.Context, item calview.Item, e Edit) Result {
	if item.Origin == calview.OriginLocal {
		if e.remoteOnly() {
			return failed(&reconcile.ErrInvalidInput{Reason: "a lesson's title and details come from the lesson itself"})
		}
		out, err := s.rec.EditLesson(ctx, item.LessonID, reconcile.Edit{
			StudentID:    e.StudentID,
			StudentName:  e.StudentName,
			StudentEmail: e.StudentEmail,
			Notes:        e.Notes,
			Materials:    e.Materials,
			Start:        e.Start,
			DurationMin:  e.DurationMin,
		})
		return s.lessonResult("Lesson updated.", out, err)
	}

	if e.lessonOnly() {
		return failed(&reconcile.ErrInvalidInput{Reason: "this event is not a lesson; import it first"})
	}
	if !item.Editable {
		return failed(&reconcile.ErrInvalidInput{Reason: "this event cannot be changed from here"})
	}
	p := calendar.Patch{Title: e.Title, Description: e.Description, Location: e.Location}
	if e.Start != nil || e.DurationMin != nil {
		start, dur := item.Start, item.Duration()
		if e.Start != nil {
			start = *e.Start
		}
		if e.DurationMin != nil {
			dur = time.Duration(*e.DurationMin) * time.Minute
		}
		p.Start, p.End = &start, ptr(start.Add(dur))
	}
	return s.updateRemote(ctx, item, p, "Event updated.")
}

// DragTo moves item so that it starts at newStart, keeping its length.
func (s *Surface) DragTo(ctx context.Context, item calview.Item, newStart time.Time) Result {
	if !item.Editable {
		return failed(&reconcile.ErrInvalidInput{Reason: "this item cannot be moved"})
	}
	if item.Origin == calview.OriginLocal {
		out, err := s.rec.OnDragTo(ctx, item.LessonID, newStart)
		return s.lessonResult("Lesson moved.", out, err)
	}
	p := calendar.Reschedule(newStart, newStart.Add(item.Duration()))
	return s.updateRemote(ctx, item, p, "Event moved.")
}

// DeleteItem cancels a lesson or deletes a remote-only event.
func (s *Surface) DeleteItem(ctx context.Context, item calview.Item) Result {
	if item.Origin == calview.OriginLocal {
		out, err := s.rec.OnLessonCanceled(ctx, item.LessonID)
		return s.lessonResult("Lesson canceled.", out, err)
	}
	if !item.Editable {
		return failed(&reconcile.ErrInvalidInput{Reason: "this event cannot be deleted from here"})
	}
	err := s.client.Delete(ctx, s.session, item.RemoteID)
	if calendar.IsNotFound(err) {
		return Result{OK: true, Message: "Event was already removed from your calendar."}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "remote delete failed", "remote_id", item.RemoteID, "error", err)
		return failed(err)
	}
	return Result{OK: true, Message: "Event deleted."}
}

// Import turns the remote-only event behind key into a lesson.
func (s *Surface) Import(ctx context.Context, key string, req reconcile.ImportRequest) Result {
	origin, id, err := calview.ParseKey(key)
	if err != nil {
		return failed(&reconcile.ErrInvalidInput{Reason: err.Error()})
	}
	if origin != calview.OriginRemote {
		return failed(&reconcile.ErrInvalidInput{Reason: "only calendar events can be imported"})
	}
	out, err := s.rec.ImportRemote(ctx, id, req)
	return s.lessonResult("Event imported as a lesson.", out, err)
}

// Recreate creates a new calendar event for a lesson whose event was removed.
func (s *Surface) Recreate(ctx context.Context, key string) Result {
	origin, id, err := calview.ParseKey(key)
	if err != nil {
		return failed(&reconcile.ErrInvalidInput{Reason: err.Error()})
	}
	if origin != calview.OriginLocal {
		return failed(&reconcile.ErrInvalidInput{Reason: "only lessons can be re-created"})
	}
	out, err := s.rec.RecreateRemote(ctx, id)
	return s.lessonResult("Calendar event re-created.", out, err)
}

func (s *Surface) updateRemote(ctx context.Context, item calview.Item, p calendar.Patch, done string) Result {
	ev, err := s.client.Update(ctx, s.session, item.RemoteID, p)
	if err != nil {
		s.logger.WarnContext(ctx, "remote update failed", "remote_id", item.RemoteID, "error", err)
		return failed(err)
	}
	it := calview.FromEvent(*ev)
	return Result{OK: true, Message: done, Item: &it}
}

// lessonResult reports a reconciler outcome. The local change succeeded
// whenever err is nil, whatever happened on the calendar.
func (s *Surface) lessonResult(done string, out reconcile.Outcome, err error) Result {
	if err != nil {
		return failed(err)
	}
	r := Result{OK: true, Message: done, Sync: out.Sync, Notice: out.Notice}
	if out.Lesson != nil {
		it := calview.FromLesson(out.Lesson)
		if out.Lesson.Status == lesson.StatusCanceled {
			it.Editable = false
		}
		r.Item = &it
	}
	if note := syncNote(out); note != "" {
		r.Message += " " + note
	}
	return r
}

func failed(err error) Result {
	return Result{Message: Describe(err), Err: err}
}

func ptr[T any](v T) *T { return &v }
