package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/store"
)

// Edit carries optional changes to a lesson. Nil fields are left unchanged.
type Edit struct {
	StudentID    *string
	StudentName  *string
	StudentEmail *string
	Notes        *string
	Materials    *string
	Start        *time.Time
	DurationMin  *int
}

// Empty reports whether the edit changes nothing.
func (e Edit) Empty() bool {
	return e.StudentID == nil && e.StudentName == nil && e.StudentEmail == nil &&
		e.Notes == nil && e.Materials == nil && e.Start == nil && e.DurationMin == nil
}

func (e Edit) touchesSchedule() bool {
	return e.StudentID != nil || e.StudentName != nil || e.StudentEmail != nil ||
		e.Start != nil || e.DurationMin != nil
}

// EditLesson applies a content or schedule edit. Only changes visible on the
// calendar (time, student) are pushed to the remote event.
func (r *Reconciler) EditLesson(ctx context.Context, id string, e Edit) (Outcome, error) {
	if e.Empty() {
		return Outcome{}, &ErrInvalidInput{Reason: "nothing to change"}
	}
	return r.withLane(ctx, id, func() (Outcome, error) {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if l.Status == lesson.StatusCanceled || (e.touchesSchedule() && l.Status != lesson.StatusScheduled) {
			return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "edit", Err: lesson.ErrTerminalStatus}
		}

		remote := false
		if e.Start != nil || e.DurationMin != nil {
			start, dur := l.StartAt, l.DurationMin
			if e.Start != nil {
				start = *e.Start
			}
			if e.DurationMin != nil {
				dur = *e.DurationMin
			}
			if dur <= 0 {
				return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "edit", Err: lesson.ErrInvalidDuration}
			}
			if err := l.Reschedule(start, start.Add(time.Duration(dur)*time.Minute)); err != nil {
				return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "edit", Err: err}
			}
			remote = true
		}
		if e.StudentName != nil && *e.StudentName != l.StudentName {
			l.StudentName = *e.StudentName
			remote = true
		}
		if e.StudentID != nil {
			l.StudentID = *e.StudentID
		}
		if e.StudentEmail != nil {
			l.StudentEmail = *e.StudentEmail
		}
		if e.Notes != nil {
			l.Notes = *e.Notes
		}
		if e.Materials != nil {
			l.Materials = *e.Materials
		}

		if err := r.saveIntent(ctx, "edit", l); err != nil {
			return Outcome{}, err
		}
		if !remote {
			return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
		}
		return r.pushUpdate(ctx, l)
	})
}

// CompleteLesson marks a lesson completed. Its remote event stays on the
// calendar as history.
func (r *Reconciler) CompleteLesson(ctx context.Context, id string) (Outcome, error) {
	return r.withLane(ctx, id, func() (Outcome, error) {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if l.Status == lesson.StatusCompleted {
			return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
		}
		if err := l.Complete(); err != nil {
			return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "complete", Err: err}
		}
		if err := r.saveIntent(ctx, "complete", l); err != nil {
			return Outcome{}, err
		}
		return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
	})
}

// RecreateRemote creates a new remote event for a lesson whose previous event
// disappeared. It is the explicit confirmation path after a stale link.
func (r *Reconciler) RecreateRemote(ctx context.Context, id string) (Outcome, error) {
	return r.withLane(ctx, id, func() (Outcome, error) {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if l.Status != lesson.StatusScheduled {
			return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "only scheduled lessons can be re-created", Err: lesson.ErrTerminalStatus}
		}
		if l.IsLinked() {
			return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
		}
		if l.RemoteID != "" {
			return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "the current calendar link is not confirmed stale yet; run a sync first"}
		}
		return r.createRemote(ctx, l, true)
	})
}

// ImportRequest describes the lesson created from a remote-only event.
type ImportRequest struct {
	StudentID    string
	StudentName  string
	StudentEmail string
}

// ImportRemote turns a remote-only event into a lesson linked to it. This is
// the only way a remote event becomes a lesson.
func (r *Reconciler) ImportRemote(ctx context.Context, remoteID string, req ImportRequest) (Outcome, error) {
	if remoteID == "" {
		return Outcome{}, &ErrInvalidInput{Reason: "remote id is required"}
	}
	// Imports of one event share a lane so the linked check and the insert
	// cannot interleave.
	return r.withLane(ctx, "remote:"+remoteID, func() (Outcome, error) {
		return r.importRemote(ctx, remoteID, req)
	})
}

func (r *Reconciler) importRemote(ctx context.Context, remoteID string, req ImportRequest) (Outcome, error) {
	existing, err := r.lessons.FindByRemoteID(ctx, remoteID)
	switch {
	case err == nil:
		return Outcome{Lesson: existing}, &ErrInvalidInput{Reason: "event is already linked to lesson " + existing.ID}
	case !errors.Is(err, store.ErrNotFound):
		return Outcome{}, &ErrLocalPersistence{Op: "import", Err: err}
	}

	ev, err := r.client.Get(ctx, r.session, remoteID)
	if err != nil {
		return Outcome{}, err
	}

	now := r.now().UTC()
	l := &lesson.Lesson{
		StudentID:        req.StudentID,
		StudentName:      req.StudentName,
		StudentEmail:     req.StudentEmail,
		StartAt:          ev.Start,
		DurationMin:      int(ev.End.Sub(ev.Start).Round(time.Minute) / time.Minute),
		Status:           lesson.StatusScheduled,
		Source:           lesson.SourceImport,
		Notes:            ev.Description,
		RemoteID:         ev.ID,
		ConferencingLink: ev.ConferencingLink,
		SyncState:        lesson.SyncSynced,
		LastSyncedAt:     now,
		RemoteUpdatedAt:  ev.Updated,
	}
	if err := l.Validate(); err != nil {
		return Outcome{}, &ErrInvalidInput{Reason: "imported event", Err: err}
	}
	if err := r.lessons.Create(ctx, l); err != nil {
		if errors.Is(err, store.ErrRemoteLinked) {
			return Outcome{}, &ErrInvalidInput{Reason: "event is already linked to a lesson", Err: err}
		}
		return Outcome{}, &ErrLocalPersistence{Op: "import", Err: err}
	}
	r.metrics.transition(lesson.SyncUnsynced, lesson.SyncSynced)
	r.logger.InfoContext(ctx, "remote event imported", "lesson_id", l.ID, "remote_id", ev.ID)
	return Outcome{Lesson: l, Sync: SyncSynced}, nil
}
