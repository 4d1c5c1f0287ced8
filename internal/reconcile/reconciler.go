// Package reconcile keeps lessons and their remote calendar events in
// agreement. Local writes always happen first and never depend on the
// provider; remote work follows, serialized per lesson.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/notify"
	"github.com/abhisek/lessonsync/internal/store"
)

// SyncResult summarizes what happened on the remote side of an operation.
type SyncResult string

const (
	SyncSynced    SyncResult = "synced"    // remote agrees with the lesson
	SyncPending   SyncResult = "pending"   // queued for the background pass
	SyncDetached  SyncResult = "detached"  // remote event gone, link cleared
	SyncRejected  SyncResult = "rejected"  // provider refused the request
	SyncSkipped   SyncResult = "skipped"   // nothing to do remotely
	SyncUnchanged SyncResult = "unchanged" // already in the wanted state
)

// Outcome is the result of a reconciler operation. The local part of an
// operation succeeded whenever an Outcome is returned with a nil error.
type Outcome struct {
	Lesson *lesson.Lesson
	Sync   SyncResult
	Notice *notify.Notice
}

// Deps are the reconciler's collaborators. Conflicts, Notices and Metrics
// are optional.
type Deps struct {
	Lessons   store.LessonRepo
	Conflicts store.ConflictRepo
	Client    *calendar.Client
	Session   *calendar.Session
	Notices   notify.Publisher
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Reconciler drives the per-lesson sync state machine:
// unsynced -> synced -> stale -> unsynced.
type Reconciler struct {
	lessons   store.LessonRepo
	conflicts store.ConflictRepo
	client    *calendar.Client
	session   *calendar.Session
	notices   notify.Publisher
	metrics   *Metrics
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time

	lanes   *lanes
	overlay *overlay
}

// New creates a reconciler.
func New(d Deps, cfg Config) *Reconciler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notices == nil {
		d.Notices = notify.Nop{}
	}
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = PolicyLocalWins
	}
	return &Reconciler{
		lessons:   d.Lessons,
		conflicts: d.Conflicts,
		client:    d.Client,
		session:   d.Session,
		notices:   d.Notices,
		metrics:   d.Metrics,
		logger:    d.Logger,
		cfg:       cfg,
		now:       time.Now,
		lanes:     newLanes(),
		overlay:   newOverlay(),
	}
}

// Session returns the provider session the reconciler acts for.
func (r *Reconciler) Session() *calendar.Session {
	return r.session
}

// NewLesson describes a lesson to create.
type NewLesson struct {
	StudentID    string
	StudentName  string
	StudentEmail string
	Start        time.Time
	DurationMin  int
	Notes        string
	Materials    string
	Source       lesson.Source
}

// CreateLesson persists a new lesson and then creates its remote event.
// Remote failures leave the lesson queued for the background pass.
func (r *Reconciler) CreateLesson(ctx context.Context, req NewLesson) (Outcome, error) {
	src := req.Source
	if src == "" {
		src = lesson.SourceInstructor
	}
	l := &lesson.Lesson{
		StudentID:    req.StudentID,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
		StartAt:      req.Start,
		DurationMin:  req.DurationMin,
		Status:       lesson.StatusScheduled,
		Source:       src,
		Notes:        req.Notes,
		Materials:    req.Materials,
		SyncState:    lesson.SyncUnsynced,
		// Queued until the create below lands, so an abandoned call is
		// still picked up by the background pass.
		NeedsSync: true,
	}
	if err := l.Validate(); err != nil {
		return Outcome{}, &ErrInvalidInput{Reason: "lesson", Err: err}
	}
	if err := r.lessons.Create(ctx, l); err != nil {
		return Outcome{}, &ErrLocalPersistence{Op: "create", Err: err}
	}
	r.logger.InfoContext(ctx, "lesson created", "lesson_id", l.ID, "start", l.StartAt, "source", l.Source)
	return r.OnLessonCreated(ctx, l.ID)
}

// OnLessonCreated creates the remote event for a lesson. Calling it again
// for a linked lesson is a no-op, and a lesson whose event disappeared is
// only re-created through RecreateRemote.
func (r *Reconciler) OnLessonCreated(ctx context.Context, id string) (Outcome, error) {
	return r.withLane(ctx, id, func() (Outcome, error) {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		return r.createRemote(ctx, l, false)
	})
}

// OnLessonRescheduled moves a lesson locally, then moves its remote event.
func (r *Reconciler) OnLessonRescheduled(ctx context.Context, id string, start, end time.Time) (Outcome, error) {
	return r.withLane(ctx, id, func() (Outcome, error) {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if err := l.Reschedule(start, end); err != nil {
			return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "reschedule", Err: err}
		}
		if err := r.saveIntent(ctx, "reschedule", l); err != nil {
			return Outcome{}, err
		}
		return r.pushUpdate(ctx, l)
	})
}

// OnLessonCanceled cancels a lesson locally, then deletes its remote event.
// A failed delete keeps the link queued so a later pass retries it.
func (r *Reconciler) OnLessonCanceled(ctx context.Context, id string) (Outcome, error) {
	return r.withLane(ctx, id, func() (Outcome, error) {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if l.Status == lesson.StatusCanceled {
			if l.RemoteID == "" && !l.NeedsSync {
				return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
			}
			return r.deleteRemote(ctx, l)
		}
		if err := l.Cancel(); err != nil {
			return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "cancel", Err: err}
		}
		if err := r.saveIntent(ctx, "cancel", l); err != nil {
			return Outcome{}, err
		}
		return r.deleteRemote(ctx, l)
	})
}

// OnDragReschedule shifts a lesson by delta. The new window is visible
// through Overlay immediately and is dropped again if the local write fails.
// The remote update runs only after the local write and never reverts it.
func (r *Reconciler) OnDragReschedule(ctx context.Context, id string, delta time.Duration) (Outcome, error) {
	if delta == 0 {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
	}
	return r.drag(ctx, id, func(w Window) Window {
		return Window{Start: w.Start.Add(delta), End: w.End.Add(delta)}
	})
}

// OnDragTo moves a lesson so that it starts at start, keeping its length.
// The target is absolute, so a caller holding an outdated copy of the lesson
// still lands it where the user dropped it.
func (r *Reconciler) OnDragTo(ctx context.Context, id string, start time.Time) (Outcome, error) {
	return r.drag(ctx, id, func(w Window) Window {
		return Window{Start: start, End: start.Add(w.End.Sub(w.Start))}
	})
}

// drag applies move to the lesson's window. The overlay shows the move from
// the latest known position; inside the lane move is applied again to the
// stored lesson, which is what gets persisted.
func (r *Reconciler) drag(ctx context.Context, id string, move func(Window) Window) (Outcome, error) {
	base, err := r.load(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	w := Window{Start: base.StartAt, End: base.End()}
	if pending, ok := r.overlay.get(id); ok {
		w = pending
	}
	token := r.overlay.set(id, move(w))
	defer r.overlay.clear(id, token)

	return r.withLane(ctx, id, func() (Outcome, error) {
		l, err := r.load(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		target := move(Window{Start: l.StartAt, End: l.End()})
		if target.Start.Equal(l.StartAt) && target.End.Equal(l.End()) {
			return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
		}
		if err := l.Reschedule(target.Start, target.End); err != nil {
			return Outcome{Lesson: l}, &ErrInvalidInput{Reason: "drag", Err: err}
		}
		if err := r.saveIntent(ctx, "drag", l); err != nil {
			return Outcome{}, err
		}
		r.overlay.clear(id, token)
		return r.pushUpdate(ctx, l)
	})
}

func (r *Reconciler) withLane(ctx context.Context, id string, fn func() (Outcome, error)) (Outcome, error) {
	release, err := r.lanes.acquire(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("waiting for lesson %s: %w", id, err)
	}
	defer release()
	return fn()
}

func (r *Reconciler) load(ctx context.Context, id string) (*lesson.Lesson, error) {
	l, err := r.lessons.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lesson %s: %w", id, err)
	}
	if err != nil {
		return nil, &ErrLocalPersistence{Op: "load", LessonID: id, Err: err}
	}
	return l, nil
}

func (r *Reconciler) saveIntent(ctx context.Context, op string, l *lesson.Lesson) error {
	if err := r.lessons.Update(ctx, l); err != nil {
		return &ErrLocalPersistence{Op: op, LessonID: l.ID, Err: err}
	}
	r.logger.InfoContext(ctx, "lesson updated", "op", op, "lesson_id", l.ID, "version", l.Version)
	return nil
}

// remoteCtx detaches the remote phase from the caller: once a call may
// have reached the provider it runs to completion and its outcome is kept.
func (r *Reconciler) remoteCtx(ctx context.Context, l *lesson.Lesson) context.Context {
	return calendar.WithLesson(context.WithoutCancel(ctx), l.ID)
}

// commit writes sync metadata captured against version. If a newer local
// write landed meanwhile, the metadata is still recorded so no remote event
// is orphaned, and the lesson is queued for another pass.
func (r *Reconciler) commit(ctx context.Context, l *lesson.Lesson, version int64, f lesson.SyncFields) error {
	err := r.lessons.UpdateSync(ctx, l.ID, version, f)
	if errors.Is(err, store.ErrVersionConflict) {
		cur, gerr := r.lessons.Get(ctx, l.ID)
		if gerr != nil {
			return &ErrLocalPersistence{Op: "sync", LessonID: l.ID, Err: gerr}
		}
		r.logger.InfoContext(ctx, "discarding stale sync result", "lesson_id", l.ID,
			"captured_version", version, "current_version", cur.Version)
		f.NeedsSync = true
		*l = *cur
		err = r.lessons.UpdateSync(ctx, l.ID, cur.Version, f)
	}
	if err != nil {
		return &ErrLocalPersistence{Op: "sync", LessonID: l.ID, Err: err}
	}
	r.metrics.transition(l.SyncState, f.SyncState)
	l.ApplySync(f)
	return nil
}

func (r *Reconciler) createRemote(ctx context.Context, l *lesson.Lesson, explicit bool) (Outcome, error) {
	switch {
	case l.IsLinked():
		return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
	case l.Status != lesson.StatusScheduled:
		return r.dropPending(ctx, l)
	case l.RemoteID != "":
		// Stale link not yet confirmed; it must be cleared first.
		return Outcome{Lesson: l, Sync: SyncPending}, nil
	case l.IsDetached() && !explicit:
		return Outcome{Lesson: l, Sync: SyncDetached}, nil
	}

	rctx := r.remoteCtx(ctx, l)
	version := l.Version

	if !r.session.Connected() {
		f := l.Sync()
		f.NeedsSync = true
		f.SyncError = "calendar not connected"
		if err := r.commit(rctx, l, version, f); err != nil {
			return Outcome{Lesson: l}, err
		}
		return Outcome{Lesson: l, Sync: SyncPending}, nil
	}

	ev, err := r.client.Create(rctx, r.session, r.descriptor(l))
	if err != nil {
		return r.remoteFailure(rctx, l, version, "create", err)
	}
	r.metrics.remoteOp("create", "ok")

	f := l.Sync()
	f.RemoteID = ev.ID
	f.ConferencingLink = ev.ConferencingLink
	f.SyncState = lesson.SyncSynced
	f.NeedsSync = false
	f.LastRemoteID = ""
	f.SyncError = ""
	f.LastSyncedAt = r.now().UTC()
	f.RemoteUpdatedAt = ev.Updated
	if err := r.commit(rctx, l, version, f); err != nil {
		// The event exists; a retry finds it again through its key.
		return Outcome{Lesson: l}, err
	}
	r.logger.InfoContext(rctx, "lesson synced", "lesson_id", l.ID, "remote_id", ev.ID)

	if l.NeedsSync {
		// A newer local write landed while creating; push it now.
		return r.pushUpdate(ctx, l)
	}
	return Outcome{Lesson: l, Sync: SyncSynced}, nil
}

func (r *Reconciler) pushUpdate(ctx context.Context, l *lesson.Lesson) (Outcome, error) {
	switch {
	case l.SyncState == lesson.SyncStale:
		return Outcome{Lesson: l, Sync: SyncPending}, nil
	case !l.IsLinked() && l.Status == lesson.StatusScheduled:
		return r.createRemote(ctx, l, false)
	case !l.IsLinked():
		return Outcome{Lesson: l, Sync: SyncSkipped}, nil
	}

	rctx := r.remoteCtx(ctx, l)
	version := l.Version

	title := l.Title()
	patch := calendar.Reschedule(l.StartAt, l.End())
	patch.Title = &title

	ev, err := r.client.Update(rctx, r.session, l.RemoteID, patch)
	if calendar.IsNotFound(err) {
		r.metrics.remoteOp("update", "not_found")
		return r.detach(rctx, l, version)
	}
	if err != nil {
		return r.remoteFailure(rctx, l, version, "update", err)
	}
	r.metrics.remoteOp("update", "ok")

	f := l.Sync()
	f.SyncState = lesson.SyncSynced
	f.NeedsSync = false
	f.SyncError = ""
	f.LastSyncedAt = r.now().UTC()
	f.RemoteUpdatedAt = ev.Updated
	if ev.ConferencingLink != "" {
		f.ConferencingLink = ev.ConferencingLink
	}
	if err := r.commit(rctx, l, version, f); err != nil {
		return Outcome{Lesson: l}, err
	}
	if l.NeedsSync {
		return Outcome{Lesson: l, Sync: SyncPending}, nil
	}
	return Outcome{Lesson: l, Sync: SyncSynced}, nil
}

func (r *Reconciler) deleteRemote(ctx context.Context, l *lesson.Lesson) (Outcome, error) {
	if l.RemoteID == "" {
		return r.dropPending(ctx, l)
	}
	rctx := r.remoteCtx(ctx, l)
	return r.deleteEvent(rctx, l, l.Version, l.RemoteID)
}

// deleteEvent removes remoteID and clears the lesson's link. An event that
// is already gone counts as deleted.
func (r *Reconciler) deleteEvent(ctx context.Context, l *lesson.Lesson, version int64, remoteID string) (Outcome, error) {
	err := r.client.Delete(ctx, r.session, remoteID)
	if err != nil && !calendar.IsNotFound(err) {
		return r.remoteFailure(ctx, l, version, "delete", err)
	}
	if err != nil {
		r.metrics.remoteOp("delete", "not_found")
	} else {
		r.metrics.remoteOp("delete", "ok")
	}

	f := l.Sync()
	f.RemoteID = ""
	f.ConferencingLink = ""
	f.SyncState = lesson.SyncUnsynced
	f.NeedsSync = false
	f.LastRemoteID = remoteID
	f.SyncError = ""
	f.LastSyncedAt = r.now().UTC()
	if err := r.commit(ctx, l, version, f); err != nil {
		return Outcome{Lesson: l}, err
	}
	r.logger.InfoContext(ctx, "remote event deleted", "lesson_id", l.ID, "remote_id", remoteID)
	return Outcome{Lesson: l, Sync: SyncSynced}, nil
}

// detach clears a link whose remote event no longer exists. The lesson keeps
// its local state and is not re-created automatically.
func (r *Reconciler) detach(ctx context.Context, l *lesson.Lesson, version int64) (Outcome, error) {
	dead := l.RemoteID
	r.metrics.transition(l.SyncState, lesson.SyncStale)
	l.SyncState = lesson.SyncStale

	f := l.Sync()
	f.RemoteID = ""
	f.ConferencingLink = ""
	f.SyncState = lesson.SyncUnsynced
	f.NeedsSync = false
	f.LastRemoteID = dead
	f.SyncError = ""
	if err := r.commit(ctx, l, version, f); err != nil {
		return Outcome{Lesson: l}, err
	}
	r.logger.InfoContext(ctx, "stale calendar link cleared", "lesson_id", l.ID, "remote_id", dead)

	n := r.notice(notify.LevelInfo, notify.CodeDetached, l,
		"The calendar event for this lesson was removed. The lesson is kept but no longer synced; re-create the event if you still need it.")
	n.RemoteID = dead
	r.publish(ctx, n)
	return Outcome{Lesson: l, Sync: SyncDetached, Notice: n}, nil
}

// dropPending clears a queued sync for a lesson that no longer needs a
// remote event.
func (r *Reconciler) dropPending(ctx context.Context, l *lesson.Lesson) (Outcome, error) {
	if !l.NeedsSync {
		return Outcome{Lesson: l, Sync: SyncSkipped}, nil
	}
	f := l.Sync()
	f.NeedsSync = false
	f.SyncError = ""
	if err := r.commit(context.WithoutCancel(ctx), l, l.Version, f); err != nil {
		return Outcome{Lesson: l}, err
	}
	return Outcome{Lesson: l, Sync: SyncSkipped}, nil
}

// remoteFailure records a failed remote call. Only InvalidRequest stops
// the lesson from being retried; nothing here fails the local operation.
func (r *Reconciler) remoteFailure(ctx context.Context, l *lesson.Lesson, version int64, op string, err error) (Outcome, error) {
	kind := calendar.Classify(err)
	r.metrics.remoteOp(op, kind.String())

	f := l.Sync()
	f.SyncError = err.Error()
	f.NeedsSync = kind != calendar.KindInvalidRequest

	var (
		n   *notify.Notice
		res = SyncPending
	)
	switch {
	case kind == calendar.KindInvalidRequest:
		res = SyncRejected
		n = r.notice(notify.LevelError, notify.CodeRejected, l,
			fmt.Sprintf("The calendar rejected the %s: %s", op, userDetail(err)))
	case op == "delete":
		n = r.notice(notify.LevelWarning, notify.CodeDeleteFailed, l,
			"Lesson canceled, but its calendar event could not be removed yet. It will be retried.")
	case kind == calendar.KindUnauthenticated:
		n = r.notice(notify.LevelWarning, notify.CodeReauth, l,
			"The calendar connection needs to be renewed. The lesson will sync after you reconnect.")
	default:
		n = r.notice(notify.LevelInfo, notify.CodePending, l,
			"The calendar is unavailable. The lesson will sync later.")
	}

	if cerr := r.commit(ctx, l, version, f); cerr != nil {
		return Outcome{Lesson: l}, cerr
	}
	r.logger.WarnContext(ctx, "calendar sync deferred", "op", op, "lesson_id", l.ID, "kind", kind.String(), "error", err)
	r.publish(ctx, n)
	return Outcome{Lesson: l, Sync: res, Notice: n}, nil
}

func (r *Reconciler) descriptor(l *lesson.Lesson) calendar.EventDescriptor {
	return calendar.EventDescriptor{
		Key:          l.EventKey(),
		Title:        l.Title(),
		Start:        l.StartAt,
		End:          l.End(),
		Attendee:     l.StudentEmail,
		Conferencing: r.cfg.Conferencing,
	}
}

func (r *Reconciler) notice(level notify.Level, code string, l *lesson.Lesson, msg string) *notify.Notice {
	n := &notify.Notice{Level: level, Code: code, Message: msg, At: r.now().UTC()}
	if l != nil {
		n.LessonID = l.ID
		n.RemoteID = l.RemoteID
	}
	return n
}

func (r *Reconciler) publish(ctx context.Context, n *notify.Notice) {
	if n == nil {
		return
	}
	if err := r.notices.Publish(context.WithoutCancel(ctx), *n); err != nil {
		r.logger.WarnContext(ctx, "notice not delivered", "code", n.Code, "error", err)
	}
}

func userDetail(err error) string {
	var inv *calendar.ErrInvalidRequest
	if errors.As(err, &inv) && inv.Reason != "" {
		if inv.Err != nil {
			return fmt.Sprintf("%s (%v)", inv.Reason, inv.Err)
		}
		return inv.Reason
	}
	return err.Error()
}
