package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/notify"
	"github.com/abhisek/lessonsync/internal/store"
)

// Report summarizes a ReconcileAll pass.
type Report struct {
	Range     calendar.TimeRange
	Checked   int // local lessons examined
	Confirmed int // links the provider still reports
	Pushed    int // remote events updated to match the lesson
	Adopted   int // links or conferencing links taken from the provider
	Deleted   int // events of canceled lessons removed
	Failed    int

	Stale      []string // lessons whose links were cleared
	Suspect    []string // lessons whose events could not be confirmed
	Conflicts  []store.Conflict
	RemoteOnly []calendar.RemoteEvent
}

// ReconcileAll compares the lessons starting in tr with the provider's
// events. Links to missing events are cleared, external edits are surfaced
// as conflicts, and events without a lesson are reported as remote-only.
// Remote-only events are never imported here.
func (r *Reconciler) ReconcileAll(ctx context.Context, tr calendar.TimeRange) (*Report, error) {
	events, err := r.client.List(ctx, r.session, tr)
	if err != nil {
		return nil, fmt.Errorf("list remote events: %w", err)
	}
	lessons, err := r.lessons.List(ctx, store.LessonFilter{From: tr.From, To: tr.To})
	if err != nil {
		return nil, &ErrLocalPersistence{Op: "reconcile", Err: err}
	}

	byID := make(map[string]*calendar.RemoteEvent, len(events))
	byLesson := make(map[string]*calendar.RemoteEvent)
	for i := range events {
		ev := &events[i]
		byID[ev.ID] = ev
		if id, ok := lesson.IDFromEventKey(ev.Key); ok {
			byLesson[id] = ev
		}
	}

	claimed := make(map[string]bool)
	for _, l := range lessons {
		if l.RemoteID != "" {
			claimed[l.RemoteID] = true
		}
		if ev, ok := byLesson[l.ID]; ok {
			claimed[ev.ID] = true
		}
	}

	rep := &Report{Range: tr}
	for _, snap := range lessons {
		rep.Checked++
		_, err := r.withLane(ctx, snap.ID, func() (Outcome, error) {
			l, err := r.load(ctx, snap.ID)
			if err != nil {
				return Outcome{}, err
			}
			return r.reconcileOne(ctx, l, byID, byLesson, rep)
		})
		if err == nil {
			continue
		}
		var lp *ErrLocalPersistence
		if errors.As(err, &lp) {
			return rep, err
		}
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Failed++
		r.logger.WarnContext(ctx, "reconcile lesson failed", "lesson_id", snap.ID, "error", err)
	}

	for _, ev := range events {
		if claimed[ev.ID] || r.knownElsewhere(ctx, ev) {
			continue
		}
		rep.RemoteOnly = append(rep.RemoteOnly, ev)
	}

	r.refreshPending(ctx)
	r.logger.InfoContext(ctx, "reconcile pass complete",
		"from", tr.From, "to", tr.To, "checked", rep.Checked, "confirmed", rep.Confirmed,
		"stale", len(rep.Stale), "conflicts", len(rep.Conflicts), "remote_only", len(rep.RemoteOnly),
		"pushed", rep.Pushed, "failed", rep.Failed)
	return rep, nil
}

// knownElsewhere reports whether an unclaimed event belongs to a lesson
// outside the listed range.
func (r *Reconciler) knownElsewhere(ctx context.Context, ev calendar.RemoteEvent) bool {
	if _, err := r.lessons.FindByRemoteID(ctx, ev.ID); err == nil {
		return true
	}
	if id, ok := lesson.IDFromEventKey(ev.Key); ok {
		if _, err := r.lessons.Get(ctx, id); err == nil {
			return true
		}
	}
	return false
}

func (r *Reconciler) reconcileOne(ctx context.Context, l *lesson.Lesson, byID, byLesson map[string]*calendar.RemoteEvent, rep *Report) (Outcome, error) {
	rctx := r.remoteCtx(ctx, l)

	if l.RemoteID == "" {
		ev, ok := byLesson[l.ID]
		switch {
		case ok && l.Status == lesson.StatusCanceled:
			// Created by a call whose response never arrived.
			rep.Deleted++
			return r.deleteEvent(rctx, l, l.Version, ev.ID)
		case ok && l.Status == lesson.StatusScheduled:
			out, err := r.adopt(rctx, l, ev)
			if err != nil {
				return out, err
			}
			rep.Adopted++
			return r.compare(ctx, l, ev, rep)
		}
		return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
	}

	ev, ok := byID[l.RemoteID]
	if !ok {
		got, err := r.client.Get(rctx, r.session, l.RemoteID)
		switch {
		case calendar.IsNotFound(err):
			rep.Stale = append(rep.Stale, l.ID)
			return r.detach(rctx, l, l.Version)
		case err != nil:
			rep.Suspect = append(rep.Suspect, l.ID)
			return r.markSuspect(rctx, l, err)
		}
		ev = got
	}
	return r.compare(ctx, l, ev, rep)
}

// adopt links a lesson to an event created with its key whose response was
// lost.
func (r *Reconciler) adopt(ctx context.Context, l *lesson.Lesson, ev *calendar.RemoteEvent) (Outcome, error) {
	f := l.Sync()
	f.RemoteID = ev.ID
	f.ConferencingLink = ev.ConferencingLink
	f.SyncState = lesson.SyncSynced
	f.LastRemoteID = ""
	f.SyncError = ""
	f.LastSyncedAt = r.now().UTC()
	f.RemoteUpdatedAt = ev.Updated
	if err := r.commit(ctx, l, l.Version, f); err != nil {
		return Outcome{Lesson: l}, err
	}
	n := r.notice(notify.LevelInfo, notify.CodeLinkRecovered, l, "Found this lesson's calendar event and linked it again.")
	r.publish(ctx, n)
	return Outcome{Lesson: l, Sync: SyncSynced, Notice: n}, nil
}

// markSuspect flags a link whose event is missing from the listing but could
// not be confirmed gone. No remote operation runs on it until it is confirmed.
func (r *Reconciler) markSuspect(ctx context.Context, l *lesson.Lesson, cause error) (Outcome, error) {
	f := l.Sync()
	f.SyncState = lesson.SyncStale
	f.NeedsSync = true
	f.SyncError = cause.Error()
	if err := r.commit(ctx, l, l.Version, f); err != nil {
		return Outcome{Lesson: l}, err
	}
	return Outcome{Lesson: l, Sync: SyncPending}, nil
}

// compare brings a linked lesson and its event into agreement. The lesson
// wins for its own fields; remote-only fields are adopted.
func (r *Reconciler) compare(ctx context.Context, l *lesson.Lesson, ev *calendar.RemoteEvent, rep *Report) (Outcome, error) {
	rctx := r.remoteCtx(ctx, l)
	rep.Confirmed++

	if l.Status == lesson.StatusCanceled {
		rep.Deleted++
		return r.deleteEvent(rctx, l, l.Version, ev.ID)
	}

	diverged := !ev.SameWindow(l.StartAt, l.End())
	// A pending local change explains a difference; anything else is an
	// edit made on the calendar.
	external := diverged && !l.NeedsSync

	f := l.Sync()
	f.SyncState = lesson.SyncSynced
	f.LastSyncedAt = r.now().UTC()
	f.RemoteUpdatedAt = ev.Updated
	if ev.ConferencingLink != "" && ev.ConferencingLink != f.ConferencingLink {
		f.ConferencingLink = ev.ConferencingLink
		rep.Adopted++
	}
	if !diverged && !l.NeedsSync {
		f.SyncError = ""
	}
	if external && r.cfg.ConflictPolicy == PolicySurfaceOnly {
		f.SyncError = "calendar event time differs from the lesson"
	}
	if err := r.commit(rctx, l, l.Version, f); err != nil {
		return Outcome{Lesson: l}, err
	}

	var n *notify.Notice
	if external {
		c, err := r.recordConflict(rctx, l, ev)
		if err != nil {
			return Outcome{Lesson: l}, err
		}
		rep.Conflicts = append(rep.Conflicts, *c)
		n = r.conflictNotice(l, ev)
		r.publish(rctx, n)
		if r.cfg.ConflictPolicy == PolicySurfaceOnly {
			return Outcome{Lesson: l, Sync: SyncUnchanged, Notice: n}, nil
		}
	}

	if diverged || l.NeedsSync {
		out, err := r.pushUpdate(ctx, l)
		if err == nil && out.Sync == SyncSynced {
			rep.Pushed++
		}
		if out.Notice == nil {
			out.Notice = n
		}
		return out, err
	}
	return Outcome{Lesson: l, Sync: SyncUnchanged, Notice: n}, nil
}

func (r *Reconciler) recordConflict(ctx context.Context, l *lesson.Lesson, ev *calendar.RemoteEvent) (*store.Conflict, error) {
	c := &store.Conflict{
		LessonID:      l.ID,
		RemoteID:      ev.ID,
		LocalStart:    l.StartAt,
		LocalEnd:      l.End(),
		RemoteStart:   ev.Start,
		RemoteEnd:     ev.End,
		LocalUpdated:  l.UpdatedAt,
		RemoteUpdated: ev.Updated,
		Resolution:    string(r.cfg.ConflictPolicy),
	}
	r.metrics.conflict()
	r.logger.WarnContext(ctx, "calendar event edited externally", "lesson_id", l.ID, "remote_id", ev.ID,
		"local_start", l.StartAt, "remote_start", ev.Start, "local_updated", l.UpdatedAt, "remote_updated", ev.Updated,
		"resolution", c.Resolution)
	if r.conflicts == nil {
		return c, nil
	}
	if err := r.conflicts.Record(ctx, c); err != nil {
		return nil, &ErrLocalPersistence{Op: "record conflict", LessonID: l.ID, Err: err}
	}
	return c, nil
}

func (r *Reconciler) conflictNotice(l *lesson.Lesson, ev *calendar.RemoteEvent) *notify.Notice {
	const layout = "Mon Jan 2 15:04"
	remote := ev.Start.In(l.StartAt.Location()).Format(layout)
	local := l.StartAt.Format(layout)
	msg := fmt.Sprintf("The calendar event was moved to %s. Keeping the lesson at %s.", remote, local)
	if r.cfg.ConflictPolicy == PolicySurfaceOnly {
		msg = fmt.Sprintf("The calendar event was moved to %s but the lesson is at %s. Reschedule the lesson to match, or sync to restore the event.", remote, local)
	}
	n := r.notice(notify.LevelWarning, notify.CodeConflict, l, msg)
	n.RemoteID = ev.ID
	return n
}

// RetryReport summarizes a RetryPending pass.
type RetryReport struct {
	Attempted int
	Synced    int
	Pending   int
	Detached  int
	Rejected  int
	Skipped   int
}

// RetryPending re-runs the remote half of every lesson queued for sync.
func (r *Reconciler) RetryPending(ctx context.Context) (*RetryReport, error) {
	rep := &RetryReport{}
	if !r.session.Connected() {
		r.logger.DebugContext(ctx, "retry skipped, calendar not connected")
		return rep, nil
	}
	queued, err := r.lessons.List(ctx, store.LessonFilter{NeedsSync: true})
	if err != nil {
		return nil, &ErrLocalPersistence{Op: "retry", Err: err}
	}

	for _, snap := range queued {
		out, err := r.withLane(ctx, snap.ID, func() (Outcome, error) {
			l, err := r.load(ctx, snap.ID)
			if err != nil {
				return Outcome{}, err
			}
			if !l.NeedsSync {
				return Outcome{Lesson: l, Sync: SyncUnchanged}, nil
			}
			rep.Attempted++
			return r.retryOne(ctx, l)
		})
		if err != nil {
			var lp *ErrLocalPersistence
			if errors.As(err, &lp) || ctx.Err() != nil {
				return rep, err
			}
			r.logger.WarnContext(ctx, "retry lesson failed", "lesson_id", snap.ID, "error", err)
			continue
		}
		switch out.Sync {
		case SyncSynced:
			rep.Synced++
		case SyncPending:
			rep.Pending++
		case SyncDetached:
			rep.Detached++
		case SyncRejected:
			rep.Rejected++
		case SyncSkipped:
			rep.Skipped++
		}
	}

	r.refreshPending(ctx)
	return rep, nil
}

func (r *Reconciler) retryOne(ctx context.Context, l *lesson.Lesson) (Outcome, error) {
	switch {
	case l.SyncState == lesson.SyncStale:
		rctx := r.remoteCtx(ctx, l)
		ev, err := r.client.Get(rctx, r.session, l.RemoteID)
		if calendar.IsNotFound(err) {
			return r.detach(rctx, l, l.Version)
		}
		if err != nil {
			return r.remoteFailure(rctx, l, l.Version, "get", err)
		}
		f := l.Sync()
		f.SyncState = lesson.SyncSynced
		f.RemoteUpdatedAt = ev.Updated
		if err := r.commit(rctx, l, l.Version, f); err != nil {
			return Outcome{Lesson: l}, err
		}
		if l.Status == lesson.StatusCanceled {
			return r.deleteRemote(ctx, l)
		}
		return r.pushUpdate(ctx, l)
	case l.Status == lesson.StatusCanceled:
		return r.deleteRemote(ctx, l)
	default:
		return r.pushUpdate(ctx, l)
	}
}

func (r *Reconciler) refreshPending(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	queued, err := r.lessons.List(ctx, store.LessonFilter{NeedsSync: true})
	if err != nil {
		r.logger.WarnContext(ctx, "count pending lessons failed", "error", err)
		return
	}
	r.metrics.setPending(len(queued))
}

// DefaultRange returns the window checked by background passes.
func (r *Reconciler) DefaultRange() calendar.TimeRange {
	now := r.now()
	return calendar.TimeRange{From: now.Add(-r.cfg.Lookback), To: now.Add(r.cfg.Horizon)}
}

// SetClock overrides the reconciler's clock.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}
