package lesson

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle status of a lesson.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// SyncState tracks the lesson's link to its remote calendar event.
type SyncState string

const (
	// SyncUnsynced means the lesson has no external reference.
	SyncUnsynced SyncState = "unsynced"
	// SyncSynced means the external reference is present and last known valid.
	SyncSynced SyncState = "synced"
	// SyncStale means the provider reported the referenced event as gone.
	SyncStale SyncState = "stale"
)

// Source records what created a lesson.
type Source string

const (
	SourceInstructor Source = "instructor"
	SourcePayment    Source = "payment"
	SourceImport     Source = "import"
)

var (
	ErrTerminalStatus    = errors.New("lesson is no longer scheduled")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrInvalidWindow     = errors.New("end must be after start")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Lesson is a locally owned scheduling record between instructor and student.
type Lesson struct {
	ID           string
	InstructorID string

	StudentID    string
	StudentName  string
	StudentEmail string

	StartAt     time.Time
	DurationMin int
	Status      Status
	Source      Source

	Notes     string
	Materials string

	// External reference, set only after a successful remote create.
	RemoteID         string
	ConferencingLink string

	SyncState       SyncState
	NeedsSync       bool
	LastRemoteID    string
	SyncError       string
	LastSyncedAt    time.Time
	RemoteUpdatedAt time.Time

	// Version is bumped on every lesson-owned write. Sync metadata writes
	// are guarded by it but never bump it.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// End returns the scheduled end of the lesson.
func (l *Lesson) End() time.Time {
	return l.StartAt.Add(time.Duration(l.DurationMin) * time.Minute)
}

// Duration returns the lesson length.
func (l *Lesson) Duration() time.Duration {
	return time.Duration(l.DurationMin) * time.Minute
}

// IsLinked reports whether the lesson holds a live external reference.
func (l *Lesson) IsLinked() bool {
	return l.RemoteID != "" && l.SyncState == SyncSynced
}

// IsDetached reports whether the lesson lost its link because the remote
// event disappeared. Detached lessons are only re-created on explicit request.
func (l *Lesson) IsDetached() bool {
	return l.RemoteID == "" && l.LastRemoteID != "" && !l.NeedsSync
}

// Title is the event title used on the remote calendar.
func (l *Lesson) Title() string {
	if l.StudentName == "" {
		return "Lesson"
	}
	return fmt.Sprintf("Lesson with %s", l.StudentName)
}

// CanTransition reports whether the status change is allowed.
func (l *Lesson) CanTransition(to Status) bool {
	if l.Status == to {
		return true
	}
	return l.Status == StatusScheduled && (to == StatusCompleted || to == StatusCanceled)
}

// Reschedule moves the lesson to a new window.
func (l *Lesson) Reschedule(start, end time.Time) error {
	if l.Status != StatusScheduled {
		return ErrTerminalStatus
	}
	if !end.After(start) {
		return ErrInvalidWindow
	}
	l.StartAt = start
	l.DurationMin = int(end.Sub(start).Round(time.Minute) / time.Minute)
	if l.DurationMin <= 0 {
		return ErrInvalidDuration
	}
	return nil
}

// Cancel transitions the lesson to canceled. Canceling twice is a no-op.
func (l *Lesson) Cancel() error {
	if !l.CanTransition(StatusCanceled) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, StatusCanceled)
	}
	l.Status = StatusCanceled
	return nil
}

// Complete transitions the lesson to completed.
func (l *Lesson) Complete() error {
	if !l.CanTransition(StatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, StatusCompleted)
	}
	l.Status = StatusCompleted
	return nil
}

// Validate checks the lesson-owned fields.
func (l *Lesson) Validate() error {
	if l.StartAt.IsZero() {
		return errors.New("start is required")
	}
	if l.DurationMin <= 0 {
		return ErrInvalidDuration
	}
	if !l.Status.Valid() {
		return fmt.Errorf("unknown status %q", l.Status)
	}
	return nil
}

// SyncFields is the sync metadata written by the reconciler.
type SyncFields struct {
	RemoteID         string
	ConferencingLink string
	SyncState        SyncState
	NeedsSync        bool
	LastRemoteID     string
	SyncError        string
	LastSyncedAt     time.Time
	RemoteUpdatedAt  time.Time
}

// Sync returns the lesson's current sync metadata.
func (l *Lesson) Sync() SyncFields {
	return SyncFields{
		RemoteID:         l.RemoteID,
		ConferencingLink: l.ConferencingLink,
		SyncState:        l.SyncState,
		NeedsSync:        l.NeedsSync,
		LastRemoteID:     l.LastRemoteID,
		SyncError:        l.SyncError,
		LastSyncedAt:     l.LastSyncedAt,
		RemoteUpdatedAt:  l.RemoteUpdatedAt,
	}
}

// ApplySync copies sync metadata onto the lesson.
func (l *Lesson) ApplySync(s SyncFields) {
	l.RemoteID = s.RemoteID
	l.ConferencingLink = s.ConferencingLink
	l.SyncState = s.SyncState
	l.NeedsSync = s.NeedsSync
	l.LastRemoteID = s.LastRemoteID
	l.SyncError = s.SyncError
	l.LastSyncedAt = s.LastSyncedAt
	l.RemoteUpdatedAt = s.RemoteUpdatedAt
}
