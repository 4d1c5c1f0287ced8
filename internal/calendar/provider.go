package calendar

import (
	"context"
	"time"
)

// Provider is the raw calendar backend. Every call receives the access
// token current at call time; backends never cache credentials.
type Provider interface {
	// Name identifies the backend ("google", "http", "ics", "mock").
	Name() string

	// Create inserts a new event. Backends that support idempotency keys
	// return the existing event when ev.Key was already used.
	Create(ctx context.Context, token string, ev EventDescriptor) (*RemoteEvent, error)

	// Get fetches one event. A deleted event yields *ErrNotFound.
	Get(ctx context.Context, token, id string) (*RemoteEvent, error)

	// Update applies a partial change to an event.
	Update(ctx context.Context, token, id string, p Patch) (*RemoteEvent, error)

	// Delete removes an event.
	Delete(ctx context.Context, token, id string) error

	// List returns events overlapping the range, ordered by start.
	List(ctx context.Context, token string, r TimeRange) ([]RemoteEvent, error)
}

// EventDescriptor is the normalized event sent to the provider on create.
type EventDescriptor struct {
	// Key is the idempotency key. The reconciler derives it from the lesson ID.
	Key string `validate:"required,max=256"`

	Title       string    `validate:"required,max=1024"`
	Start       time.Time `validate:"required"`
	End         time.Time `validate:"required,gtfield=Start"`
	Description string    `validate:"max=8192"`
	Location    string    `validate:"max=1024"`
	Attendee    string    `validate:"omitempty,email"`

	// Conferencing asks the provider to mint a meeting link.
	Conferencing bool
}

// Patch carries optional fields for Update. Nil fields are left unchanged.
type Patch struct {
	Start       *time.Time
	End         *time.Time
	Title       *string `validate:"omitempty,min=1,max=1024"`
	Description *string `validate:"omitempty,max=8192"`
	Location    *string `validate:"omitempty,max=1024"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Start == nil && p.End == nil && p.Title == nil && p.Description == nil && p.Location == nil
}

// Reschedule builds a patch that moves an event to a new window.
func Reschedule(start, end time.Time) Patch {
	return Patch{Start: &start, End: &end}
}

// TimeRange is a half-open interval [From, To).
type TimeRange struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtfield=From"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Overlaps reports whether [start, end) intersects the range.
func (r TimeRange) Overlaps(start, end time.Time) bool {
	return start.Before(r.To) && end.After(r.From)
}

// RemoteEvent is an event as reported by the provider.
type RemoteEvent struct {
	ID               string
	Start            time.Time
	End              time.Time
	Title            string
	Description      string
	Location         string
	ConferencingLink string

	// Updated is the provider's last-modified time.
	Updated time.Time

	// Key is the idempotency key the event was created with, if any.
	Key string

	// ReadOnly marks events the provider will not let us change, such as
	// single occurrences of a recurring series.
	ReadOnly bool
}

// SameWindow reports whether the event occupies exactly [start, end).
func (e RemoteEvent) SameWindow(start, end time.Time) bool {
	return e.Start.Equal(start) && e.End.Equal(end)
}
