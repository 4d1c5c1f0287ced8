package store

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/abhisek/lessonsync/internal/lesson"
)

// LessonFilter narrows lesson listings. Zero values match everything.
type LessonFilter struct {
	From       time.Time // start >= From
	To         time.Time // start < To
	LinkedOnly bool      // only lessons holding a remote reference
	NeedsSync  bool      // only lessons queued for the background pass
	Statuses   []lesson.Status
	Limit      int // max results (0 = unlimited)
}

// LessonRepo is the local lesson store for one instructor.
type LessonRepo interface {
	// Get returns the lesson or ErrNotFound.
	Get(ctx context.Context, id string) (*lesson.Lesson, error)

	// List returns lessons ordered by start time.
	List(ctx context.Context, f LessonFilter) ([]*lesson.Lesson, error)

	// FindByRemoteID returns the lesson linked to a remote event, or ErrNotFound.
	FindByRemoteID(ctx context.Context, remoteID string) (*lesson.Lesson, error)

	// Create inserts a new lesson. ID, Version and timestamps are assigned
	// when empty.
	Create(ctx context.Context, l *lesson.Lesson) error

	// Update writes lesson-owned fields if l.Version still matches the stored
	// version, then bumps l.Version. Sync metadata is left untouched.
	Update(ctx context.Context, l *lesson.Lesson) error

	// UpdateSync writes sync metadata if the stored version equals version.
	// The version is not bumped.
	UpdateSync(ctx context.Context, id string, version int64, f lesson.SyncFields) error
}

// QueryOpts configures log queries with filtering and pagination.
type QueryOpts struct {
	Limit      int       // max results (0 = unlimited)
	From       time.Time // created_at >= From
	To         time.Time // created_at <= To
	Op         string
	LessonID   string
	FailedOnly bool
}

// Attempt records a single calendar provider call.
type Attempt struct {
	ID           string
	Provider     string
	Op           string
	LessonID     string
	RemoteID     string
	LatencyMs    int64
	Success      bool
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
}

// AttemptSummary aggregates attempts per operation.
type AttemptSummary struct {
	Op        string
	Succeeded int
	Failed    int
}

// AttemptRepo provides append and query access to the provider call log.
type AttemptRepo interface {
	Append(ctx context.Context, a *Attempt) error
	Query(ctx context.Context, opts QueryOpts) ([]Attempt, error)
	Get(ctx context.Context, id string) (*Attempt, error)
	Summary(ctx context.Context) ([]AttemptSummary, error)
}

// Conflict records a divergence between a lesson and its remote event.
type Conflict struct {
	ID            string
	LessonID      string
	RemoteID      string
	LocalStart    time.Time
	LocalEnd      time.Time
	RemoteStart   time.Time
	RemoteEnd     time.Time
	LocalUpdated  time.Time
	RemoteUpdated time.Time
	Resolution    string
	CreatedAt     time.Time
}

// ConflictRepo stores surfaced conflicts for one instructor.
type ConflictRepo interface {
	Record(ctx context.Context, c *Conflict) error
	List(ctx context.Context, opts QueryOpts) ([]Conflict, error)
}

// TokenRepo persists provider credentials per account.
type TokenRepo interface {
	// Load returns the stored token, or nil if none is stored.
	Load(ctx context.Context, account string) (*oauth2.Token, error)
	Save(ctx context.Context, account string, tok *oauth2.Token) error
	Delete(ctx context.Context, account string) error
}
