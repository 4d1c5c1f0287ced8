package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/abhisek/lessonsync/internal/lesson"
)

var lessonColumns = []string{
	"id", "instructor_id", "student_id", "student_name", "student_email",
	"start_at", "duration_min", "status", "source", "notes", "materials",
	"remote_id", "conferencing_link", "sync_state", "needs_sync",
	"last_remote_id", "sync_error", "last_synced_at", "remote_updated_at",
	"version", "created_at", "updated_at",
}

type lessonRow struct {
	ID               string `db:"id"`
	InstructorID     string `db:"instructor_id"`
	StudentID        string `db:"student_id"`
	StudentName      string `db:"student_name"`
	StudentEmail     string `db:"student_email"`
	StartAt          int64  `db:"start_at"`
	DurationMin      int    `db:"duration_min"`
	Status           string `db:"status"`
	Source           string `db:"source"`
	Notes            string `db:"notes"`
	Materials        string `db:"materials"`
	RemoteID         string `db:"remote_id"`
	ConferencingLink string `db:"conferencing_link"`
	SyncState        string `db:"sync_state"`
	NeedsSync        bool   `db:"needs_sync"`
	LastRemoteID     string `db:"last_remote_id"`
	SyncError        string `db:"sync_error"`
	LastSyncedAt     int64  `db:"last_synced_at"`
	RemoteUpdatedAt  int64  `db:"remote_updated_at"`
	Version          int64  `db:"version"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (r lessonRow) toLesson() *lesson.Lesson {
	return &lesson.Lesson{
		ID:               r.ID,
		InstructorID:     r.InstructorID,
		StudentID:        r.StudentID,
		StudentName:      r.StudentName,
		StudentEmail:     r.StudentEmail,
		StartAt:          fromMillis(r.StartAt),
		DurationMin:      r.DurationMin,
		Status:           lesson.Status(r.Status),
		Source:           lesson.Source(r.Source),
		Notes:            r.Notes,
		Materials:        r.Materials,
		RemoteID:         r.RemoteID,
		ConferencingLink: r.ConferencingLink,
		SyncState:        lesson.SyncState(r.SyncState),
		NeedsSync:        r.NeedsSync,
		LastRemoteID:     r.LastRemoteID,
		SyncError:        r.SyncError,
		LastSyncedAt:     fromMillis(r.LastSyncedAt),
		RemoteUpdatedAt:  fromMillis(r.RemoteUpdatedAt),
		Version:          r.Version,
		CreatedAt:        fromMillis(r.CreatedAt),
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}
}

// lessonRepo implements LessonRepo with ent's dialect-aware SQL builder.
type lessonRepo struct {
	store        *Store
	instructorID string
}

func (r *lessonRepo) scope(preds ...*entsql.Predicate) *entsql.Predicate {
	return entsql.And(append([]*entsql.Predicate{entsql.EQ("instructor_id", r.instructorID)}, preds...)...)
}

func (r *lessonRepo) selectOne(ctx context.Context, p *entsql.Predicate) (*lesson.Lesson, error) {
	b := entsql.Dialect(r.store.dialect)
	query, args := b.Select(lessonColumns...).
		From(b.Table("lessons")).
		Where(r.scope(p)).
		Limit(1).
		Query()

	var row lessonRow
	if err := r.store.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query lesson: %w", err)
	}
	return row.toLesson(), nil
}

func (r *lessonRepo) Get(ctx context.Context, id string) (*lesson.Lesson, error) {
	return r.selectOne(ctx, entsql.EQ("id", id))
}

func (r *lessonRepo) FindByRemoteID(ctx context.Context, remoteID string) (*lesson.Lesson, error) {
	if remoteID == "" {
		return nil, ErrNotFound
	}
	return r.selectOne(ctx, entsql.EQ("remote_id", remoteID))
}

func (r *lessonRepo) List(ctx context.Context, f LessonFilter) ([]*lesson.Lesson, error) {
	var preds []*entsql.Predicate
	if !f.From.IsZero() {
		preds = append(preds, entsql.GTE("start_at", toMillis(f.From)))
	}
	if !f.To.IsZero() {
		preds = append(preds, entsql.LT("start_at", toMillis(f.To)))
	}
	if f.LinkedOnly {
		preds = append(preds, entsql.NEQ("remote_id", ""))
	}
	if f.NeedsSync {
		preds = append(preds, entsql.EQ("needs_sync", true))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		preds = append(preds, entsql.In("status", statuses...))
	}

	b := entsql.Dialect(r.store.dialect)
	sel := b.Select(lessonColumns...).
		From(b.Table("lessons")).
		Where(r.scope(preds...)).
		OrderBy("start_at", "id")
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	query, args := sel.Query()

	var rows []lessonRow
	if err := r.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}

	out := make([]*lesson.Lesson, len(rows))
	for i, row := range rows {
		out[i] = row.toLesson()
	}
	return out, nil
}

func (r *lessonRepo) Create(ctx context.Context, l *lesson.Lesson) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("validate lesson: %w", err)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Version == 0 {
		l.Version = 1
	}
	if l.SyncState == "" {
		l.SyncState = lesson.SyncUnsynced
	}
	if l.Source == "" {
		l.Source = lesson.SourceInstructor
	}
	l.InstructorID = r.instructorID
	now := r.store.now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	query, args := entsql.Dialect(r.store.dialect).
		Insert("lessons").
		Columns(lessonColumns...).
		Values(
			l.ID, l.InstructorID, l.StudentID, l.StudentName, l.StudentEmail,
			toMillis(l.StartAt), l.DurationMin, string(l.Status), string(l.Source), l.Notes, l.Materials,
			l.RemoteID, l.ConferencingLink, string(l.SyncState), l.NeedsSync,
			l.LastRemoteID, l.SyncError, toMillis(l.LastSyncedAt), toMillis(l.RemoteUpdatedAt),
			l.Version, toMillis(l.CreatedAt), toMillis(l.UpdatedAt),
		).
		Query()

	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		if remoteIDTaken(err) {
			return fmt.Errorf("insert lesson: %w", ErrRemoteLinked)
		}
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

func (r *lessonRepo) Update(ctx context.Context, l *lesson.Lesson) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("validate lesson: %w", err)
	}
	now := r.store.now().UTC()

	query, args := entsql.Dialect(r.store.dialect).
		Update("lessons").
		Set("student_id", l.StudentID).
		Set("student_name", l.StudentName).
		Set("student_email", l.StudentEmail).
		Set("start_at", toMillis(l.StartAt)).
		Set("duration_min", l.DurationMin).
		Set("status", string(l.Status)).
		Set("notes", l.Notes).
		Set("materials", l.Materials).
		Set("version", l.Version+1).
		Set("updated_at", toMillis(now)).
		Where(r.scope(entsql.EQ("id", l.ID), entsql.EQ("version", l.Version))).
		Query()

	if err := r.execCAS(ctx, l.ID, query, args); err != nil {
		return err
	}
	l.Version++
	l.UpdatedAt = now
	return nil
}

func (r *lessonRepo) UpdateSync(ctx context.Context, id string, version int64, f lesson.SyncFields) error {
	query, args := entsql.Dialect(r.store.dialect).
		Update("lessons").
		Set("remote_id", f.RemoteID).
		Set("conferencing_link", f.ConferencingLink).
		Set("sync_state", string(f.SyncState)).
		Set("needs_sync", f.NeedsSync).
		Set("last_remote_id", f.LastRemoteID).
		Set("sync_error", f.SyncError).
		Set("last_synced_at", toMillis(f.LastSyncedAt)).
		Set("remote_updated_at", toMillis(f.RemoteUpdatedAt)).
		Where(r.scope(entsql.EQ("id", id), entsql.EQ("version", version))).
		Query()

	return r.execCAS(ctx, id, query, args)
}

// execCAS runs a version-guarded write and tells a missing row apart from a
// lost race.
func (r *lessonRepo) execCAS(ctx context.Context, id, query string, args []any) error {
	res, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		if remoteIDTaken(err) {
			return fmt.Errorf("update lesson: %w", ErrRemoteLinked)
		}
		return fmt.Errorf("update lesson: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrVersionConflict
}

// remoteIDTaken reports whether err is a violation of the one event, one
// lesson index on (instructor_id, remote_id).
func remoteIDTaken(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "idx_lessons_instructor_remote"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
			strings.Contains(liteErr.Error(), "lessons.remote_id")
	}
	return false
}

const pgUniqueViolation = "23505"
