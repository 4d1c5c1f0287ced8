package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var conflictColumns = []string{
	"id", "instructor_id", "lesson_id", "remote_id",
	"local_start", "local_end", "remote_start", "remote_end",
	"local_updated", "remote_updated", "resolution", "created_at",
}

type conflictRow struct {
	ID            string `db:"id"`
	InstructorID  string `db:"instructor_id"`
	LessonID      string `db:"lesson_id"`
	RemoteID      string `db:"remote_id"`
	LocalStart    int64  `db:"local_start"`
	LocalEnd      int64  `db:"local_end"`
	RemoteStart   int64  `db:"remote_start"`
	RemoteEnd     int64  `db:"remote_end"`
	LocalUpdated  int64  `db:"local_updated"`
	RemoteUpdated int64  `db:"remote_updated"`
	Resolution    string `db:"resolution"`
	CreatedAt     int64  `db:"created_at"`
}

type conflictRepo struct {
	store        *Store
	instructorID string
}

func (r *conflictRepo) Record(ctx context.Context, c *Conflict) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.store.now().UTC()
	}

	query, args := entsql.Dialect(r.store.dialect).
		Insert("sync_conflicts").
		Columns(conflictColumns...).
		Values(c.ID, r.instructorID, c.LessonID, c.RemoteID,
			toMillis(c.LocalStart), toMillis(c.LocalEnd),
			toMillis(c.RemoteStart), toMillis(c.RemoteEnd),
			toMillis(c.LocalUpdated), toMillis(c.RemoteUpdated),
			c.Resolution, toMillis(c.CreatedAt)).
		Query()

	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save conflict: %w", err)
	}
	return nil
}

func (r *conflictRepo) List(ctx context.Context, opts QueryOpts) ([]Conflict, error) {
	preds := []*entsql.Predicate{entsql.EQ("instructor_id", r.instructorID)}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", toMillis(opts.From)))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LTE("created_at", toMillis(opts.To)))
	}
	if opts.LessonID != "" {
		preds = append(preds, entsql.EQ("lesson_id", opts.LessonID))
	}

	b := entsql.Dialect(r.store.dialect)
	sel := b.Select(conflictColumns...).
		From(b.Table("sync_conflicts")).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	var rows []conflictRow
	if err := r.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}

	out := make([]Conflict, len(rows))
	for i, row := range rows {
		out[i] = Conflict{
			ID:            row.ID,
			LessonID:      row.LessonID,
			RemoteID:      row.RemoteID,
			LocalStart:    fromMillis(row.LocalStart),
			LocalEnd:      fromMillis(row.LocalEnd),
			RemoteStart:   fromMillis(row.RemoteStart),
			RemoteEnd:     fromMillis(row.RemoteEnd),
			LocalUpdated:  fromMillis(row.LocalUpdated),
			RemoteUpdated: fromMillis(row.RemoteUpdated),
			Resolution:    row.Resolution,
			CreatedAt:     fromMillis(row.CreatedAt),
		}
	}
	return out, nil
}
