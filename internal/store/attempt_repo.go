package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var attemptColumns = []string{
	"id", "provider", "op", "lesson_id", "remote_id", "latency_ms",
	"success", "error_kind", "error_message", "created_at",
}

type attemptRow struct {
	ID           string `db:"id"`
	Provider     string `db:"provider"`
	Op           string `db:"op"`
	LessonID     string `db:"lesson_id"`
	RemoteID     string `db:"remote_id"`
	LatencyMs    int64  `db:"latency_ms"`
	Success      bool   `db:"success"`
	ErrorKind    string `db:"error_kind"`
	ErrorMessage string `db:"error_message"`
	CreatedAt    int64  `db:"created_at"`
}

func (r attemptRow) toAttempt() Attempt {
	return Attempt{
		ID:           r.ID,
		Provider:     r.Provider,
		Op:           r.Op,
		LessonID:     r.LessonID,
		RemoteID:     r.RemoteID,
		LatencyMs:    r.LatencyMs,
		Success:      r.Success,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

// attemptRepo implements AttemptRepo. Rows are append-only.
type attemptRepo struct {
	store *Store
}

func (r *attemptRepo) Append(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.store.now().UTC()
	}

	query, args := entsql.Dialect(r.store.dialect).
		Insert("sync_attempts").
		Columns(attemptColumns...).
		Values(a.ID, a.Provider, a.Op, a.LessonID, a.RemoteID, a.LatencyMs,
			a.Success, a.ErrorKind, a.ErrorMessage, toMillis(a.CreatedAt)).
		Query()

	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save sync attempt: %w", err)
	}
	return nil
}

func (r *attemptRepo) Query(ctx context.Context, opts QueryOpts) ([]Attempt, error) {
	var preds []*entsql.Predicate
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", toMillis(opts.From)))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LTE("created_at", toMillis(opts.To)))
	}
	if opts.Op != "" {
		preds = append(preds, entsql.EQ("op", opts.Op))
	}
	if opts.LessonID != "" {
		preds = append(preds, entsql.EQ("lesson_id", opts.LessonID))
	}
	if opts.FailedOnly {
		preds = append(preds, entsql.EQ("success", false))
	}

	b := entsql.Dialect(r.store.dialect)
	sel := b.Select(attemptColumns...).
		From(b.Table("sync_attempts")).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	var rows []attemptRow
	if err := r.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query sync attempts: %w", err)
	}
	out := make([]Attempt, len(rows))
	for i, row := range rows {
		out[i] = row.toAttempt()
	}
	return out, nil
}

func (r *attemptRepo) Get(ctx context.Context, id string) (*Attempt, error) {
	b := entsql.Dialect(r.store.dialect)
	query, args := b.Select(attemptColumns...).
		From(b.Table("sync_attempts")).
		Where(entsql.EQ("id", id)).
		Query()

	var row attemptRow
	if err := r.store.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sync attempt: %w", err)
	}
	a := row.toAttempt()
	return &a, nil
}

func (r *attemptRepo) Summary(ctx context.Context) ([]AttemptSummary, error) {
	b := entsql.Dialect(r.store.dialect)
	query, args := b.Select("op", "success", entsql.As(entsql.Count("*"), "n")).
		From(b.Table("sync_attempts")).
		GroupBy("op", "success").
		OrderBy("op").
		Query()

	var rows []struct {
		Op      string `db:"op"`
		Success bool   `db:"success"`
		N       int    `db:"n"`
	}
	if err := r.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("summarize sync attempts: %w", err)
	}

	var out []AttemptSummary
	idx := map[string]int{}
	for _, row := range rows {
		i, ok := idx[row.Op]
		if !ok {
			i = len(out)
			idx[row.Op] = i
			out = append(out, AttemptSummary{Op: row.Op})
		}
		if row.Success {
			out[i].Succeeded += row.N
		} else {
			out[i].Failed += row.N
		}
	}
	return out, nil
}
