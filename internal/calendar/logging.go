package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/abhisek/lessonsync/internal/store"
)

// LoggingProvider is a decorator that records every provider call in the
// attempt log and the structured log.
type LoggingProvider struct {
	inner  Provider
	repo   store.AttemptRepo
	logger *slog.Logger
}

// WithLogging wraps a Provider with call logging. repo may be nil.
func WithLogging(p Provider, repo store.AttemptRepo, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingProvider{inner: p, repo: repo, logger: logger}
}

func (l *LoggingProvider) Name() string { return l.inner.Name() }

func (l *LoggingProvider) Create(ctx context.Context, token string, ev EventDescriptor) (*RemoteEvent, error) {
	start := time.Now()
	out, err := l.inner.Create(ctx, token, ev)
	l.record(ctx, "create", remoteID(out, ""), start, err)
	return out, err
}

func (l *LoggingProvider) Get(ctx context.Context, token, id string) (*RemoteEvent, error) {
	start := time.Now()
	out, err := l.inner.Get(ctx, token, id)
	l.record(ctx, "get", id, start, err)
	return out, err
}

func (l *LoggingProvider) Update(ctx context.Context, token, id string, p Patch) (*RemoteEvent, error) {
	start := time.Now()
	out, err := l.inner.Update(ctx, token, id, p)
	l.record(ctx, "update", id, start, err)
	return out, err
}

func (l *LoggingProvider) Delete(ctx context.Context, token, id string) error {
	start := time.Now()
	err := l.inner.Delete(ctx, token, id)
	l.record(ctx, "delete", id, start, err)
	return err
}

func (l *LoggingProvider) List(ctx context.Context, token string, r TimeRange) ([]RemoteEvent, error) {
	start := time.Now()
	out, err := l.inner.List(ctx, token, r)
	l.record(ctx, "list", "", start, err)
	return out, err
}

func (l *LoggingProvider) record(ctx context.Context, op, id string, start time.Time, err error) {
	a := &store.Attempt{
		Provider:  l.inner.Name(),
		Op:        op,
		LessonID:  LessonFrom(ctx),
		RemoteID:  id,
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   err == nil,
	}
	if err != nil {
		a.ErrorKind = Classify(err).String()
		a.ErrorMessage = err.Error()
	}

	attrs := []any{
		"provider", a.Provider, "op", op, "lesson_id", a.LessonID,
		"remote_id", id, "latency_ms", a.LatencyMs,
	}
	if err != nil {
		l.logger.WarnContext(ctx, "calendar call failed", append(attrs, "kind", a.ErrorKind, "error", err)...)
	} else {
		l.logger.DebugContext(ctx, "calendar call", attrs...)
	}

	if l.repo == nil {
		return
	}
	// The attempt is recorded even when the caller gave up; a failed append
	// never fails the call.
	if logErr := l.repo.Append(context.WithoutCancel(ctx), a); logErr != nil {
		l.logger.Warn("failed to log calendar attempt", "error", logErr)
	}
}

func remoteID(ev *RemoteEvent, fallback string) string {
	if ev != nil {
		return ev.ID
	}
	return fallback
}
