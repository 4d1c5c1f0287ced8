package calendar

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/abhisek/lessonsync/internal/store"
)

type fakeAttempts struct {
	mu   sync.Mutex
	rows []store.Attempt
	err  error
}

func (f *fakeAttempts) Append(_ context.Context, a *store.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeAttempts) Query(context.Context, store.QueryOpts) ([]store.Attempt, error) {
	return f.rows, nil
}

func (f *fakeAttempts) Get(context.Context, string) (*store.Attempt, error) {
	return nil, store.ErrNotFound
}

func (f *fakeAttempts) Summary(context.Context) ([]store.AttemptSummary, error) {
	return nil, nil
}

func TestLoggingProvider_RecordsAttempts(t *testing.T) {
	mock := NewMockProvider()
	repo := &fakeAttempts{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := WithLogging(mock, repo, logger)

	ctx := WithLesson(context.Background(), "L1")
	ev, err := p.Create(ctx, "tok", descriptor())
	require.NoError(t, err)

	mock.FailNext("get", &ErrRateLimit{})
	_, err = p.Get(ctx, "tok", ev.ID)
	require.Error(t, err)

	require.Len(t, repo.rows, 2)
	assert.Equal(t, store.Attempt{
		Provider: "mock", Op: "create", LessonID: "L1", RemoteID: ev.ID,
		LatencyMs: repo.rows[0].LatencyMs, Success: true,
	}, repo.rows[0])
	assert.False(t, repo.rows[1].Success)
	assert.Equal(t, "rate_limited", repo.rows[1].ErrorKind)
	assert.Equal(t, ev.ID, repo.rows[1].RemoteID)

	assert.Contains(t, buf.String(), "calendar call failed")
	assert.Contains(t, buf.String(), "lesson_id=L1")
}

func TestLoggingProvider_AppendFailureDoesNotFailCall(t *testing.T) {
	repo := &fakeAttempts{err: errors.New("disk full")}
	p := WithLogging(NewMockProvider(), repo, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	_, err := p.Create(context.Background(), "tok", descriptor())
	assert.NoError(t, err)
}

func TestLoggingProvider_RecordsAfterCancel(t *testing.T) {
	mock := NewMockProvider()
	repo := &fakeAttempts{}
	p := WithLogging(mock, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mock.BeforeCall = func(string) { cancel() }
	_, _ = p.List(ctx, "tok", testRange())

	require.Len(t, repo.rows, 1)
	assert.Equal(t, "list", repo.rows[0].Op)
}

func TestTracingProvider_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mock := NewMockProvider()
	p := WithTracing(mock, tp.Tracer("test"))
	ctx := WithLesson(context.Background(), "L1")

	_, err := p.Create(ctx, "tok", descriptor())
	require.NoError(t, err)
	mock.FailNext("delete", &ErrTransient{Err: errors.New("reset")})
	require.Error(t, p.Delete(ctx, "tok", "ev_1"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "calendar.create", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "calendar.delete", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "L1", attrs["lesson.id"])
	assert.Equal(t, "transient", attrs["calendar.error_kind"])
}

func TestDecorate_RetriesAreLoggedIndividually(t *testing.T) {
	mock := NewMockProvider()
	repo := &fakeAttempts{}
	cfg := DefaultConfig()
	cfg.Retry = retryConfig()

	p := Decorate(mock, cfg, repo, nil, nil)
	mock.FailNext("create", &ErrTransient{}, &ErrTransient{})

	_, err := p.Create(context.Background(), "tok", descriptor())
	require.NoError(t, err)
	require.Len(t, repo.rows, 3)
	assert.False(t, repo.rows[0].Success)
	assert.False(t, repo.rows[1].Success)
	assert.True(t, repo.rows[2].Success)
}

func TestNewSessionFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ICS.Path = t.TempDir() + "/cal.ics"
	s := NewSessionFor(cfg, newMemTokens(), nil, nil)
	assert.True(t, s.Connected())
	assert.Equal(t, "ics:default", s.Account())

	cfg.Provider = "google"
	g := NewSessionFor(cfg, newMemTokens(), nil, nil)
	assert.False(t, g.Connected())
	assert.IsType(t, &OAuthRefresher{}, g.refresher)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "ics without path")
	cfg.ICS.Path = "/tmp/x.ics"
	assert.NoError(t, cfg.Validate())

	cfg.Provider = "exchange"
	assert.Error(t, cfg.Validate())

	_, err := NewProvider(cfg)
	assert.Error(t, err)
}
