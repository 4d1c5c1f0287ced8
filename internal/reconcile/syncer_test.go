package reconcile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/store"
)

func TestNewSyncer_BadSchedule(t *testing.T) {
	h := newHarness(t)
	cfg := DefaultConfig()
	cfg.Schedule = "every now and then"
	_, err := NewSyncer(h.rec, cfg, slog.New(slog.DiscardHandler))
	assert.ErrorContains(t, err, "sync schedule")
}

func TestSyncer_RunOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, err := NewSyncer(h.rec, DefaultConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Nil(t, s.Last())

	linked, err := h.rec.CreateLesson(ctx, anaLesson())
	require.NoError(t, err)
	h.mock.RemoveExternal(linked.Lesson.RemoteID)

	h.mock.FailNext("create", &calendar.ErrTransient{})
	req := anaLesson()
	req.Start = anaStart.Add(48 * time.Hour)
	queued, err := h.rec.CreateLesson(ctx, req)
	require.NoError(t, err)
	require.Equal(t, SyncPending, queued.Sync)

	res := s.RunOnce(ctx, week())
	require.NoError(t, res.Err)
	require.NotNil(t, res.Reconcile)
	require.NotNil(t, res.Retry)
	assert.Equal(t, []string{linked.Lesson.ID}, res.Reconcile.Stale)
	assert.Same(t, res, s.Last())

	// The retry pass created the queued lesson's event.
	assert.True(t, h.get(t, queued.Lesson.ID).IsLinked())
	assert.Equal(t, 1, h.mock.Len())
}

func TestSyncer_RunOnceStopsOnRejectedSession(t *testing.T) {
	h := newHarness(t)
	s, err := NewSyncer(h.rec, DefaultConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	h.mock.FailNext("list", &calendar.ErrUnauthenticated{Err: errors.New("token revoked")})
	res := s.RunOnce(context.Background(), week())
	require.Error(t, res.Err)
	assert.Equal(t, calendar.KindUnauthenticated, calendar.Classify(res.Err))
	assert.Nil(t, res.Retry)
}

func TestSyncer_StartStop(t *testing.T) {
	h := newHarness(t)
	s, err := NewSyncer(h.rec, DefaultConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown policy", func(c *Config) { c.ConflictPolicy = "remote-wins" }, "conflict_policy"},
		{"bad schedule", func(c *Config) { c.Schedule = "* *" }, "sync.schedule"},
		{"no horizon", func(c *Config) { c.Horizon = 0 }, "horizon"},
		{"negative lookback", func(c *Config) { c.Lookback = -time.Hour }, "lookback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDefaultRange(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	h.rec.SetClock(func() time.Time { return now })

	tr := h.rec.DefaultRange()
	assert.Equal(t, now.Add(-24*time.Hour), tr.From)
	assert.Equal(t, now.AddDate(0, 0, 30), tr.To)
}

func TestMetrics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)
	h.rec.metrics = m

	out, err := h.rec.CreateLesson(ctx, anaLesson())
	require.NoError(t, err)
	h.mock.MoveExternal(out.Lesson.RemoteID, anaStart.Add(time.Hour), anaStart.Add(110*time.Minute))
	_, err = h.rec.ReconcileAll(ctx, week())
	require.NoError(t, err)

	h.mock.FailNext("update", &calendar.ErrTransient{})
	_, err = h.rec.OnLessonRescheduled(ctx, out.Lesson.ID, anaStart.Add(time.Hour), anaStart.Add(110*time.Minute))
	require.NoError(t, err)
	_, err = h.rec.RetryPending(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteOps.WithLabelValues("create", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteOps.WithLabelValues("update", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteOps.WithLabelValues("update", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues(string(lesson.SyncUnsynced), string(lesson.SyncSynced))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pending))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.remoteOp("create", "ok")
		nilMetrics.setPending(3)
	})
}

type failingList struct {
	store.LessonRepo
}

func (failingList) List(context.Context, store.LessonFilter) ([]*lesson.Lesson, error) {
	return nil, errors.New("database is locked")
}

func TestRefreshPending_ListError(t *testing.T) {
	h := newHarness(t)
	var logs bytes.Buffer
	h.rec.logger = slog.New(slog.NewTextHandler(&logs, nil))
	h.rec.metrics.setPending(4)
	h.rec.lessons = failingList{h.lessons}

	h.rec.refreshPending(context.Background())

	assert.InDelta(t, 4.0, testutil.ToFloat64(h.rec.metrics.pending), 0.001, "gauge keeps its last value")
	assert.Contains(t, logs.String(), "count pending lessons failed")
	assert.Contains(t, logs.String(), "database is locked")
}
