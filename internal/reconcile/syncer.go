package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abhisek/lessonsync/internal/calendar"
)

// Syncer runs ReconcileAll and RetryPending on a cron schedule. Overlapping
// runs are skipped.
type Syncer struct {
	rec    *Reconciler
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.Mutex
	last *PassResult
}

// PassResult is the outcome of one background pass.
type PassResult struct {
	StartedAt time.Time
	Duration  time.Duration
	Reconcile *Report
	Retry     *RetryReport
	Err       error
}

// NewSyncer schedules background passes. Call Start to begin.
func NewSyncer(rec *Reconciler, cfg Config, logger *slog.Logger) (*Syncer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{rec: rec, cfg: cfg, logger: logger}
	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(cfg.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("sync schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running passes in the background.
func (s *Syncer) Start() {
	s.logger.Info("background sync started", "schedule", s.cfg.Schedule)
	s.cron.Start()
}

// Stop stops scheduling and waits for a running pass, up to ctx.
func (s *Syncer) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the most recent pass, or nil.
func (s *Syncer) Last() *PassResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Syncer) tick() {
	res := s.RunOnce(context.Background(), s.rec.DefaultRange())
	if res.Err != nil {
		s.logger.Warn("background sync failed", "error", res.Err)
	}
}

// RunOnce runs one pass over tr and records it as the last pass.
func (s *Syncer) RunOnce(ctx context.Context, tr calendar.TimeRange) *PassResult {
	res := s.rec.Pass(ctx, tr)

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	s.logger.Info("background sync pass", "duration", res.Duration, "error", res.Err)
	return res
}

// Pass reconciles tr and retries queued lessons. Retries still run when
// the listing fails, unless the calendar rejected the session.
func (r *Reconciler) Pass(ctx context.Context, tr calendar.TimeRange) *PassResult {
	res := &PassResult{StartedAt: r.now()}
	res.Reconcile, res.Err = r.ReconcileAll(ctx, tr)
	if res.Err == nil || calendar.Classify(res.Err) != calendar.KindUnauthenticated {
		retry, err := r.RetryPending(ctx)
		res.Retry = retry
		if res.Err == nil {
			res.Err = err
		}
	}
	res.Duration = r.now().Sub(res.StartedAt)
	return res
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
