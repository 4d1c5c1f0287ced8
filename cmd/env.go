package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/config"
	"github.com/abhisek/lessonsync/internal/notify"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
	"github.com/abhisek/lessonsync/internal/surface"
	"github.com/abhisek/lessonsync/internal/telemetry"
)

// noticeBacklog is how many notices the in-process recorder keeps.
const noticeBacklog = 50

// env is everything a command needs to talk to the lesson store and the
// calendar.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	session  *calendar.Session
	client   *calendar.Client
	notices  *notify.Recorder
	registry *prometheus.Registry
	rec      *reconcile.Reconciler
	surface  *surface.Surface

	closers []func(context.Context) error
}

// loadConfig reads the configuration named by --config and applies --db.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve config path: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Store.Driver == store.DriverSQLite {
		db, _ := cmd.Flags().GetString("db")
		if db != "" || cfg.Store.DSN == "" {
			p, err := resolveDBPath(cmd)
			if err != nil {
				return config.Config{}, fmt.Errorf("resolve database path: %w", err)
			}
			cfg.Store.DSN = p
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore loads the configuration and opens only the lesson store.
func openStore(cmd *cobra.Command) (*store.Store, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	st, err := store.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return nil, cfg, fmt.Errorf("open store: %w", err)
	}
	return st, cfg, nil
}

// newEnv wires the store, the calendar session and client, the reconciler
// and the surface. Logs go to logOut.
func newEnv(cmd *cobra.Command, logOut io.Writer) (*env, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := telemetry.SetupLogger(cfg.Telemetry, logOut)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	if err := e.wire(ctx); err != nil {
		_ = e.Close(context.Background())
		return nil, err
	}
	return e, nil
}

func (e *env) wire(ctx context.Context) error {
	shutdown, err := telemetry.InitTracer(ctx, e.cfg.Telemetry, e.logger)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, shutdown)

	st, err := store.Open(ctx, e.cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	e.store = st
	e.closers = append(e.closers, func(context.Context) error { return st.Close() })

	e.notices = notify.NewRecorder(noticeBacklog)
	var publisher notify.Publisher = e.notices
	if e.cfg.Notify.URL != "" {
		np, err := notify.DialNATS(e.cfg.Notify, e.logger)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, func(context.Context) error { np.Close(); return nil })
		publisher = notify.Multi{e.notices, np}
	}

	base, err := calendar.NewProvider(e.cfg.Calendar)
	if err != nil {
		return err
	}
	tracer := otel.Tracer("github.com/abhisek/lessonsync/internal/calendar")
	provider := calendar.Decorate(base, e.cfg.Calendar, st.Attempts(), tracer, e.logger)
	e.client = calendar.NewClient(provider, e.cfg.Calendar.Timeout, e.logger)

	e.session = calendar.NewSessionFor(e.cfg.Calendar, st.Tokens(), e.logger, func(account string) {
		_ = publisher.Publish(context.Background(), notify.Notice{
			Level:   notify.LevelWarning,
			Code:    notify.CodeReauth,
			Message: "Your calendar connection has expired. Run `lessonsync connect` to reconnect.",
		})
		e.logger.Warn("calendar session needs re-authentication", "account", account)
	})
	if e.cfg.Calendar.NeedsOAuth() {
		ok, err := e.session.Restore(ctx)
		if err != nil {
			e.logger.Warn("could not restore calendar session", "error", err)
		} else if !ok {
			e.logger.Info("calendar not connected", "account", e.session.Account())
		}
	}

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e.rec = reconcile.New(reconcile.Deps{
		Lessons:   st.Lessons(e.cfg.Instructor),
		Conflicts: st.Conflicts(e.cfg.Instructor),
		Client:    e.client,
		Session:   e.session,
		Notices:   publisher,
		Metrics:   reconcile.NewMetrics(e.registry),
		Logger:    e.logger,
	}, e.cfg.Sync)

	e.surface = surface.New(surface.Deps{
		Reconciler: e.rec,
		Lessons:    st.Lessons(e.cfg.Instructor),
		Client:     e.client,
		Logger:     e.logger,
	})
	return nil
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i](ctx))
	}
	e.closers = nil
	return errors.Join(errs...)
}

// tuiLogFile opens the log file the agenda writes to, next to the database.
func tuiLogFile() (*os.File, error) {
	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	p := filepath.Join(filepath.Dir(dbPath), "lessonsync.log")
	return os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
