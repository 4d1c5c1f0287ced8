package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/abhisek/lessonsync/internal/api"
	"github.com/abhisek/lessonsync/internal/reconcile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer e.Close(context.Background())
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			e.cfg.API.Listen = addr
		}
		noSync, _ := cmd.Flags().GetBool("no-sync")

		app := fx.New(
			fx.WithLogger(func() fxevent.Logger {
				l := &fxevent.SlogLogger{Logger: e.logger}
				l.UseLogLevel(slog.LevelDebug)
				return l
			}),
			fx.Supply(e, e.logger),
			fx.Provide(newSyncer, newHTTPServer),
			fx.Invoke(func(lc fx.Lifecycle, e *env) {
				lc.Append(fx.StopHook(e.Close))
			}),
			fx.Invoke(func(lc fx.Lifecycle, s *reconcile.Syncer) {
				if noSync {
					return
				}
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error { s.Start(); return nil },
					OnStop:  s.Stop,
				})
			}),
			fx.Invoke(registerHTTPServer),
		)

		startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
		defer cancel()
		if err := app.Start(startCtx); err != nil {
			return fmt.Errorf("start: %w", err)
		}

		sig := <-app.Wait()
		e.logger.Info("shutting down", "signal", sig.Signal, "exit_code", sig.ExitCode)

		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
		if sig.ExitCode != 0 {
			return fmt.Errorf("server exited with code %d", sig.ExitCode)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides api.listen)")
	serveCmd.Flags().Bool("no-sync", false, "Disable the background sync schedule")
}

func newSyncer(e *env) (*reconcile.Syncer, error) {
	return reconcile.NewSyncer(e.rec, e.cfg.Sync, e.logger)
}

func newHTTPServer(e *env, s *reconcile.Syncer) *api.Server {
	return api.New(e.cfg.API, api.Deps{
		Surface:  e.surface,
		Location: e.cfg.Location(),
		Notices:  e.notices,
		LastPass: s.Last,
		Logger:   e.logger,
		Registry: e.registry,
	})
}

// registerHTTPServer binds the listen address on start, so a busy port fails
// startup, and serves in the background. A serve error shuts the app down.
func registerHTTPServer(lc fx.Lifecycle, sd fx.Shutdowner, srv *api.Server, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var lcfg net.ListenConfig
			ln, err := lcfg.Listen(ctx, "tcp", srv.Addr())
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr(), err)
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
					logger.Error("http server stopped", "error", err)
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
