// Package api exposes the interaction surface over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhisek/lessonsync/internal/notify"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/surface"
)

// Deps are the server's collaborators. Notices, LastPass and Registry are
// optional.
type Deps struct {
	Surface  *surface.Surface
	Location *time.Location
	Notices  *notify.Recorder
	LastPass func() *reconcile.PassResult
	Logger   *slog.Logger

	// Registry receives the HTTP metrics and backs GET /metrics.
	Registry *prometheus.Registry
}

// Server is the HTTP adapter.
type Server struct {
	app      *fiber.App
	cfg      Config
	surface  *surface.Surface
	loc      *time.Location
	notices  *notify.Recorder
	lastPass func() *reconcile.PassResult
	logger   *slog.Logger
	validate *validator.Validate
}

// New builds the server and registers its routes.
func New(cfg Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	s := &Server{
		cfg:      cfg,
		surface:  d.Surface,
		loc:      d.Location,
		notices:  d.Notices,
		lastPass: d.LastPass,
		logger:   d.Logger,
		validate: validator.New(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "lessonsync",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	if d.Registry != nil {
		s.app.Use(PrometheusMiddleware(d.Registry))
	}
	s.app.Use(s.requestLogger())

	s.app.Get("/healthz", s.health)
	if cfg.Metrics && d.Registry != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	r := s.app.Group("/api")
	r.Get("/calendar", s.calendar)
	r.Post("/lessons", s.createLesson)
	r.Get("/items/:key", s.getItem)
	r.Patch("/items/:key", s.editItem)
	r.Delete("/items/:key", s.deleteItem)
	r.Post("/items/:key/drag", s.dragItem)
	r.Post("/items/:key/import", s.importItem)
	r.Post("/items/:key/recreate", s.recreateItem)
	r.Post("/sync", s.sync)
	r.Get("/notices", s.listNotices)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", "addr", s.cfg.Listen)
	return s.app.Listen(s.cfg.Listen)
}

// Serve serves on an already bound listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Addr is the configured listen address.
func (s *Server) Addr() string { return s.cfg.Listen }

// Shutdown stops accepting requests and waits for in-flight ones, up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":             "ok",
		"calendar_connected": s.surface.Connected(),
	}
	if s.lastPass != nil {
		if p := s.lastPass(); p != nil {
			last := fiber.Map{"started_at": p.StartedAt, "ok": p.Err == nil}
			if p.Err != nil {
				last["error"] = p.Err.Error()
			}
			body["last_sync"] = last
		}
	}
	return c.JSON(body)
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.logger.DebugContext(c.UserContext(), "http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code, msg = e.Code, e.Message
	} else {
		s.logger.ErrorContext(c.UserContext(), "unhandled request error", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
