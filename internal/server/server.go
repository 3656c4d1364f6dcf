// Package server exposes the notes HTTP API and the prefetching page routes.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/prefetch"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotesService is the backend behaviour behind the /api/notes routes.
type NotesService interface {
	List(ctx context.Context, f note.Filter) (note.Page, error)
	Get(ctx context.Context, id uuid.UUID) (note.Note, error)
	Create(ctx context.Context, d note.Draft) (note.Note, error)
}

// Prefetcher produces the snapshot served with a filter page.
type Prefetcher interface {
	Run(ctx context.Context, segments []string) (prefetch.Result, error)
}

type Server struct {
	app    *fiber.App
	logger *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds the fiber application. Either dependency may be nil, in which
// case its routes are not registered.
func New(notes NotesService, pages Prefetcher, opts ...Option) *Server {
	s := &Server{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "notehub",
		BodyLimit:             64 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(s.logger),
	})

	app.Use(recover.New())
	app.Use(requestLogger(s.logger))

	if notes != nil {
		NewNotesController(notes).RegisterRoutes(app.Group("/api"))
	}
	if pages != nil {
		NewPagesController(pages, s.logger).RegisterRoutes(app)
	}

	s.app = app
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("status", c.Response().StatusCode()))
		}
		logger.Debug("request", fields...)
		return err
	}
}
