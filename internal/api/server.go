// Package api exposes the ingest surface: records come in over HTTP,
// get stamped with their arrival time, and go straight into the buffer.
package api

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/streamhouse/redshift-sink/internal/buffer"
	"github.com/streamhouse/redshift-sink/internal/journal"
	"github.com/streamhouse/redshift-sink/pkg/models"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP ingest server
type Server struct {
	app    *fiber.App
	cfg    ServerConfig
	buf    *buffer.Buffer
	jrnl   *journal.Journal // nil when journaling is disabled
	logger zerolog.Logger
}

// NewServer creates the ingest server. jrnl may be nil.
func NewServer(cfg ServerConfig, buf *buffer.Buffer, jrnl *journal.Journal, logger zerolog.Logger) *Server {
	log := logger.With().Str("component", "api-server").Logger()

	app := fiber.New(fiber.Config{
		AppName:               "redshift-sink",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	s := &Server{app: app, cfg: cfg, buf: buf, jrnl: jrnl, logger: log}

	app.Get("/health", s.handleHealth)
	app.Post("/api/v1/ingest/:tag", s.handleIngest)
	if jrnl != nil {
		app.Get("/api/v1/flushes", s.handleFlushes)
	}

	return s
}

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info().Str("addr", addr).Msg("Ingest server listening")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"buffered": s.buf.Len(),
	})
}

// handleIngest accepts a JSON array of records under a tag and buffers
// each with its arrival time.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	tag := c.Params("tag")

	var records []models.Record
	if err := json.Unmarshal(c.Body(), &records); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
	}

	now := time.Now()
	for _, record := range records {
		if err := s.buf.Append(tag, now, record); err != nil {
			s.logger.Error().Err(err).Str("tag", tag).Msg("Failed to buffer record")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to buffer record",
			})
		}
	}

	return c.JSON(fiber.Map{"accepted": len(records)})
}

// handleFlushes returns recent flush outcomes from the journal.
func (s *Server) handleFlushes(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	entries, err := s.jrnl.Recent(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to read journal",
		})
	}
	return c.JSON(fiber.Map{"flushes": entries})
}
