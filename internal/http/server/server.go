package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"compare/internal/config"
	"compare/internal/domain"
	"compare/internal/http/handlers"
	"compare/internal/http/middleware"
	"compare/internal/infra/cache"
	"compare/internal/infra/logging"
	"compare/internal/infra/pdfrender"
	"compare/internal/infra/vision"
	"compare/internal/infra/worker"
	"compare/internal/service"
)

// Deps are the collaborators of the HTTP app. Nil members get defaults built from Config.
type Deps struct {
	Config     config.Config
	Redis      *redis.Client
	Pool       *worker.Pool
	Comparator domain.Comparator
	Renderer   domain.PageRenderer
}

// New creates and configures the Fiber app.
func New(d Deps) *fiber.App {
	cfg := d.Config
	if d.Pool == nil {
		d.Pool = worker.NewPool(cfg.Worker.Size)
	}
	if d.Comparator == nil {
		d.Comparator = vision.NewEngine(vision.ParamsFromConfig(cfg.Compare))
	}
	if d.Renderer == nil {
		d.Renderer = defaultRenderer(cfg)
	}

	var rc *cache.Cache
	if cfg.Cache.Enabled {
		rc = cache.New(d.Redis, cfg.Cache.TTL)
	}

	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit(cfg),
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, cfg)

	h := handlers.New(
		service.NewCompareService(d.Comparator, d.Pool, rc, service.CompareOptions{
			ScratchDir:      cfg.Scratch.Dir,
			AllowPathInputs: cfg.Compare.AllowPathInputs,
			PathRoot:        cfg.Compare.PathRoot,
		}),
		service.NewPDFService(d.Renderer, d.Pool, rc, cfg.Scratch.Dir),
		d.Pool,
	)
	RegisterRoutes(app, h)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// defaultRenderer builds the renderer main would build for cfg. The backend
// lives as long as the process.
func defaultRenderer(cfg config.Config) *pdfrender.Renderer {
	return pdfrender.New(pdfrender.BackendOrFitz(cfg.PDF), cfg.PDF.DPI)
}

// RegisterRoutes mounts the handlers at the root and under /v1.
func RegisterRoutes(app *fiber.App, h *handlers.Handlers) {
	for _, r := range []fiber.Router{app, app.Group("/v1")} {
		r.Post("/algorithms", h.HandleAlgorithms)
		r.Post("/convert-pdf", h.HandleConvertPDF)
		r.Post("/convert-pdf/pages", h.HandleConvertPDFPages)
	}

	v1 := app.Group("/v1")
	v1.Get("/workers/stats", h.HandleWorkerStats)
	v1.Get("/monitor", monitor.New())
}

func bodyLimit(cfg config.Config) int {
	if cfg.Server.BodyLimitMB <= 0 {
		return fiber.DefaultBodyLimit
	}
	return cfg.Server.BodyLimitMB * 1024 * 1024
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var appErr *domain.AppError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &appErr):
		code = appErr.StatusCode()
		msg = appErr.Message
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		msg = fiberErr.Message
	}

	if code >= fiber.StatusInternalServerError {
		logging.Error("Request failed", "path", c.Path(), "status", code, "error", err, "request_id", middleware.RequestID(c))
	} else {
		logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg, "request_id", middleware.RequestID(c))
	}

	return c.Status(code).JSON(fiber.Map{"error": msg})
}
