package api

import (
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/maheshrc27/adpulse/internal/api/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Sync     *handlers.SyncHandler
	Media    *handlers.MediaHandler
	Creative *handlers.CreativeHandler
	Account  *handlers.AccountHandler
	Mapping  *handlers.MappingHandler
	Health   *handlers.HealthHandler
}

func NewApp(frontendURL string) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    20 * 1024 * 1024,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				slog.Error("unhandled error", "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: frontendURL,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
		MaxAge:       3600,
	}))
	return app
}

// Register mounts every route. auth guards everything under /api.
func Register(app *fiber.App, h Handlers, auth fiber.Handler) {
	app.Get("/healthz", h.Health.Healthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Use(auth)

	api.Post("/sync", h.Sync.StartSync)
	api.Post("/sync/cancel", h.Sync.CancelSync)
	api.Get("/sync", h.Sync.ListSyncs)
	api.Get("/sync/:id", h.Sync.GetSync)

	api.Post("/media-refresh", h.Media.RefreshMedia)
	api.Get("/media-refresh/latest", h.Media.LatestRefresh)

	api.Get("/creatives", h.Creative.ListCreatives)
	api.Post("/creatives/bulk-untag", h.Creative.BulkUntag)
	api.Put("/creatives/:ad_id", h.Creative.UpdateCreative)

	api.Get("/accounts", h.Account.ListAccounts)
	api.Post("/accounts", h.Account.CreateAccount)
	api.Put("/accounts/:id", h.Account.UpdateAccount)
	api.Post("/accounts/:id/retag", h.Account.Retag)
	api.Get("/accounts/:id/summary", h.Account.Summary)
	api.Get("/accounts/:id/trends", h.Account.Trends)
	api.Post("/accounts/:id/name-mappings", h.Mapping.ImportNameMappings)
	api.Get("/accounts/:id/name-mappings", h.Mapping.ListNameMappings)
}
