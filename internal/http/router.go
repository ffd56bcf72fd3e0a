package http

import (
	"time"

	"github.com/chronicle-audit/backend/internal/config"
	"github.com/chronicle-audit/backend/internal/http/handlers"
	"github.com/chronicle-audit/backend/internal/middleware"
	"github.com/chronicle-audit/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	recordHandler *handlers.RecordHandler,
	queryHandler *handlers.QueryHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + middleware.HeaderSequence,
	}))
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/token", authHandler.IssueToken)

	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Recording
	write := protected.Group("", middleware.RequirePermission(rbac.PermRecordWrite))
	write.Post("/records", middleware.SequenceMiddleware(), recordHandler.CreateRecord)
	write.Post("/records/batch", recordHandler.CreateBatch)
	protected.Post("/records/:id/extras",
		middleware.RequirePermission(rbac.PermAttachExtra), recordHandler.AttachExtra)

	// Queries
	protected.Get("/records", middleware.RequirePermission(rbac.PermQueryEntity), queryHandler.ListByEntity)
	protected.Get("/records/:id", middleware.RequirePermission(rbac.PermQueryEntity), queryHandler.GetRecord)
	protected.Get("/records/:id/extras", middleware.RequirePermission(rbac.PermQueryEntity), queryHandler.GetExtras)
	protected.Get("/actors/:id/records", middleware.RequirePermission(rbac.PermQueryAll), queryHandler.ListByActor)

	// WebSocket stream of record events
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws/stream", websocket.New(wsHub.HandleWS))
}
