package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"tours-backend/internal/admin"
	"tours-backend/internal/auth"
	"tours-backend/internal/config"
	"tours-backend/internal/engine"
	"tours-backend/internal/instrument"
	"tours-backend/internal/metadata"
	"tours-backend/internal/storage"
	"tours-backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s/%s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)
	if cfg.JWTSecret == "changeme-secret" {
		log.Println("WARNING: jwt_secret is the default value. Set JWT_SECRET before deploying.")
	}

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap tables and seed data
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap database: %v", err)
	}
	log.Println("Tables ready")

	// 4. Registry and booking attribute catalog
	reg := metadata.NewRegistry()
	if err := metadata.LoadAttributes(ctx, db.DB, reg); err != nil {
		log.Printf("WARN: Failed to load booking attributes: %v", err)
	}

	// 5. Tracing
	var inst instrument.Instrumenter = &instrument.NoopInstrumenter{}
	if cfg.Instrumentation.Enabled {
		tp, shutdown := instrument.NewTracerProvider(cfg.Instrumentation)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Printf("WARN: tracer shutdown: %v", err)
			}
		}()
		inst = instrument.NewInstrumenter(tp)
	}

	// 6. Webhook plumbing
	audit := engine.NewAuditLogger(db)
	delivery := engine.NewDeliveryClient(cfg.Webhooks)
	dispatcher := engine.NewDispatcher(db, delivery, audit, cfg.Webhooks.MaxConcurrency)
	ingestor := engine.NewIngestor(db, audit, cfg.Ingest)
	events := engine.NewBookingEvents(dispatcher)

	var files storage.FileStorage
	if cfg.Storage.Driver == "local" {
		files = storage.NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.MaxFileSize)
	} else {
		log.Printf("WARN: unknown storage driver %q, CSV import disabled", cfg.Storage.Driver)
	}

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
		BodyLimit:    int(cfg.Storage.MaxFileSize) + 1<<20,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(inst))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Public webhook endpoints (own CORS handling, no auth)
	engine.NewWebhookHandler(ingestor, dispatcher).Register(app)

	// 10. Dashboard CORS
	app.Use("/api", cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// 11. Auth routes (no auth required)
	invites := auth.NewInvites(db, cfg.Invitations.TTL)
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(db, invites, cfg.JWTSecret))

	// 12. Everything else under /api requires a token
	api := app.Group("/api", auth.AuthMiddleware(cfg.JWTSecret))

	// 13. Settings API (admin only); registered before the generic collection routes
	admin.RegisterAdminRoutes(api, admin.NewHandler(db, reg, invites))

	// 14. Dashboard API
	engine.RegisterDashboardRoutes(api, engine.NewHandler(db, reg, events, files))

	// 15. Maintenance sweeper
	sweeper := auth.NewSweeper(db, invites, cfg.Maintenance.SweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start maintenance sweeper: %v", err)
	}
	defer sweeper.Stop()

	// 16. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Printf("Starting server on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Printf("ERROR: server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("WARN: server shutdown: %v", err)
	}
}
