package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crewtrack/backend/internal/config"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/directory"
	"github.com/crewtrack/backend/internal/handlers"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/models"
	"github.com/crewtrack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

func main() {
	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Shared services
	cache := database.NewActivityCache(database.Redis, cfg.CacheTTL, cfg.CacheStaleWindow)
	directoryClient := directory.NewClient(cfg)
	notifier := services.NewNotifier()
	aggregator := services.NewAggregator(cache)
	evaluator := services.NewQuotaEvaluator(notifier)
	ranker := services.NewLeaderboardRanker(aggregator, directoryClient)
	coordinator := services.NewResetCoordinator(evaluator, aggregator, notifier, cfg.ResetConcurrent)

	// Background services
	staleCleanup := services.NewStaleSessionCleanupService(cfg.StaleSessionMinutes)
	staleCleanup.Start()
	defer staleCleanup.Stop()

	historyExport := services.NewHistoryExportService(cfg)
	historyExport.Start()
	defer historyExport.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "CrewTrack API",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(middleware.CORS())
	app.Use(middleware.Logger())
	app.Use(middleware.RateLimiter(300, time.Minute))

	setupRoutes(app, cfg, aggregator, evaluator, ranker, coordinator, notifier)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("CrewTrack API listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func setupRoutes(
	app *fiber.App,
	cfg *config.Config,
	aggregator *services.Aggregator,
	evaluator *services.QuotaEvaluator,
	ranker *services.LeaderboardRanker,
	coordinator *services.ResetCoordinator,
	notifier *services.Notifier,
) {
	activityHandler := handlers.NewActivityHandler(aggregator, evaluator)
	quotaHandler := handlers.NewQuotaHandler(evaluator)
	leaderboardHandler := handlers.NewLeaderboardHandler(ranker)
	cronHandler := handlers.NewCronHandler(cfg, coordinator)
	historyHandler := handlers.NewHistoryHandler()
	scheduleHandler := handlers.NewScheduleHandler(notifier)
	wallHandler := handlers.NewWallHandler()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// External cron trigger (authenticated by X-Cron-Secret, not JWT)
	api.Post("/cron/activity", cronHandler.Trigger)

	// Session signals from the game server (authenticated by workspace API key)
	signals := api.Group("/workspaces/:workspaceId/activity", middleware.WorkspaceKeyRequired())
	signals.Post("/start", activityHandler.StartSession)
	signals.Post("/end", activityHandler.EndSession)

	// Member-facing routes (JWT + workspace membership)
	workspace := api.Group("/workspaces/:workspaceId", middleware.AuthRequired(cfg), middleware.AuditLogger())

	workspace.Get("/activity/me", activityHandler.GetMyActivity)
	workspace.Get("/activity/members/:userId", middleware.AdminOnly(), activityHandler.GetMemberActivity)

	workspace.Post("/adjustments", middleware.AdminOnly(), activityHandler.CreateAdjustment)
	workspace.Get("/adjustments/:userId", middleware.AdminOnly(), activityHandler.ListAdjustments)

	workspace.Get("/quotas/me", quotaHandler.GetMyQuotas)
	workspace.Post("/quotas/:quotaId/complete", quotaHandler.Complete)
	workspace.Post("/quotas/:quotaId/signoff", quotaHandler.Signoff)
	workspace.Post("/quotas/:quotaId/uncomplete", quotaHandler.Uncomplete)

	workspace.Get("/leaderboard", leaderboardHandler.Get)

	workspace.Get("/history/me", historyHandler.GetMyHistory)
	workspace.Get("/history/members/:userId", middleware.AdminOnly(), historyHandler.GetMemberHistory)
	workspace.Get("/resets", historyHandler.ListResets)
	workspace.Post("/reset", middleware.AdminOnly(), cronHandler.ManualReset)

	workspace.Get("/sessions", scheduleHandler.ListSessions)
	workspace.Post("/sessions", middleware.AdminOnly(), scheduleHandler.CreateSession)
	workspace.Post("/sessions/:sessionId/claim", scheduleHandler.Claim)
	workspace.Post("/sessions/:sessionId/end", scheduleHandler.End)
	workspace.Post("/sessions/:sessionId/attendance", scheduleHandler.LogAttendance)

	workspace.Get("/wall", wallHandler.ListPosts)
	workspace.Post("/wall", wallHandler.CreatePost)
	workspace.Post("/alliance-visits", middleware.AdminOnly(), wallHandler.LogVisit)
	workspace.Get("/alliance-visits/:userId", wallHandler.ListVisits)
}
