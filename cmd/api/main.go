package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/reportdesk/backend/internal/auth"
	"github.com/reportdesk/backend/internal/config"
	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/handlers"
	"github.com/reportdesk/backend/internal/middleware"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/services"
	"github.com/reportdesk/backend/internal/upstream"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	// Load configuration
	cfg := config.Load()

	// Connect to database
	conn, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := models.AutoMigrate(conn.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	cfg.JWTSecret = database.EnsureJWTSecret(conn.DB, cfg)

	// Services
	cache := database.NewCache(conn.Redis)
	users := services.NewCredentialStore(conn.DB)
	ledger := services.NewReportLedger(conn.DB)
	client := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, cfg.UpstreamTimeout, cfg.UpstreamSubmitTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start report sync (polls upstream for every unfinished report)
	reportSyncService := services.NewReportSyncService(ledger, client, cache, cfg.SyncInterval, cfg.SyncWorkers)
	reportSyncService.Start(ctx)

	// Start ledger export (CSV snapshot, optional FTP upload)
	ledgerExportService := services.NewLedgerExportService(ledger, cfg)
	ledgerExportService.Start()

	app := handlers.NewApp(cfg)
	handlers.SetupRoutes(app, handlers.Deps{
		Config:   cfg,
		Auth:     auth.NewService(users, conn.Redis, cfg.JWTSecret, cfg.AccessTokenExpiry),
		Users:    users,
		Serials:  services.NewSerialRegistry(conn.DB),
		Ledger:   ledger,
		Sync:     reportSyncService,
		Exporter: ledgerExportService,
		Archive:  services.NewSubmissionArchive(cfg),
		Upstream: client,
		Cache:    cache,
		Auditor:  middleware.NewAuditor(conn.DB),
		DB:       conn.DB,
	})

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		reportSyncService.Stop()
		ledgerExportService.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("Starting ReportDesk API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	conn.Close()
	log.Println("Server stopped")
}
