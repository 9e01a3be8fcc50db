package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reportdesk/backend/internal/auth"
	"github.com/reportdesk/backend/internal/config"
	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/middleware"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/services"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer needs, built once in main
type Deps struct {
	Config   *config.Config
	Auth     *auth.Service
	Users    *services.CredentialStore
	Serials  *services.SerialRegistry
	Ledger   *services.ReportLedger
	Sync     *services.ReportSyncService
	Exporter *services.LedgerExportService
	Archive  *services.SubmissionArchive
	Upstream Upstream
	Cache    *database.Cache
	Auditor  *middleware.Auditor
	DB       *gorm.DB
}

// NewApp creates the Fiber app with the global middleware stack
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "ReportDesk API v1.0",
		ServerHeader: "ReportDesk",
		BodyLimit:    50 * 1024 * 1024, // 50MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS(cfg.CORSOrigins))
	app.Use(middleware.RateLimiter(cfg.RateLimitPerMinute, 1*time.Minute))

	return app
}

// SetupRoutes registers every endpoint
func SetupRoutes(app *fiber.App, d Deps) {
	authHandler := NewAuthHandler(d.Config, d.Users, d.Auth, d.Auditor)
	twoFAHandler := NewTwoFAHandler(d.Users, d.Auditor)
	userHandler := NewUserHandler(d.Users)
	serialHandler := NewSerialHandler(d.Serials, d.Auditor)
	reportHandler := NewReportHandler(d.Ledger, d.Sync, d.Exporter, d.Cache)
	submissionHandler := NewSubmissionHandler(d.Upstream, d.Ledger, d.Users, d.Archive, d.Cache)
	webhookHandler := NewWebhookHandler(d.Ledger, d.Cache)
	auditHandler := NewAuditHandler(d.DB)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "reportdesk-api",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Provider callbacks
	app.Post("/webhook/plagwise", webhookHandler.Plagwise)

	api := app.Group("/api")

	// Public routes
	api.Post("/register", authHandler.Register)
	api.Post("/token", authHandler.Token)
	api.Post("/validate-serial", serialHandler.Validate)

	// Protected routes. Auth is mounted per group so unknown /api paths still 404.
	authRequired := middleware.AuthRequired(d.Auth)
	api.Post("/logout", authRequired, authHandler.Logout)

	users := api.Group("/users", authRequired)
	users.Get("/me", authHandler.Me)
	users.Post("/update-reports", d.Auditor.Audit(models.AuditActionUpdate, "user_reports", ""), userHandler.UpdateReports)
	users.Delete("/reports/:id", d.Auditor.Audit(models.AuditActionDelete, "user_reports", "id"), userHandler.RemoveReport)
	users.Put("/:username/admin", middleware.AdminOnly(), d.Auditor.Audit(models.AuditActionUpdate, "user", "username"), userHandler.SetAdmin)

	twoFA := api.Group("/auth/2fa", authRequired)
	twoFA.Get("/status", twoFAHandler.Status)
	twoFA.Post("/setup", twoFAHandler.Setup)
	twoFA.Post("/verify", twoFAHandler.Verify)
	twoFA.Post("/disable", twoFAHandler.Disable)

	reports := api.Group("/reports", authRequired)
	reports.Get("", reportHandler.List)
	reports.Get("/stats", middleware.AdminOnly(), reportHandler.Stats)
	reports.Get("/export", middleware.AdminOnly(), reportHandler.Export)
	reports.Post("/export", middleware.AdminOnly(), reportHandler.RunExport)
	reports.Post("/sync", middleware.AdminOnly(), reportHandler.SyncNow)
	reports.Delete("/:id", middleware.AdminOnly(), d.Auditor.Audit(models.AuditActionDelete, "report", "id"), reportHandler.Delete)

	api.Post("/submit-file", authRequired, submissionHandler.Submit)
	api.Get("/submissions/:id/status", authRequired, submissionHandler.Status)

	// Serial administration
	api.Post("/generate-serials", authRequired, middleware.AdminOnly(), d.Auditor.Audit(models.AuditActionCreate, "serial", ""), serialHandler.Generate)
	api.Get("/serials", authRequired, middleware.AdminOnly(), serialHandler.List)

	audit := api.Group("/audit", authRequired, middleware.AdminOnly())
	audit.Get("", auditHandler.List)
	audit.Get("/actions", auditHandler.GetActions)
	audit.Get("/:id", auditHandler.Get)
}
