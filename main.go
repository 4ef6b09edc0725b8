package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipogains-backend/config"
	"github.com/fenilmodi00/ipogains-backend/database"
	"github.com/fenilmodi00/ipogains-backend/handlers"
	"github.com/fenilmodi00/ipogains-backend/jobs"
	"github.com/fenilmodi00/ipogains-backend/middleware"
	"github.com/fenilmodi00/ipogains-backend/services"
	"github.com/fenilmodi00/ipogains-backend/shared"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		logrus.Fatalf("Migration failed: %v", err)
	}

	// PAN encryption key
	panCodec, err := shared.NewPANCodec(cfg.PANKey)
	if err != nil {
		logrus.Fatalf("Invalid PAN_ENCRYPTION_KEY: %v", err)
	}

	// Mailer: real SMTP when configured, log-only otherwise
	var mailer services.Mailer
	if cfg.EmailConfigured() {
		mailer = services.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SenderName)
		logrus.WithField("host", cfg.SMTPHost).Info("SMTP mailer configured")
	} else {
		mailer = services.LogMailer{}
		logrus.Warn("SMTP not configured; emails will be logged, not sent")
	}

	// Services. The IPO service and the notification service reference each
	// other, so the notifier is wired in a second step.
	subscriberService := services.NewSubscriberService(db, mailer, cfg.SenderEmail, cfg.FrontendURL, cfg.APIURL)
	ipoService := services.NewIPOService(db)
	notificationService := services.NewNotificationService(db, ipoService, subscriberService, services.NotificationConfig{
		Mailer:      mailer,
		SenderEmail: cfg.SenderEmail,
		FrontendURL: cfg.FrontendURL,
		BackendURL:  cfg.APIURL,
		SendDelay:   cfg.EmailSendDelay,
	})
	ipoService.SetNotifier(notificationService)
	userService := services.NewUserService(db, subscriberService, mailer, cfg.SenderEmail, cfg.FrontendURL)
	allotmentService := services.NewAllotmentService(db, panCodec, ipoService, mailer, cfg.SenderEmail, cfg.FrontendURL)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, cfg.JWTSecret, cfg.JWTExpiry)
	ipoHandler := handlers.NewIPOHandler(ipoService)
	adminHandler := handlers.NewAdminHandler(ipoService, userService, subscriberService, allotmentService, notificationService)
	allotmentHandler := handlers.NewAllotmentHandler(allotmentService)
	subscriberHandler := handlers.NewSubscriberHandler(subscriberService, cfg.FrontendURL)
	notificationHandler := handlers.NewNotificationHandler(notificationService)

	// Background jobs
	scheduler, err := jobs.NewScheduler(notificationService)
	if err != nil {
		logrus.Fatalf("Failed to build scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	protected := middleware.Protected(cfg.JWTSecret)
	adminOnly := middleware.AdminOnly(cfg.JWTSecret)
	optionalAuth := middleware.OptionalAuth(cfg.JWTSecret)

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", protected, authHandler.Logout)
	auth.Get("/me", protected, authHandler.Me)
	auth.Post("/verify-otp", authHandler.VerifyOTP)
	auth.Post("/resend-otp", authHandler.ResendOTP)
	auth.Post("/forgot-password", authHandler.ForgotPassword)
	auth.Post("/reset-password", authHandler.ResetPassword)

	// Public IPO routes
	api.Get("/ipos", ipoHandler.List)
	api.Get("/ipos/search", ipoHandler.Search)
	api.Get("/ipos/stats/overview", ipoHandler.Stats)
	api.Get("/ipos/:id", ipoHandler.Get)

	// Allotment. Check works anonymously; a logged-in caller also gets
	// their tracking record updated.
	allotment := api.Group("/allotment")
	allotment.Post("/check", optionalAuth, allotmentHandler.Check)
	allotment.Post("/apply", protected, allotmentHandler.Apply)
	allotment.Post("/log-external", protected, allotmentHandler.LogExternal)
	allotment.Get("/my-applications", protected, allotmentHandler.Mine)
	allotment.Post("/my-status", protected, allotmentHandler.MyStatus)
	allotment.Put("/update-status", adminOnly, allotmentHandler.UpdateStatus)
	allotment.Delete("/:applicationId", protected, allotmentHandler.Delete)

	// Subscribers
	subscribers := api.Group("/subscribers")
	subscribers.Post("/subscribe", subscriberHandler.Subscribe)
	subscribers.Get("/unsubscribe/:token", subscriberHandler.Unsubscribe)
	subscribers.Put("/preferences/:token", subscriberHandler.UpdatePreferences)
	subscribers.Get("/stats", subscriberHandler.Stats)
	subscribers.Get("/check/:email", subscriberHandler.Check)

	// Notification administration
	notifications := api.Group("/notifications", adminOnly)
	notifications.Get("/subscribers", adminHandler.ListSubscribers)
	notifications.Get("/history", notificationHandler.History)
	notifications.Get("/pending", notificationHandler.Pending)
	notifications.Post("/process-notifications", notificationHandler.Process)
	notifications.Post("/trigger-digest", notificationHandler.Digest)

	// Admin routes
	admin := api.Group("/admin", adminOnly)
	admin.Post("/ipos", adminHandler.CreateIPO)
	admin.Put("/ipos/:id", adminHandler.UpdateIPO)
	admin.Delete("/ipos/:id", adminHandler.DeleteIPO)
	admin.Put("/ipos/:id/subscription", adminHandler.UpdateSubscription)
	admin.Post("/ipos/:id/gmp", adminHandler.AddGMP)
	admin.Put("/ipos/:id/listing", adminHandler.UpdateListing)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Put("/users/:id/role", adminHandler.SetUserRole)
	admin.Delete("/users/:id", adminHandler.DeleteUser)
	admin.Get("/subscribers", adminHandler.ListSubscribers)
	admin.Get("/subscribers/stats", adminHandler.SubscriberStats)
	admin.Put("/applications/:id/status", adminHandler.SetApplicationStatus)
	admin.Get("/dashboard/stats", adminHandler.DashboardStats)

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Server failed to start: %v", err)
	}
}
