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
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/adapter/cache"
	"github.com/gridfleet/gateway/internal/adapter/http/fiber/handlers"
	"github.com/gridfleet/gateway/internal/adapter/http/fiber/middleware"
	"github.com/gridfleet/gateway/internal/adapter/notification"
	"github.com/gridfleet/gateway/internal/adapter/pki"
	"github.com/gridfleet/gateway/internal/adapter/queue"
	"github.com/gridfleet/gateway/internal/adapter/relay"
	"github.com/gridfleet/gateway/internal/adapter/storage/postgres"
	"github.com/gridfleet/gateway/internal/adapter/vault"
	wsAdapter "github.com/gridfleet/gateway/internal/adapter/websocket"
	"github.com/gridfleet/gateway/internal/observability/telemetry"
	"github.com/gridfleet/gateway/internal/ocpp"
	"github.com/gridfleet/gateway/internal/ports"
	"github.com/gridfleet/gateway/internal/service/certs"
	"github.com/gridfleet/gateway/internal/service/device"
	"github.com/gridfleet/gateway/internal/service/diagnostics"
	"github.com/gridfleet/gateway/internal/service/firmware"
	"github.com/gridfleet/gateway/internal/service/locallist"
	"github.com/gridfleet/gateway/internal/service/profile"
	"github.com/gridfleet/gateway/internal/service/reservation"
	"github.com/gridfleet/gateway/internal/service/transaction"
	"github.com/gridfleet/gateway/pkg/config"
)

const serviceName = "gridfleet-gateway"

var serviceVersion = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting gateway",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
		zap.String("environment", cfg.App.Environment),
	)

	// Secrets from Vault override file/env config when enabled.
	if cfg.Vault.Enabled {
		sm, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Fatal("Failed to connect to Vault", zap.Error(err))
		}
		if dsn, err := sm.GetDatabaseCredentials(); err == nil && dsn != "" {
			cfg.Database.URL = dsn
		}
		if token, err := sm.GetSignerToken(); err == nil && token != "" {
			cfg.Signer.Token = token
		}
		if secret, err := sm.GetJWTSecret(); err == nil && secret != "" {
			cfg.JWT.Secret = secret
		}
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracer(cfg.Tracing.ServiceName, serviceVersion, cfg.Tracing.JaegerURL, cfg.Tracing.SampleRate)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// Database
	db, err := postgres.NewConnection(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer postgres.Close(db)

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// Cache, with an in-process fallback when Redis is unreachable.
	var cacheStore ports.Cache
	if cfg.Redis.URL != "" {
		cacheStore, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, using local cache", zap.Error(err))
			cacheStore = cache.NewLocalCache(time.Minute, logger)
		}
	} else {
		cacheStore = cache.NewLocalCache(time.Minute, logger)
	}
	defer cacheStore.Close()

	// Event bus
	messageQueue, err := newQueue(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err))
	}
	defer messageQueue.Close()

	// Repositories
	chargerRepo := postgres.NewChargerRepository(db, logger)
	transactionRepo := postgres.NewTransactionRepository(db, logger)
	workflowRepo := postgres.NewWorkflowRepository(db, logger)

	// Core services
	deviceService := device.NewService(chargerRepo, cacheStore, messageQueue, logger)
	transactionService := transaction.NewService(transactionRepo, messageQueue, logger)

	var emailSender notification.EmailSender
	if cfg.Email.Enabled {
		emailSender = notification.NewSendGridProvider(cfg.Email.SendGridAPIKey, cfg.Email.From, serviceName)
	}
	notifier := notification.NewNotifier(messageQueue, emailSender, cfg.Email.OnCall, logger)

	signer := pki.NewHTTPSigner(cfg.Signer.BaseURL, cfg.Signer.Token, logger)
	frameRelay := relay.NewHTTPRelay(logger)

	// OCPP engine and charge-point listener
	gw := ocpp.New(ocpp.Config{
		HeartbeatInterval:  cfg.OCPP.HeartbeatInterval,
		DefaultCallTimeout: cfg.OCPP.DefaultCallTimeout,
		ActionTimeouts:     cfg.OCPP.ActionTimeouts,
		FollowupTTL:        cfg.OCPP.FollowupTTL,
		RateLimitWindow:    cfg.OCPP.RateLimitWindow,
		RateLimitMax:       cfg.OCPP.RateLimitMax,
		TrustedNetworks:    cfg.OCPP.TrustedNetworks,
		PerChargerLimits:   cfg.OCPP.PerChargerLimits,
		Workers:            cfg.OCPP.Workers,
		QueueDepth:         cfg.OCPP.QueueDepth,
	}, ocpp.Deps{
		Devices:      deviceService,
		Transactions: transactionService,
		Chargers:     chargerRepo,
		Workflows:    workflowRepo,
		Cache:        cacheStore,
		Notifier:     notifier,
		Signer:       signer,
		Queue:        messageQueue,
		Relay:        frameRelay,
	}, logger)
	defer gw.Close()

	ocppServer := ocpp.NewServer(gw, logger)
	go func() {
		if err := ocppServer.Start(cfg.OCPP.Port); err != nil {
			logger.Fatal("OCPP server failed", zap.Error(err))
		}
	}()

	// Workflow coordinators
	firmwareService := firmware.NewService(gw, workflowRepo, notifier, logger)
	diagnosticsService := diagnostics.NewService(gw, workflowRepo, cfg.Transfer.BaseURL, logger)
	reservationService := reservation.NewService(gw, workflowRepo, logger)
	profileService := profile.NewService(gw, workflowRepo, logger)
	locallistService := locallist.NewService(gw, workflowRepo, logger)
	certsService := certs.NewService(gw, workflowRepo, logger)

	// Dashboard event hub
	hub := wsAdapter.NewHub(logger)
	go hub.Run()
	err = hub.Bridge(messageQueue,
		"gateway.charger.status",
		"gateway.charger.boot",
		"gateway.transaction.started",
		"gateway.transaction.stopped",
		"gateway.alerts",
	)
	if err != nil {
		logger.Warn("Failed to bridge event subjects to dashboard hub", zap.Error(err))
	}

	// Admin HTTP API
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.NewCORS(cfg.CORS))

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
		}
		return c.SendString("Ready")
	})
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// File exchange used by chargers; authenticated by obscure URL, not JWT.
	transferHandler := handlers.NewTransferHandler(cfg.Transfer.Dir, logger)
	app.Put("/transfer/diagnostics/:serial", transferHandler.UploadDiagnostics)
	app.Post("/transfer/diagnostics/:serial", transferHandler.UploadDiagnostics)
	app.Get("/transfer/diagnostics/:serial", transferHandler.ListDiagnostics)
	app.Get("/transfer/diagnostics/:serial/:file", transferHandler.DownloadDiagnostics)
	app.Get("/transfer/firmware/:file", transferHandler.DownloadFirmware)
	app.Put("/transfer/firmware/:file", transferHandler.UploadFirmware)

	v1 := app.Group("/api/v1", middleware.AuthRequired(cfg.JWT.Secret))

	chargerHandler := handlers.NewChargerHandler(deviceService, transactionService, logger)
	v1.Get("/chargers", chargerHandler.List)
	v1.Get("/chargers/:id", chargerHandler.Get)
	v1.Get("/chargers/:id/transactions/active", chargerHandler.ActiveTransaction)
	v1.Get("/transactions/:txid", chargerHandler.GetTransaction)

	commandHandler := handlers.NewCommandHandler(gw, logger)
	v1.Post("/chargers/:id/commands", commandHandler.Dispatch)
	v1.Post("/chargers/:id/remote-start", commandHandler.RemoteStart)
	v1.Post("/chargers/:id/remote-stop", commandHandler.RemoteStop)
	v1.Post("/chargers/:id/reset", commandHandler.Reset)
	v1.Post("/chargers/:id/unlock", commandHandler.UnlockConnector)
	v1.Post("/chargers/:id/configuration", commandHandler.ChangeConfiguration)

	workflowHandler := handlers.NewWorkflowHandler(
		firmwareService, diagnosticsService, reservationService,
		profileService, locallistService, certsService, logger,
	)
	v1.Post("/chargers/:id/firmware", workflowHandler.DeployFirmware)
	v1.Get("/chargers/:id/firmware", workflowHandler.FirmwareStatus)
	v1.Post("/chargers/:id/firmware/publish", workflowHandler.PublishFirmware)
	v1.Delete("/chargers/:id/firmware/publish", workflowHandler.UnpublishFirmware)
	v1.Post("/chargers/:id/diagnostics", workflowHandler.RequestDiagnostics)
	v1.Get("/chargers/:id/diagnostics", workflowHandler.DiagnosticsStatus)
	v1.Post("/chargers/:id/logs", workflowHandler.RequestLog)
	v1.Post("/chargers/:id/trigger", workflowHandler.TriggerMessage)
	v1.Post("/chargers/:id/reservations", workflowHandler.Reserve)
	v1.Get("/chargers/:id/reservations", workflowHandler.ListReservations)
	v1.Delete("/chargers/:id/reservations/:rid", workflowHandler.CancelReservation)
	v1.Post("/chargers/:id/profiles", workflowHandler.ApplyProfile)
	v1.Delete("/chargers/:id/profiles", workflowHandler.ClearProfiles)
	v1.Get("/chargers/:id/schedule", workflowHandler.CompositeSchedule)
	v1.Post("/chargers/:id/locallist", workflowHandler.PushLocalList)
	v1.Get("/chargers/:id/locallist/version", workflowHandler.LocalListVersion)
	v1.Post("/chargers/:id/certificates", workflowHandler.InstallCertificate)
	v1.Delete("/chargers/:id/certificates", workflowHandler.DeleteCertificate)
	v1.Get("/chargers/:id/certificates", workflowHandler.ListCertificates)
	v1.Get("/chargers/:id/certificates/history", workflowHandler.CertificateHistory)

	// Dashboard event stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		userID := c.Query("userId", "guest")
		hub.AddClient(c, userID)
	}))

	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := ocppServer.Shutdown(ctx); err != nil {
		logger.Error("OCPP server shutdown failed", zap.Error(err))
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.App.Environment == "development" || cfg.Logging.Format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newQueue(cfg *config.Config, logger *zap.Logger) (queue.MessageQueue, error) {
	switch cfg.Queue.Driver {
	case "rabbitmq":
		return queue.NewRabbitMQQueue(cfg.Queue.RabbitMQ.URL, logger)
	default:
		return queue.NewNATSQueue(cfg.Queue.NATS.URL, logger)
	}
}
