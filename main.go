package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medilink/config"
	"medilink/cron"
	"medilink/database"
	availabilityRepo "medilink/database/repository/availability"
	chatRepo "medilink/database/repository/chat"
	offerRepo "medilink/database/repository/offer"
	requestRepo "medilink/database/repository/request"
	sessionRepo "medilink/database/repository/session"
	"medilink/handlers"
	"medilink/routes"
	"medilink/services/consult"
	"medilink/services/dispatch"
	"medilink/services/notification"
	"medilink/services/storage"
	"medilink/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type indexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}

func main() {
	config.LoadConfig()
	utils.InitializeLogger()
	logger := utils.GetLogger()
	defer logger.Sync()

	database.InitDB()
	utils.InitPresenceCache()
	utils.InitStatusCache()
	utils.FirebaseInit()

	cfg := config.AppConfig

	// Repositories.
	requests := requestRepo.NewMongoRequestRepo()
	availability := availabilityRepo.NewMongoAvailabilityRepo()
	offers := offerRepo.NewMongoOfferRepo()
	sessions := sessionRepo.NewMongoSessionRepo()
	chats := chatRepo.NewMongoChatRepo()

	idxCtx, idxCancel := context.WithTimeout(context.Background(), 15*time.Second)
	for _, repo := range []interface{}{availability, chats} {
		if e, ok := repo.(indexEnsurer); ok {
			if err := e.EnsureIndexes(idxCtx); err != nil {
				logger.Fatal("failed to create indexes", zap.Error(err))
			}
		}
	}
	idxCancel()

	// Dispatch engine.
	registry := &dispatch.Registry{
		Repo:        availability,
		Presence:    utils.GetPresenceClient(),
		PresenceTTL: time.Duration(cfg.PresenceTTL) * time.Second,
		Logger:      logger,
	}
	coordinator := &dispatch.Coordinator{
		Offers:       offers,
		Registry:     registry,
		OfferTimeout: cfg.OfferTimeout,
		Logger:       logger,
	}
	watchdog := dispatch.NewWatchdog(offers, coordinator.Expire, logger)
	coordinator.Watchdog = watchdog

	statusCache := &dispatch.StatusCache{Client: utils.GetStatusClient(), TTL: 24 * time.Hour}

	// Notifications.
	tokens := &notification.RedisTokenStore{Client: utils.GetStatusClient()}
	notifSvc, err := notification.NewDefaultNotificationService(tokens)
	if err != nil {
		logger.Fatal("failed to build notification service", zap.Error(err))
	}
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	})
	defer asynqClient.Close()
	notifier := &notification.QueueNotifier{Client: asynqClient, Fallback: notifSvc, Logger: logger}

	engine := dispatch.NewEngine(requests, registry, coordinator, notifier, statusCache, logger)

	// Consultation layer.
	media := consult.NewRelayTransport()
	manager := consult.NewManager(
		sessions, registry, media, engine,
		time.Duration(cfg.MediaSetupWindow)*time.Second,
		time.Duration(cfg.DisconnectGrace)*time.Second,
		logger,
	)
	defer manager.Stop()
	engine.BindSessions(manager)

	chatTransport := &notification.FCMChatTransport{Tokens: tokens, Redis: utils.GetStatusClient()}
	channel := &consult.Channel{
		Sessions:  sessions,
		Messages:  chats,
		Transport: chatTransport,
		Txn:       database.WithTransaction,
		Logger:    logger,
	}

	var attachments storage.AttachmentService
	if svc, err := storage.NewCloudinaryAttachmentService(cfg.CloudinaryURL); err != nil {
		logger.Warn("attachment uploads disabled", zap.Error(err))
	} else {
		attachments = svc
	}

	// Background workers.
	cron.InitAlertWorker(notifSvc)
	sweeper := &cron.Sweeper{
		Watchdog:     watchdog,
		Consults:     manager,
		Availability: availability,
		StaleAfter:   time.Duration(cfg.PresenceTTL) * time.Second,
		Logger:       logger,
	}
	if err := sweeper.Start(time.Duration(cfg.SweepInterval) * time.Second); err != nil {
		logger.Fatal("failed to start sweeper", zap.Error(err))
	}
	defer sweeper.Stop()
	defer watchdog.Stop()

	utils.StartHealthMonitor(
		[]*redis.Client{utils.GetPresenceClient(), utils.GetStatusClient()},
		database.MongoClient,
	)

	// HTTP surface.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	hb := &handlers.HandlerBundle{
		Emergency: &handlers.EmergencyHandler{Engine: engine},
		Doctor:    &handlers.DoctorHandler{Registry: registry, Engine: engine, Availability: availability},
		Session:   &handlers.SessionHandler{Manager: manager},
		Chat:      &handlers.ChatHandler{Channel: channel, Attachments: attachments},
		Device:    &handlers.DeviceHandler{Tokens: tokens},
	}
	routes.RegisterRoutes(r, hb)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}
