package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/fanout"
	"messenger-service/internal/handlers"
	"messenger-service/internal/logger"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/service"
	"messenger-service/internal/storage"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

const serviceName = "messenger-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Environment == "development")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.Tracing.Endpoint)
	if err != nil {
		zl.Fatalw("failed to init tracer", "error", err)
	}
	defer shutdownTracer(ctx)

	database, err := db.Connect(cfg.Database.DSN, zl)
	if err != nil {
		zl.Fatalw("failed to connect to db", "error", err)
	}
	defer database.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zl.Warnw("redis unreachable, presence disabled", "error", err)
			redisClient = nil
		}
	}
	presenceStore := presence.NewStore(redisClient, cfg.Redis.Prefix)

	var blobs storage.BlobStore
	switch cfg.Blob.Backend {
	case "s3":
		blobs, err = storage.NewS3Store(ctx, cfg.Blob.Region, cfg.Blob.Bucket)
	default:
		blobs, err = storage.NewDiskStore(cfg.Blob.BasePath)
	}
	if err != nil {
		zl.Fatalw("failed to init blob store", "backend", cfg.Blob.Backend, "error", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, zl)
	defer publisher.Close()
	zl.Infow("event publisher ready", "mode", rabbitmq.PublisherMode(publisher))
	audit := telemetry.NewAuditEmitter(publisher, "audit.messenger", serviceName, cfg.Environment, zl)

	if cfg.AMQP.URL != "" {
		obsPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, zl)
		if err != nil {
			zl.Warnw("observability publisher unavailable", "error", err)
		} else {
			observability.SetPublisher(obsPublisher)
			defer obsPublisher.Close()
		}
	}

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub(zl)
	dispatcher := fanout.NewDispatcher(hub, userRepo, messageRepo, zl)

	messageService := service.NewMessageService(chatRepo, messageRepo, blobs, dispatcher, zl)
	deliveryService := service.NewDeliveryService(chatRepo, messageRepo, zl)

	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, userRepo, deliveryService, audit)
	messageHandler := handlers.NewMessageHandler(messageService, deliveryService, hub, audit)
	userHandler := handlers.NewUserHandler(userRepo, presenceStore)

	chatWS := ws.NewChatSocketHandler(hub, chatRepo, presenceStore, cfg.JWT.Secret, zl)
	userWS := ws.NewUserSocketHandler(hub, presenceStore, cfg.JWT.Secret, zl)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.AuthMiddleware(cfg.JWT.Secret)

	router.GET("/users", auth, userHandler.ListUsers)

	router.GET("/chats", auth, chatHandler.ListChats)
	router.POST("/chats/open", auth, chatHandler.OpenChat)
	router.POST("/chats/private", auth, chatHandler.CreatePrivateChats)
	router.POST("/chats/group", auth, chatHandler.CreateGroup)
	router.POST("/chats/delete", auth, chatHandler.DeleteChats)
	router.GET("/chats/:chat_id/messages", auth, chatHandler.ListMessages)
	router.POST("/chats/:chat_id/read", auth, chatHandler.MarkRead)
	router.POST("/chats/:chat_id/seen", auth, messageHandler.MarkSeen)

	router.POST("/messages", auth, messageHandler.Send)
	router.POST("/messages/forward", auth, messageHandler.Forward)
	router.POST("/messages/share", auth, messageHandler.Share)
	router.POST("/messages/delete", auth, messageHandler.DeleteMessages)
	router.POST("/messages/delivered", auth, messageHandler.MarkDelivered)

	router.GET("/ws/chats/:chat_id", chatWS.Handle)
	router.GET("/ws/me", userWS.Handle)

	zl.Infow("starting server", "port", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		zl.Fatalw("server error", "error", err)
	}
}
