package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/config"
	"messaging-service/internal/broker"
	"messaging-service/internal/db"
	"messaging-service/internal/directory"
	"messaging-service/internal/handlers"
	"messaging-service/internal/identity"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/session"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DSN())
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	shutdownTracing := observability.InitTracing(context.Background(), "messaging-service", cfg.Telemetry.OTLPEndpoint)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))
	emitter := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, "messaging-service", cfg.Server.Env)

	if cfg.AMQP.URL != "" {
		if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange); err != nil {
			log.Printf("event publisher disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	notifier := broker.New()
	conversationRepo := repositories.NewConversationRepo(database, notifier)
	messageRepo := repositories.NewMessageRepo(database, notifier)

	var userDirectory directory.Directory = directory.NewPostgresDirectory(database)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		userDirectory = directory.NewCachedDirectory(userDirectory, redisClient, 10*time.Minute)
	}

	provider := identity.NewJWTProvider(cfg.JWT.Secret)
	manager := session.NewManager(conversationRepo, messageRepo, userDirectory)

	hub := ws.NewHub()
	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, userDirectory, emitter)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, emitter)
	conversationWS := ws.NewConversationSocketHandler(hub, conversationRepo, messageRepo, provider)
	inboxWS := ws.NewSessionSocketHandler(manager, provider)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(provider)

	router.GET("/conversations", authMiddleware, conversationHandler.List)
	router.POST("/conversations/start", authMiddleware, conversationHandler.Start)
	router.GET("/conversations/unread", authMiddleware, conversationHandler.Unread)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.List)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.Post)
	router.POST("/conversations/:conversation_id/read", authMiddleware, conversationHandler.MarkRead)
	router.DELETE("/conversations/:conversation_id", authMiddleware, conversationHandler.Delete)

	router.GET("/ws/conversations/:conversation_id", conversationWS.Handle)
	router.GET("/ws/inbox", inboxWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, emitter, cfg.Server.Debug)

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
