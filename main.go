package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/attachments"
	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/storage"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer database.Close()

	if cfg.AMQPURL != "" {
		publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("connect amqp: %v", err)
		}
		defer publisher.Close()
		observability.SetPublisher(publisher)
		log.Printf("event publishing enabled on exchange %s", cfg.AMQPExchange)
	} else {
		log.Println("AMQP_URL not set, events will not be published")
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	tracker := presence.NewTracker(userRepo)
	resolver := auth.NewResolver(cfg.JWTSecret)

	mediaStore := storage.NewDiskStore(cfg.MediaRoot, cfg.MediaBaseURL, "images")
	rawStore := storage.NewDiskStore(cfg.MediaRoot, cfg.MediaBaseURL, "attachments")
	pipeline := attachments.NewPipeline(mediaStore, rawStore)

	hub := ws.NewHub()
	if cfg.RedisURL != "" {
		bridge, err := ws.NewRedisBridge(ctx, cfg.RedisURL, hub)
		if err != nil {
			log.Fatalf("connect redis bridge: %v", err)
		}
		defer bridge.Close()
		hub.SetBridge(bridge)
		log.Println("redis room bridge enabled")
	}

	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, userRepo)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, userRepo, pipeline, hub)
	wsHandler := ws.NewChatWebSocketHandler(hub, conversationRepo, messageRepo, userRepo, resolver, pipeline, tracker)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	api := router.Group("/")
	api.Use(middleware.Auth(resolver))
	api.Use(middleware.Activity(tracker))
	{
		api.GET("/conversations", conversationHandler.ListConversations)
		api.POST("/conversations/start", conversationHandler.StartConversation)
		api.GET("/conversations/:conversation_id", conversationHandler.GetConversation)
		api.GET("/conversations/:conversation_id/messages", messageHandler.GetMessages)
		api.POST("/conversations/:conversation_id/messages", messageHandler.PostMessage)
		api.POST("/conversations/:conversation_id/read", messageHandler.MarkAllRead)
	}

	// Websocket auth happens inside the handler so browser clients can pass
	// the token as a query parameter.
	router.GET("/ws/conversations/:conversation_id", wsHandler.Handle)

	router.Static("/media", cfg.MediaRoot)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	log.Printf("messaging service listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
