package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/relay"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
)

func main() {
	config.LoadEnvFile(".env")
	cfg := config.LoadServer()

	shutdown, err := observability.InitTracing(context.Background(), cfg.ServiceName)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("amqp publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, cfg.ServiceName, cfg.Environment)

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)

	conversationHandler := handlers.NewConversationHandler(messageRepo, groupRepo, audit)
	groupHandler := handlers.NewGroupHandler(groupRepo, audit)
	relayWS := relay.NewWebSocketHandler(relay.NewHub(), cfg.JWTSecret)

	router := gin.Default()

	// middlewares
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1", authMiddleware)
	v1.GET("/chat/user/:id", conversationHandler.GetMessages(models.KindDirect))
	v1.POST("/chat/user/:id", conversationHandler.PostMessage(models.KindDirect))
	v1.GET("/chat/group/:id", conversationHandler.GetMessages(models.KindGroup))
	v1.POST("/chat/group/:id", conversationHandler.PostMessage(models.KindGroup))
	v1.GET("/groups/:id/info", groupHandler.GetInfo)

	router.GET("/ws", relayWS.Handle)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
