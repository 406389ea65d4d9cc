package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"event-chat-service/internal/auth"
	"event-chat-service/internal/config"
	"event-chat-service/internal/db"
	grpcserver "event-chat-service/internal/grpc"
	"event-chat-service/internal/handlers"
	"event-chat-service/internal/middleware"
	"event-chat-service/internal/observability"
	"event-chat-service/internal/rabbitmq"
	"event-chat-service/internal/repositories"
	"event-chat-service/internal/telemetry"
	"event-chat-service/internal/ws"
)

const serviceName = "event-chat-service"

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to init tracing", "err", err)
		os.Exit(1)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Error("failed to connect to db", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(ctx, rabbitmq.Options{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
	defer publisher.Close()
	logger.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.events", serviceName, cfg.Environment)

	eventRepo := repositories.NewEventRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	hub := ws.NewHub(logger)
	notifier := ws.NewNotifier(logger)
	notifier.Attach(hub)

	opts := ws.Options{
		SendBuffer:      cfg.SendBuffer,
		MaxFrameSize:    cfg.MaxFrameSize,
		WriteWait:       cfg.WriteWait,
		PongWait:        cfg.PongWait,
		PollTimeout:     cfg.PollTimeout,
		PollIdleTimeout: cfg.PollIdleTimeout,
		AllowedOrigins:  cfg.AllowedOrigins,
	}
	wsHandler := ws.NewWebSocketHandler(hub, verifier, opts, logger)
	pollHandler := ws.NewPollHandler(hub, verifier, opts, logger)
	go pollHandler.Run(ctx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Registry().Len()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", wsHandler.Handle)
	pollHandler.Register(&router.RouterGroup)

	api := router.Group("", middleware.AuthMiddleware(verifier))
	handlers.NewMessageHandler(eventRepo, messageRepo, notifier, audit).Register(api)
	handlers.NewEventHandler(eventRepo, notifier, audit).Register(api)
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	health := grpcserver.NewHealthServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		logger.Error("failed to listen for grpc health", "addr", cfg.GRPCHealthAddr, "err", err)
		os.Exit(1)
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error("grpc health server error", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()
	health.SetServing(true)

	<-ctx.Done()
	logger.Info("shutting down")

	health.SetServing(false)
	notifier.Detach()
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "err", err)
	}
	health.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", "err", err)
	}
}
