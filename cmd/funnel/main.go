package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wayfindercollective/funnel-backend/internal/analytics"
	"github.com/wayfindercollective/funnel-backend/internal/auth"
	"github.com/wayfindercollective/funnel-backend/internal/common/config"
	"github.com/wayfindercollective/funnel-backend/internal/common/kvstore"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
	"github.com/wayfindercollective/funnel-backend/internal/common/middleware"
	"github.com/wayfindercollective/funnel-backend/internal/common/redis"
	"github.com/wayfindercollective/funnel-backend/internal/funnel"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("funnel")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("funnel-service")

	// Connect to Redis. The funnel degrades to in-memory storage when Redis
	// is unavailable: sessions and the event log then live only for the
	// process lifetime, which is acceptable for local development.
	var store kvstore.Store
	redisClient, err := redis.Connect(cfg.Redis, log)
	if err != nil {
		log.Warnf("Redis unavailable, falling back to in-memory store: %v", err)
		store = kvstore.NewMemoryStore()
	} else {
		defer redisClient.Close()
		store = kvstore.NewRedisStore(redisClient)
	}

	// Funnel content
	questions := funnel.DefaultQuestions()

	// Analytics capture pipeline: local event log + best-effort forwarding
	// to the collector service
	transport := analytics.NewHTTPTransport(cfg.Webhook.AnalyticsURL)
	forwarder := analytics.NewForwarder(transport, cfg.Analytics.ForwardQueueSize, log)

	engine := analytics.NewEngine(analytics.Config{
		Labels:              funnel.Labels(questions),
		MaxStoredEvents:     cfg.Analytics.MaxStoredEvents,
		HiddenThreshold:     cfg.Analytics.HiddenThreshold,
		InactivityThreshold: cfg.Analytics.InactivityThreshold,
		SessionIdleExpiry:   cfg.Analytics.SessionIdleExpiry,
		RecentDropOffs:      cfg.Analytics.RecentDropOffs,
	}, store, forwarder, nil, log)

	// Background drop-off sweeper
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go engine.Run(sweepCtx, time.Second)

	// Submission webhook
	webhook := funnel.NewWebhookClient(cfg.Webhook.SubmitURL)

	// Initialize services
	funnelService := funnel.NewService(funnel.ServiceConfig{Questions: questions}, store, engine, webhook, log)
	authService := auth.NewService(cfg.Auth, cfg.JWT, log)

	// Initialize handlers
	funnelHandler := funnel.NewHandler(funnelService)
	analyticsHandler := analytics.NewHandler(engine)
	authHandler := auth.NewHandler(authService)

	// Register routes
	mux := http.NewServeMux()
	funnel.SetupRoutes(mux, funnelHandler)
	analyticsHandler.RegisterRoutes(mux, cfg.JWT.Secret)
	authHandler.RegisterRoutes(mux, cfg.JWT.Secret)

	// Apply middleware
	var handler http.Handler = mux
	handler = middleware.CORS(handler)
	handler = middleware.Logging(log)(handler)
	handler = middleware.Recovery(log)(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Funnel API starting on port %s", cfg.Service.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	cancelSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Flush queued analytics events before exit
	forwarder.Close(5 * time.Second)

	log.Info("Server exited gracefully")
}
