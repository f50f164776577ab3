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

	"github.com/wayfindercollective/funnel-backend/internal/collector"
	"github.com/wayfindercollective/funnel-backend/internal/common/config"
	"github.com/wayfindercollective/funnel-backend/internal/common/db"
	"github.com/wayfindercollective/funnel-backend/internal/common/kafka"
	"github.com/wayfindercollective/funnel-backend/internal/common/logger"
	"github.com/wayfindercollective/funnel-backend/internal/common/middleware"
	"github.com/wayfindercollective/funnel-backend/pkg/outbox"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("collector")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("collector-service")

	// Connect to database
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	repo := collector.NewRepository(database, log)
	outboxRepo := outbox.NewRepository(database.DB, log)

	// Ensure schemas exist
	ctx := context.Background()
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	if _, err := database.ExecContext(ctx, outbox.Schema); err != nil {
		log.Fatalf("Failed to create outbox schema: %v", err)
	}

	// Initialize Kafka producer and outbox publisher
	producer := kafka.NewProducer(cfg.Kafka, log)
	defer producer.Close()

	publisher := outbox.NewPublisher(outboxRepo, producer, log)

	publisherCtx, cancelPublisher := context.WithCancel(context.Background())
	defer cancelPublisher()
	go publisher.Run(publisherCtx)

	// Initialize service and handler
	service := collector.NewService(repo, outboxRepo, database, log)
	handler := collector.NewHandler(service, log)

	// Register routes
	mux := http.NewServeMux()
	collector.SetupRoutes(mux, handler, cfg.JWT.Secret)

	// Apply middleware
	var httpHandler http.Handler = mux
	httpHandler = middleware.CORS(httpHandler)
	httpHandler = middleware.Logging(log)(httpHandler)
	httpHandler = middleware.Recovery(log)(httpHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Collector API starting on port %s", cfg.Service.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	cancelPublisher()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited gracefully")
}
