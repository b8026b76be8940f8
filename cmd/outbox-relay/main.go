package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/announce"
	"github.com/zoff-tech/guest-sync/pkg/breaker"
	"github.com/zoff-tech/guest-sync/pkg/config"
	"github.com/zoff-tech/guest-sync/pkg/dispatch"
	"github.com/zoff-tech/guest-sync/pkg/dlq"
	"github.com/zoff-tech/guest-sync/pkg/outbox"
	"github.com/zoff-tech/guest-sync/pkg/telemetry"
)

func main() {
	ctx := context.Background()

	// Load configuration from file or environment
	cfg, err := config.LoadFromFile("./cmd/outbox-relay")
	if err != nil {
		log.Fatal("Error loading configuration: ", err)
	}

	// Validate the configuration
	err = cfg.Validate()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	// Initialize telemetry (tracing)
	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		log.Fatal("Failed to initialize telemetry: ", err)
	}
	defer shutdownTelemetry()

	// Optional dead-letter announcer
	broker, err := announce.NewBroker(ctx, &cfg.DeadLetter.Broker)
	if err != nil {
		log.Fatal("Failed to initialize dead-letter broker: ", err)
	}
	if broker != nil {
		defer broker.Close()
	}

	queue := dlq.New(dlq.Options{
		RetryDelay: cfg.DeadLetter.RetryDelay,
		MaxCycles:  cfg.DeadLetter.MaxCycles,
		Topic:      cfg.DeadLetter.Topic,
		Broker:     broker,
	}, logger)

	cb := breaker.New(cfg.Webhook.BreakerThreshold, cfg.Webhook.BreakerCooldown)
	dispatcher := dispatch.NewDispatcher(cfg.Webhook, cb, queue, logger)
	defer dispatcher.Close()

	repo, err := outbox.NewPostgresRepository(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to initialize outbox repository: ", err)
	}
	defer repo.Close()

	relay := outbox.NewRelay(repo, dispatcher,
		cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, cfg.Outbox.MaxRetries, logger)

	go serveStatus(cfg.Server.Port, cfg.Server.BasePath, dispatcher)
	go dispatcher.RunSweeper(ctx, cfg.DeadLetter.SweepInterval)

	// Run the relay (blocks until the context is canceled)
	relay.Run(ctx)
}

// serveStatus exposes breaker and queue state plus metrics for operators.
func serveStatus(port int, basePath string, dispatcher *dispatch.Dispatcher) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET(basePath+"/sync/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, dispatcher.Status())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatal("Status server error: ", err)
	}
}
